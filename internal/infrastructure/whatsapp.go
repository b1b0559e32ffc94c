package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"onboardingbot/internal/interfaces"
)

const (
	graphAPIBase = "https://graph.facebook.com/v19.0"

	onboardingTemplateName = "onboarding_named"
	privacyDocumentLink    = "https://instant-avatar.com/document/Privacy%20whatsapp.pdf"
	privacyDocumentName    = "Informativa_InPlace.pdf"

	// Substring of the Graph error details returned when the declared
	// template parameters do not match what the request supplied.
	paramMismatchDetail = "does not match the expected number of params"
)

// WhatsAppBusinessClient sends outbound messages through the Meta WhatsApp
// Cloud API.
type WhatsAppBusinessClient struct {
	accessToken   string
	phoneNumberID string
	httpClient    *http.Client
	logger        *zap.Logger
	baseURL       string
}

func NewWhatsAppBusinessClient(accessToken, phoneNumberID string, logger *zap.Logger) interfaces.Messenger {
	return &WhatsAppBusinessClient{
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		logger:        logger,
		baseURL:       graphAPIBase,
	}
}

func (w *WhatsAppBusinessClient) SendText(ctx context.Context, to, body string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text": map[string]string{
			"body": body,
		},
	}
	return w.post(ctx, payload)
}

// SendOnboardingTemplate sends the named onboarding template: a document
// header with the privacy note plus a first_name body parameter. If the Graph
// API rejects the request over a parameter-count mismatch, the send is retried
// once with the body parameter only.
func (w *WhatsAppBusinessClient) SendOnboardingTemplate(ctx context.Context, to, firstName string) error {
	bodyComponent := map[string]any{
		"type": "body",
		"parameters": []map[string]any{
			{
				"type":           "text",
				"parameter_name": "first_name",
				"text":           firstName,
			},
		},
	}
	headerComponent := map[string]any{
		"type": "header",
		"parameters": []map[string]any{
			{
				"type": "document",
				"document": map[string]string{
					"link":     privacyDocumentLink,
					"filename": privacyDocumentName,
				},
			},
		},
	}

	err := w.post(ctx, templatePayload(to, headerComponent, bodyComponent))
	if err == nil {
		return nil
	}
	if !strings.Contains(err.Error(), paramMismatchDetail) {
		return err
	}

	w.logger.Warn("template parameter mismatch, retrying with reduced parameters",
		zap.String("to", to), zap.Error(err))
	return w.post(ctx, templatePayload(to, bodyComponent))
}

func templatePayload(to string, components ...map[string]any) map[string]any {
	return map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template": map[string]any{
			"name":       onboardingTemplateName,
			"language":   map[string]string{"code": "it"},
			"components": components,
		},
	}
}

func (w *WhatsAppBusinessClient) post(ctx context.Context, payload map[string]any) error {
	url := fmt.Sprintf("%s/%s/messages", w.baseURL, w.phoneNumberID)
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+w.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("graph api %d: %s", resp.StatusCode, graphErrorDetail(body))
	}
	return nil
}

// graphErrorDetail pulls the human-readable pieces out of a Graph API error
// body, falling back to the raw body.
func graphErrorDetail(body []byte) string {
	var parsed struct {
		Error struct {
			Message   string `json:"message"`
			ErrorData struct {
				Details string `json:"details"`
			} `json:"error_data"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		if parsed.Error.ErrorData.Details != "" {
			return parsed.Error.Message + ": " + parsed.Error.ErrorData.Details
		}
		return parsed.Error.Message
	}
	return string(body)
}
