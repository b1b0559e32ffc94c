package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"onboardingbot/internal/config"
	"onboardingbot/internal/entities"
	"onboardingbot/internal/interfaces"
	"onboardingbot/internal/usecases"
)

type memStore struct {
	mu         sync.Mutex
	candidates map[string]*entities.Candidate
}

func newMemStore() *memStore {
	return &memStore{candidates: make(map[string]*entities.Candidate)}
}

func (s *memStore) GetOrCreate(_ context.Context, phone string) (*entities.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.candidates[phone]; ok {
		return c, nil
	}
	c := &entities.Candidate{PhoneNumber: phone, Name: "Unknown", Status: entities.StatusSent}
	s.candidates[phone] = c
	return c, nil
}

func (s *memStore) GetByPhone(_ context.Context, phone string) (*entities.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.candidates[phone], nil
}

func (s *memStore) Create(_ context.Context, c *entities.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates[c.PhoneNumber] = c
	return nil
}

func (s *memStore) Save(_ context.Context, c *entities.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates[c.PhoneNumber] = c
	return nil
}

func (s *memStore) MarkProcessed(_ context.Context, phone, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[phone]
	if !ok {
		return false, nil
	}
	for _, id := range c.ProcessedMessageIDs {
		if id == messageID {
			return false, nil
		}
	}
	c.ProcessedMessageIDs = append(c.ProcessedMessageIDs, messageID)
	return true, nil
}

func (s *memStore) Exists(_ context.Context, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.candidates[phone]
	return ok, nil
}

func (s *memStore) ListByStatus(_ context.Context, status string) ([]*entities.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.Candidate
	for _, c := range s.candidates {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) ListWithHistory(_ context.Context) ([]*entities.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.Candidate
	for _, c := range s.candidates {
		if len(c.History) > 0 {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) ListAll(_ context.Context) ([]*entities.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.Candidate
	for _, c := range s.candidates {
		out = append(out, c)
	}
	return out, nil
}

type scriptedModel struct {
	response string
}

func (m *scriptedModel) ChatCompletion(context.Context, interfaces.ChatRequest) (string, error) {
	if m.response == "" {
		return "", errors.New("no response")
	}
	return m.response, nil
}

type recordingMessenger struct {
	mu    sync.Mutex
	texts []string
}

func (m *recordingMessenger) SendText(_ context.Context, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, body)
	return nil
}

func (m *recordingMessenger) SendOnboardingTemplate(context.Context, string, string) error {
	return nil
}

type noopNotifier struct{}

func (noopNotifier) NotifyEscalation(context.Context, *entities.Candidate) error { return nil }

type inlineRunner struct{}

func (inlineRunner) Enqueue(_ string, fn func(ctx context.Context)) {
	fn(context.Background())
}

func newTestHandler(t *testing.T) (*Handler, *memStore, *recordingMessenger) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	store := newMemStore()
	model := &scriptedModel{response: `{"reply": "Welcome aboard!"}`}
	messenger := &recordingMessenger{}

	escalator := usecases.NewEscalator(model, "classifier", logger)
	orchestrator := usecases.NewOrchestrator(model, store, "main", "", logger)
	memory := usecases.NewMemoryManager(model, store, "classifier", logger)
	engine := usecases.NewConversationEngine(
		store, messenger, noopNotifier{}, inlineRunner{},
		escalator, orchestrator, memory, config.EscalationBackground, logger)
	importer := usecases.NewImportService(store, messenger, logger)
	reports := usecases.NewReportService(store)

	h := NewHandler(engine, importer, reports, store, inlineRunner{}, "secret-token", logger)
	return h, store, messenger
}

func newRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.GET("/webhook", h.VerifyWebhook)
	r.POST("/webhook", h.ReceiveWebhook)
	r.GET("/api/candidates/escalated", h.GetEscalated)
	r.GET("/api/candidates/history", h.GetChatHistory)
	r.POST("/api/candidates/resume", h.ResumeBot)
	r.GET("/api/reports/stats", h.GetReportStats)
	return r
}

func TestVerifyWebhook(t *testing.T) {
	h, _, _ := newTestHandler(t)
	r := newRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=12345", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12345", w.Body.String())

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func metaPayload(from, id, text string) []byte {
	payload := map[string]any{
		"entry": []any{map[string]any{
			"changes": []any{map[string]any{
				"value": map[string]any{
					"messages": []any{map[string]any{
						"from": from,
						"id":   id,
						"text": map[string]string{"body": text},
					}},
				},
			}},
		}},
	}
	data, _ := json.Marshal(payload)
	return data
}

func TestReceiveWebhookProcessesMessage(t *testing.T) {
	h, store, messenger := newTestHandler(t)
	r := newRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook",
		bytes.NewReader(metaPayload("391234567890", "wamid.1", "hello")))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "received"}`, w.Body.String())

	c, _ := store.GetByPhone(context.Background(), "391234567890")
	require.NotNil(t, c)
	assert.Equal(t, entities.StatusReplied, c.Status)
	require.NotEmpty(t, messenger.texts)
	assert.Equal(t, "Welcome aboard!", messenger.texts[0])
}

func TestReceiveWebhookRejectsBadJSON(t *testing.T) {
	h, _, _ := newTestHandler(t)
	r := newRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReceiveWebhookIgnoresStatusCallbacks(t *testing.T) {
	h, store, _ := newTestHandler(t)
	r := newRouter(h)

	payload := `{"entry": [{"changes": [{"value": {"statuses": [{"status": "delivered"}]}}]}]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	all, _ := store.ListAll(context.Background())
	assert.Empty(t, all)
}

func TestGetEscalated(t *testing.T) {
	h, store, _ := newTestHandler(t)
	r := newRouter(h)

	require.NoError(t, store.Create(context.Background(), &entities.Candidate{
		Name: "Marco", PhoneNumber: "391234", Status: entities.StatusEscalated,
	}))
	require.NoError(t, store.Create(context.Background(), &entities.Candidate{
		Name: "Giulia", PhoneNumber: "395678", Status: entities.StatusReplied,
	}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/candidates/escalated", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var got []map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Marco", got[0]["name"])
	assert.Equal(t, "391234", got[0]["phone_number"])
}

func TestGetChatHistoryUnknownPhone(t *testing.T) {
	h, _, _ := newTestHandler(t)
	r := newRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/candidates/history?phone=390000", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"history": []}`, w.Body.String())
}

func TestResumeBotUnknownPhone(t *testing.T) {
	h, _, _ := newTestHandler(t)
	r := newRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/candidates/resume",
		bytes.NewBufferString(`{"phone_number": "390000"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"resumed": false}`, w.Body.String())
}

func TestGetReportStatsShape(t *testing.T) {
	h, store, _ := newTestHandler(t)
	r := newRouter(h)

	require.NoError(t, store.Create(context.Background(), &entities.Candidate{
		PhoneNumber: "391234", Status: entities.StatusSent,
	}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/reports/stats", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Summary struct {
			TotalUsers int `json:"total_users"`
		} `json:"summary"`
		Funnel struct {
			Sent int `json:"sent"`
		} `json:"engagement_funnel"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Summary.TotalUsers)
	assert.Equal(t, 1, got.Funnel.Sent)
}
