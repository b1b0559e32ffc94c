package infrastructure

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"onboardingbot/internal/interfaces"
)

// OpenAIClient adapts the OpenAI chat completions API to the ModelClient port.
type OpenAIClient struct {
	client *openai.Client
}

func NewOpenAIClient(apiKey string) interfaces.ModelClient {
	return &OpenAIClient{client: openai.NewClient(apiKey)}
}

func (o *OpenAIClient) ChatCompletion(ctx context.Context, req interfaces.ChatRequest) (string, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:            req.Model,
		Messages:         messages,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
