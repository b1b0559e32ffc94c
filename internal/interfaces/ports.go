package interfaces

import (
	"context"
	"time"

	"onboardingbot/internal/entities"
)

// ChatMessage is a role-tagged message sent to the model provider.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest carries one model call's parameters.
type ChatRequest struct {
	Model            string
	Messages         []ChatMessage
	Temperature      float32
	TopP             float32
	FrequencyPenalty float32
	PresencePenalty  float32
	Timeout          time.Duration
}

// ModelClient is the language model provider boundary. It returns a single
// text completion; callers own the parsing contract.
type ModelClient interface {
	ChatCompletion(ctx context.Context, req ChatRequest) (string, error)
}

// Messenger is the outbound WhatsApp transport.
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
	SendOnboardingTemplate(ctx context.Context, to, firstName string) error
}

// Notifier alerts a human operator when a conversation escalates.
// Implementations are fire-and-forget; failures must not block escalation.
type Notifier interface {
	NotifyEscalation(ctx context.Context, c *entities.Candidate) error
}

// CandidateStore is the persistence boundary for candidates.
type CandidateStore interface {
	GetOrCreate(ctx context.Context, phone string) (*entities.Candidate, error)
	GetByPhone(ctx context.Context, phone string) (*entities.Candidate, error)
	Create(ctx context.Context, c *entities.Candidate) error
	Save(ctx context.Context, c *entities.Candidate) error
	// MarkProcessed records an external message id against the candidate's
	// bounded dedup list in one atomic statement. It returns true when the id
	// was new and is now recorded, false when it was already present.
	MarkProcessed(ctx context.Context, phone, messageID string) (bool, error)
	ListByStatus(ctx context.Context, status string) ([]*entities.Candidate, error)
	ListWithHistory(ctx context.Context) ([]*entities.Candidate, error)
	ListAll(ctx context.Context) ([]*entities.Candidate, error)
	Exists(ctx context.Context, phone string) (bool, error)
}

// JobRunner executes fire-and-forget background work with its own error
// boundary. Enqueue must never block the caller's critical path.
type JobRunner interface {
	Enqueue(name string, fn func(ctx context.Context))
}
