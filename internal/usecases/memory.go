package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"onboardingbot/internal/entities"
	"onboardingbot/internal/interfaces"
)

const (
	summarizeThreshold = 60
	summaryWindowSize  = 40
)

// MemoryManager surfaces persisted memory entries from a candidate's history
// and maintains a rolling summary once the log grows long.
type MemoryManager struct {
	model           interfaces.ModelClient
	store           interfaces.CandidateStore
	classifierModel string
	logger          *zap.Logger
}

func NewMemoryManager(model interfaces.ModelClient, store interfaces.CandidateStore, classifierModel string, logger *zap.Logger) *MemoryManager {
	return &MemoryManager{
		model:           model,
		store:           store,
		classifierModel: classifierModel,
		logger:          logger,
	}
}

// StateObjects scans the history once and returns the most recent state entry
// parsed as a snapshot and the most recent summary text. Malformed state JSON
// is treated as absent, never raised.
func StateObjects(history []entities.HistoryEntry) (*entities.StateSnapshot, string) {
	var lastState *entities.StateSnapshot
	var lastSummary string
	for _, e := range history {
		switch e.From {
		case entities.RoleState:
			var s entities.StateSnapshot
			if err := json.Unmarshal([]byte(e.Text), &s); err == nil {
				lastState = &s
			}
		case entities.RoleSummary:
			lastSummary = e.Text
		}
	}
	return lastState, lastSummary
}

// SummarizeIfNeeded appends a rolling summary entry when the history has
// grown past the threshold. Best-effort: failures are logged and ignored so
// summarization never blocks the reply path.
func (m *MemoryManager) SummarizeIfNeeded(ctx context.Context, c *entities.Candidate) {
	if len(c.History) < summarizeThreshold {
		return
	}

	// The window starts strictly after the most recent summary entry.
	start := 0
	for i, e := range c.History {
		if e.From == entities.RoleSummary {
			start = i + 1
		}
	}
	window := make([]entities.HistoryEntry, 0, summaryWindowSize)
	for _, e := range c.History[start:] {
		if e.IsTurn() {
			window = append(window, e)
		}
	}
	if len(window) > summaryWindowSize {
		window = window[len(window)-summaryWindowSize:]
	}
	if len(window) == 0 {
		return
	}

	transcript := formatTranscript(window)
	langName := "English"
	if DetectLanguage(transcript) == "it" {
		langName = "Italian"
	}

	prompt := fmt.Sprintf(`Summarize this conversation window into 4-7 bullet points (<=120 words), preserving decisions, user preferences, and current step. Keep %s.

--- WINDOW ---
%s
--- END ---`, langName, transcript)

	summary, err := m.model.ChatCompletion(ctx, interfaces.ChatRequest{
		Model: m.classifierModel,
		Messages: []interfaces.ChatMessage{
			{Role: "system", Content: "You produce concise, faithful summaries."},
			{Role: "user", Content: prompt},
		},
		Temperature:      0.7,
		TopP:             1,
		FrequencyPenalty: 0.7,
		PresencePenalty:  0.3,
		Timeout:          12 * time.Second,
	})
	if err != nil {
		m.logger.Warn("summary failed", zap.String("phone", c.PhoneNumber), zap.Error(err))
		return
	}

	c.AppendHistory(entities.RoleSummary, strings.TrimSpace(summary))
	if err := m.store.Save(ctx, c); err != nil {
		m.logger.Warn("failed to persist summary", zap.String("phone", c.PhoneNumber), zap.Error(err))
	}
}

func formatTranscript(entries []entities.HistoryEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s: %s", e.From, e.Text))
	}
	return strings.Join(lines, "\n")
}
