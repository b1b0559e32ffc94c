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

// Hand-curated phrase lists checked by substring containment against the
// lower-cased message. Phrases only, not single words, to avoid false
// positives. No accent or punctuation normalization.
var defaultItalianEscalationPhrases = []string{
	"parlare con un operatore",
	"parlare con una persona",
	"contattare un umano",
	"assistenza umana",
	"voglio un operatore",
	"voglio parlare con",
	"posso parlare con una persona",
	"ho bisogno di parlare con un operatore",
}

var defaultEnglishEscalationPhrases = []string{
	"speak to a human",
	"talk to an operator",
	"contact a person",
	"human assistance",
	"i need a person",
	"real person",
	"talk to a person",
	"speak with an agent",
}

// EscalationScores are the four integers the classification call must return,
// each in [0,10].
type EscalationScores struct {
	Frustration  int `json:"frustration_score"`
	HumanRequest int `json:"human_request_score"`
	Confusion    int `json:"confusion_score"`
	RepeatCount  int `json:"repeat_count"`
}

// ShouldEscalate applies the fixed thresholds.
func (s EscalationScores) ShouldEscalate() bool {
	return s.Frustration >= 7 || s.HumanRequest >= 8 || (s.Confusion >= 8 && s.RepeatCount >= 3)
}

// Reason renders the persisted escalation reason embedding the four scores.
func (s EscalationScores) Reason() string {
	return fmt.Sprintf("Escalated (F:%d, H:%d, C:%d, R:%d)", s.Frustration, s.HumanRequest, s.Confusion, s.RepeatCount)
}

// Escalator decides when a conversation transitions to human handling. Tier 1
// is a deterministic phrase matcher; tier 2 is a periodic model-scored check.
type Escalator struct {
	model           interfaces.ModelClient
	classifierModel string
	phrases         []string
	logger          *zap.Logger
}

func NewEscalator(model interfaces.ModelClient, classifierModel string, logger *zap.Logger) *Escalator {
	phrases := make([]string, 0, len(defaultItalianEscalationPhrases)+len(defaultEnglishEscalationPhrases))
	phrases = append(phrases, defaultItalianEscalationPhrases...)
	phrases = append(phrases, defaultEnglishEscalationPhrases...)
	return &Escalator{
		model:           model,
		classifierModel: classifierModel,
		phrases:         phrases,
		logger:          logger,
	}
}

// WithPhrases replaces the escalation phrase list. The list is configuration,
// not an inferred pattern rule.
func (e *Escalator) WithPhrases(phrases []string) *Escalator {
	e.phrases = phrases
	return e
}

// CheckImmediate is the tier-1 keyword check for explicit human requests. It
// runs before any reply is generated and costs no model call.
func (e *Escalator) CheckImmediate(message string) bool {
	lower := strings.ToLower(message)
	for _, phrase := range e.phrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// ShouldRunScoredCheck bounds tier-2 cost: only the first user message and
// every 3rd thereafter trigger a classification call.
func ShouldRunScoredCheck(c *entities.Candidate) bool {
	n := c.UserMessageCount()
	return n == 1 || n%3 == 0
}

// RunScoredCheck submits the last 5 history entries plus the current message
// to the classifier and applies the thresholds. Any call or parse failure is
// swallowed: escalation is opt-in and fails closed.
func (e *Escalator) RunScoredCheck(ctx context.Context, c *entities.Candidate, incoming string) (EscalationScores, bool) {
	var scores EscalationScores

	window := c.History
	if len(window) > 5 {
		window = window[len(window)-5:]
	}
	lines := make([]string, 0, len(window)+1)
	for _, m := range window {
		lines = append(lines, fmt.Sprintf("%s: %s", m.From, m.Text))
	}
	lines = append(lines, fmt.Sprintf("user: %s", incoming))

	prompt := fmt.Sprintf(`You are an escalation analyzer for a support chatbot.

Return JSON with:
- frustration_score (0-10)
- human_request_score (0-10)
- confusion_score (0-10)
- repeat_count (0-10)

Escalate only if scores are high; do not escalate for polite help/thanks.

--- CHAT START ---
%s
--- CHAT END ---`, strings.Join(lines, "\n"))

	raw, err := e.model.ChatCompletion(ctx, interfaces.ChatRequest{
		Model:    e.classifierModel,
		Messages: []interfaces.ChatMessage{{Role: "system", Content: prompt}},
		Timeout:  5 * time.Second,
	})
	if err != nil {
		e.logger.Warn("scored escalation check failed", zap.String("phone", c.PhoneNumber), zap.Error(err))
		return scores, false
	}

	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &scores); err != nil {
		e.logger.Warn("unparseable escalation scores", zap.String("phone", c.PhoneNumber), zap.Error(err))
		return scores, false
	}
	return scores, scores.ShouldEscalate()
}

// HandoffMessage is the fixed tier-1 handoff text in the detected language.
func HandoffMessage(lang string) string {
	if lang == "it" {
		return "Ti metto in contatto con un operatore. A breve riceverai assistenza."
	}
	return "I'll connect you with an operator. You'll receive assistance shortly."
}
