package usecases

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"onboardingbot/internal/config"
	"onboardingbot/internal/entities"
	"onboardingbot/internal/interfaces"
)

// ErrCandidateNotFound is returned by operator actions against an unknown
// phone number.
var ErrCandidateNotFound = errors.New("candidate not found")

const immediateEscalationReason = "Immediate escalation (explicit request)"

// resumeHistoryKeep is how many history entries survive a resume. Older
// frustration context is discarded on purpose.
const resumeHistoryKeep = 3

// ConversationEngine is the per-message controller: it sequences
// deduplication, immediate escalation, the orchestrated reply, persistence,
// and the non-blocking escalation/summarization tail.
type ConversationEngine struct {
	store        interfaces.CandidateStore
	messenger    interfaces.Messenger
	notifier     interfaces.Notifier
	jobs         interfaces.JobRunner
	escalator    *Escalator
	orchestrator *Orchestrator
	memory       *MemoryManager
	mode         config.EscalationMode
	logger       *zap.Logger
}

func NewConversationEngine(
	store interfaces.CandidateStore,
	messenger interfaces.Messenger,
	notifier interfaces.Notifier,
	jobs interfaces.JobRunner,
	escalator *Escalator,
	orchestrator *Orchestrator,
	memory *MemoryManager,
	mode config.EscalationMode,
	logger *zap.Logger,
) *ConversationEngine {
	return &ConversationEngine{
		store:        store,
		messenger:    messenger,
		notifier:     notifier,
		jobs:         jobs,
		escalator:    escalator,
		orchestrator: orchestrator,
		memory:       memory,
		mode:         mode,
		logger:       logger,
	}
}

// ProcessInbound runs the canonical per-message sequence. It is invoked off
// the webhook handler's request path and must never panic through to the
// caller; every external failure degrades per the component contracts.
func (s *ConversationEngine) ProcessInbound(ctx context.Context, msg entities.InboundMessage) {
	if msg.From == "" || msg.Text == "" {
		return
	}

	c, err := s.store.GetOrCreate(ctx, entities.NormalizePhone(msg.From))
	if err != nil {
		s.logger.Error("get-or-create candidate failed", zap.String("phone", msg.From), zap.Error(err))
		return
	}

	if msg.MessageID != "" {
		fresh, err := s.store.MarkProcessed(ctx, c.PhoneNumber, msg.MessageID)
		if err != nil {
			s.logger.Error("dedup check failed", zap.String("phone", c.PhoneNumber), zap.Error(err))
		} else if !fresh {
			s.logger.Info("duplicate message dropped",
				zap.String("phone", c.PhoneNumber), zap.String("message_id", msg.MessageID))
			return
		}
	}

	// Persist the inbound turn immediately so a crash later still leaves an
	// audit trail.
	c.AppendHistory(entities.RoleUser, msg.Text)
	if err := s.store.Save(ctx, c); err != nil {
		s.logger.Error("failed to persist inbound message", zap.String("phone", c.PhoneNumber), zap.Error(err))
	}

	// Tier 1: explicit human requests escalate before any model call.
	if s.escalator.CheckImmediate(msg.Text) {
		s.escalate(ctx, c, immediateEscalationReason)
		handoff := HandoffMessage(DetectLanguage(msg.Text))
		if err := s.messenger.SendText(ctx, c.PhoneNumber, handoff); err != nil {
			s.logger.Warn("handoff send failed", zap.String("phone", c.PhoneNumber), zap.Error(err))
		}
		return
	}

	// Escalated is a sink for automated processing.
	if c.Status == entities.StatusEscalated {
		s.logger.Info("bot paused for escalated candidate", zap.String("phone", c.PhoneNumber))
		return
	}

	if s.mode == config.EscalationBlocking {
		if s.runScoredEscalation(ctx, c, msg.Text) {
			return
		}
	}

	reply := s.orchestrator.Reply(ctx, c, msg.Text)

	c.AppendHistory(entities.RoleBot, reply)
	c.Status = entities.StatusReplied
	if err := s.store.Save(ctx, c); err != nil {
		s.logger.Error("failed to persist bot reply", zap.String("phone", c.PhoneNumber), zap.Error(err))
	}

	// Re-verify status at send time: a concurrent escalation must suppress
	// the outbound message even though the reply is already persisted.
	if s.escalatedNow(ctx, c.PhoneNumber) {
		s.logger.Info("reply suppressed, candidate escalated concurrently", zap.String("phone", c.PhoneNumber))
	} else if err := s.messenger.SendText(ctx, c.PhoneNumber, reply); err != nil {
		// Delivery failure is non-fatal to the stored conversation state.
		s.logger.Warn("reply send failed", zap.String("phone", c.PhoneNumber), zap.Error(err))
	}

	phone, incoming := c.PhoneNumber, msg.Text
	if s.mode == config.EscalationBackground {
		s.jobs.Enqueue("escalation-check", func(ctx context.Context) {
			cur, err := s.store.GetByPhone(ctx, phone)
			if err != nil || cur == nil {
				return
			}
			s.runScoredEscalation(ctx, cur, incoming)
		})
	}
	s.jobs.Enqueue("summarize", func(ctx context.Context) {
		cur, err := s.store.GetByPhone(ctx, phone)
		if err != nil || cur == nil {
			return
		}
		s.memory.SummarizeIfNeeded(ctx, cur)
	})
}

// runScoredEscalation applies the tier-2 sampling rule and thresholds.
// Returns true when the candidate escalated.
func (s *ConversationEngine) runScoredEscalation(ctx context.Context, c *entities.Candidate, incoming string) bool {
	if c.Status == entities.StatusEscalated {
		return false
	}
	if !ShouldRunScoredCheck(c) {
		return false
	}
	scores, escalate := s.escalator.RunScoredCheck(ctx, c, incoming)
	if !escalate {
		return false
	}
	s.escalate(ctx, c, scores.Reason())
	return true
}

func (s *ConversationEngine) escalate(ctx context.Context, c *entities.Candidate, reason string) {
	c.Status = entities.StatusEscalated
	c.EscalationReason = reason
	if err := s.store.Save(ctx, c); err != nil {
		s.logger.Error("failed to persist escalation", zap.String("phone", c.PhoneNumber), zap.Error(err))
	}
	if err := s.notifier.NotifyEscalation(ctx, c); err != nil {
		s.logger.Warn("escalation notification failed", zap.String("phone", c.PhoneNumber), zap.Error(err))
	}
	s.logger.Info("candidate escalated", zap.String("phone", c.PhoneNumber), zap.String("reason", reason))
}

func (s *ConversationEngine) escalatedNow(ctx context.Context, phone string) bool {
	cur, err := s.store.GetByPhone(ctx, phone)
	if err != nil || cur == nil {
		return false
	}
	return cur.Status == entities.StatusEscalated
}

// AdminReply sends an operator-authored message and appends it as an admin
// history entry. Delivery failure is logged; the entry is recorded anyway.
func (s *ConversationEngine) AdminReply(ctx context.Context, phone, text string) error {
	c, err := s.store.GetByPhone(ctx, entities.NormalizePhone(phone))
	if err != nil {
		return err
	}
	if c == nil {
		return ErrCandidateNotFound
	}

	if err := s.messenger.SendText(ctx, c.PhoneNumber, text); err != nil {
		s.logger.Warn("admin reply send failed", zap.String("phone", c.PhoneNumber), zap.Error(err))
	}

	c.AppendHistory(entities.RoleAdmin, text)
	return s.store.Save(ctx, c)
}

// Resume returns an escalated candidate to automated handling: status back to
// replied, reason cleared, history trimmed to the last few entries so stale
// frustration context does not leak into the next reply.
func (s *ConversationEngine) Resume(ctx context.Context, phone string) error {
	c, err := s.store.GetByPhone(ctx, entities.NormalizePhone(phone))
	if err != nil {
		return err
	}
	if c == nil {
		return ErrCandidateNotFound
	}

	c.Status = entities.StatusReplied
	c.EscalationReason = ""
	if len(c.History) > resumeHistoryKeep {
		c.History = c.History[len(c.History)-resumeHistoryKeep:]
	}
	return s.store.Save(ctx, c)
}
