package usecases

import (
	"context"
	"math"

	"onboardingbot/internal/entities"
	"onboardingbot/internal/interfaces"
)

// completedOnboardingBotReplies is the funnel definition of a completed
// onboarding: at least this many bot-authored history entries.
const completedOnboardingBotReplies = 6

type ReportSummary struct {
	TotalUsers                int     `json:"total_users"`
	TotalMessages             int     `json:"total_messages"`
	AverageConversationLength float64 `json:"average_conversation_length"`
	BotMessages               int     `json:"bot_messages"`
	UserMessages              int     `json:"user_messages"`
	AdminMessages             int     `json:"admin_messages"`
}

type EngagementFunnel struct {
	Sent                int `json:"sent"`
	Replied             int `json:"replied"`
	CompletedOnboarding int `json:"completed_onboarding"`
	Escalated           int `json:"escalated"`
}

type EscalationStats struct {
	TotalEscalated int `json:"total_escalated"`
	WithReason     int `json:"with_reason"`
}

type Report struct {
	Summary         ReportSummary    `json:"summary"`
	Funnel          EngagementFunnel `json:"engagement_funnel"`
	EscalationStats EscalationStats  `json:"escalation_stats"`
}

// ReportService computes aggregate conversation statistics.
type ReportService struct {
	store interfaces.CandidateStore
}

func NewReportService(store interfaces.CandidateStore) *ReportService {
	return &ReportService{store: store}
}

func (s *ReportService) Stats(ctx context.Context) (*Report, error) {
	candidates, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var r Report
	r.Summary.TotalUsers = len(candidates)

	for _, c := range candidates {
		r.Summary.TotalMessages += len(c.History)
		botCount := 0
		for _, m := range c.History {
			switch m.From {
			case entities.RoleBot:
				r.Summary.BotMessages++
				botCount++
			case entities.RoleUser:
				r.Summary.UserMessages++
			case entities.RoleAdmin:
				r.Summary.AdminMessages++
			}
		}
		if botCount >= completedOnboardingBotReplies {
			r.Funnel.CompletedOnboarding++
		}

		switch c.Status {
		case entities.StatusSent:
			r.Funnel.Sent++
		case entities.StatusReplied:
			r.Funnel.Replied++
		case entities.StatusEscalated:
			r.Funnel.Escalated++
			r.EscalationStats.TotalEscalated++
			if c.EscalationReason != "" {
				r.EscalationStats.WithReason++
			}
		}
	}

	if len(candidates) > 0 {
		avg := float64(r.Summary.TotalMessages) / float64(len(candidates))
		r.Summary.AverageConversationLength = math.Round(avg*100) / 100
	}
	return &r, nil
}
