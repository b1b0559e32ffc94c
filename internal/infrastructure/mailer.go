package infrastructure

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"onboardingbot/internal/entities"
	"onboardingbot/internal/interfaces"
)

// EscalationMailer alerts the operator mailbox over SMTP when a conversation
// is handed off.
type EscalationMailer struct {
	host     string
	port     int
	user     string
	password string
	to       string
	logger   *zap.Logger
}

func NewEscalationMailer(host string, port int, user, password, to string, logger *zap.Logger) interfaces.Notifier {
	return &EscalationMailer{
		host:     host,
		port:     port,
		user:     user,
		password: password,
		to:       to,
		logger:   logger,
	}
}

func (m *EscalationMailer) NotifyEscalation(ctx context.Context, c *entities.Candidate) error {
	if m.host == "" || m.to == "" {
		m.logger.Warn("escalation mail not configured, skipping alert",
			zap.String("phone", c.PhoneNumber))
		return nil
	}

	name := c.Name
	if name == "" {
		name = "Unknown"
	}
	reason := c.EscalationReason
	if reason == "" {
		reason = "N/A"
	}

	subject := fmt.Sprintf("[Escalation Alert] %s (%s)", name, c.PhoneNumber)
	body := fmt.Sprintf(`A user has been escalated.

Name: %s
Phone: %s
Reason: %s

Check the admin panel for full chat history.
`, c.Name, c.PhoneNumber, reason)

	msg := mail.NewMsg()
	if err := msg.From(m.user); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(m.to); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	client, err := mail.NewClient(m.host,
		mail.WithPort(m.port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.user),
		mail.WithPassword(m.password),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send escalation mail: %w", err)
	}
	m.logger.Info("escalation alert sent", zap.String("phone", c.PhoneNumber))
	return nil
}
