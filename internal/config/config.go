package config

import (
	"fmt"
	"os"
	"strconv"
)

// EscalationMode controls where the scored (tier-2) escalation check runs
// relative to the reply: after it in the background (canonical) or before it,
// blocking the reply.
type EscalationMode string

const (
	EscalationBackground EscalationMode = "background"
	EscalationBlocking   EscalationMode = "blocking"
)

// Config is the process-wide configuration, loaded once in main and passed
// explicitly to constructors.
type Config struct {
	Port        string
	DatabaseURL string

	// Meta WhatsApp Cloud API
	VerifyToken   string
	AccessToken   string
	PhoneNumberID string

	// OpenAI
	OpenAIKey       string
	MainModel       string
	ClassifierModel string

	// Operator notification (SMTP)
	SMTPHost        string
	SMTPPort        int
	SMTPUser        string
	SMTPPassword    string
	AdminAlertEmail string

	JWTSecret string

	KnowledgeBasePath string
	EscalationMode    EscalationMode
}

// Load reads configuration from the environment. godotenv is applied by the
// caller before this runs.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		VerifyToken:       os.Getenv("VERIFY_TOKEN"),
		AccessToken:       os.Getenv("ACCESS_TOKEN"),
		PhoneNumberID:     os.Getenv("PHONE_NUMBER_ID"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		MainModel:         getEnv("MAIN_MODEL", "gpt-4o"),
		ClassifierModel:   getEnv("CLASSIFIER_MODEL", "gpt-4o-mini"),
		SMTPHost:          os.Getenv("SMTP_HOST"),
		SMTPUser:          os.Getenv("SMTP_USER"),
		SMTPPassword:      os.Getenv("SMTP_PASSWORD"),
		AdminAlertEmail:   os.Getenv("ADMIN_ALERT_EMAIL"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		KnowledgeBasePath: getEnv("KNOWLEDGE_BASE_PATH", "data/onboarding_knowledge.txt"),
		EscalationMode:    EscalationMode(getEnv("ESCALATION_MODE", string(EscalationBackground))),
	}

	port, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}
	cfg.SMTPPort = port

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.EscalationMode != EscalationBackground && cfg.EscalationMode != EscalationBlocking {
		return nil, fmt.Errorf("invalid ESCALATION_MODE %q", cfg.EscalationMode)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
