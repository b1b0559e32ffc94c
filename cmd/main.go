package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"onboardingbot/internal/config"
	"onboardingbot/internal/infrastructure"
	httpiface "onboardingbot/internal/interfaces/http"
	"onboardingbot/internal/repository"
	"onboardingbot/internal/usecases"
)

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	pgClient, err := infrastructure.NewPostgresClient(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pgClient.Close()

	candidateRepo := repository.NewCandidateRepository(pgClient.Pool)
	adminRepo := repository.NewAdminRepository(pgClient.Pool)

	authUsecase := usecases.NewAuthUsecase(adminRepo, cfg.JWTSecret)
	if user, pass := os.Getenv("ADMIN_USERNAME"), os.Getenv("ADMIN_PASSWORD"); user != "" && pass != "" {
		if err := authUsecase.EnsureAdmin(context.Background(), user, pass); err != nil {
			logger.Warn("failed to ensure admin account", zap.Error(err))
		}
	}

	knowledgeBase := ""
	if data, err := os.ReadFile(cfg.KnowledgeBasePath); err != nil {
		logger.Warn("knowledge base not loaded", zap.String("path", cfg.KnowledgeBasePath), zap.Error(err))
	} else {
		knowledgeBase = string(data)
	}

	modelClient := infrastructure.NewOpenAIClient(cfg.OpenAIKey)
	messenger := infrastructure.NewWhatsAppBusinessClient(cfg.AccessToken, cfg.PhoneNumberID, logger)
	notifier := infrastructure.NewEscalationMailer(
		cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.AdminAlertEmail, logger)
	jobs := infrastructure.NewBackgroundRunner(16, logger)

	escalator := usecases.NewEscalator(modelClient, cfg.ClassifierModel, logger)
	orchestrator := usecases.NewOrchestrator(modelClient, candidateRepo, cfg.MainModel, knowledgeBase, logger)
	memory := usecases.NewMemoryManager(modelClient, candidateRepo, cfg.ClassifierModel, logger)

	engine := usecases.NewConversationEngine(
		candidateRepo, messenger, notifier, jobs,
		escalator, orchestrator, memory, cfg.EscalationMode, logger)
	importer := usecases.NewImportService(candidateRepo, messenger, logger)
	reports := usecases.NewReportService(candidateRepo)

	handler := httpiface.NewHandler(engine, importer, reports, candidateRepo, jobs, cfg.VerifyToken, logger)
	middleware := httpiface.NewMiddleware(cfg.JWTSecret)

	r := gin.Default()
	httpiface.SetupRoutes(r, handler, authUsecase, middleware)

	logger.Info("starting server",
		zap.String("port", cfg.Port),
		zap.String("escalation_mode", string(cfg.EscalationMode)))
	if err := r.Run("0.0.0.0:" + cfg.Port); err != nil {
		logger.Fatal("http server exited", zap.Error(err))
	}
}
