package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"onboardingbot/internal/entities"
	"onboardingbot/internal/interfaces"
	"onboardingbot/internal/usecases"
)

// Handler wires the webhook and operator endpoints to the usecases.
type Handler struct {
	engine      *usecases.ConversationEngine
	importer    *usecases.ImportService
	reports     *usecases.ReportService
	store       interfaces.CandidateStore
	jobs        interfaces.JobRunner
	verifyToken string
	logger      *zap.Logger
}

func NewHandler(
	engine *usecases.ConversationEngine,
	importer *usecases.ImportService,
	reports *usecases.ReportService,
	store interfaces.CandidateStore,
	jobs interfaces.JobRunner,
	verifyToken string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		engine:      engine,
		importer:    importer,
		reports:     reports,
		store:       store,
		jobs:        jobs,
		verifyToken: verifyToken,
		logger:      logger,
	}
}

func SetupRoutes(r *gin.Engine, h *Handler, auth *usecases.AuthUsecase, middleware *Middleware) {
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(10 << 20))
	r.Use(middleware.CORSMiddleware())

	// Meta webhook (public; Meta authenticates via the verify handshake)
	r.GET("/webhook", h.VerifyWebhook)
	r.POST("/webhook", h.ReceiveWebhook)

	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/login", func(c *gin.Context) {
			var loginReq struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&loginReq); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			token, err := auth.Login(c.Request.Context(), loginReq.Username, loginReq.Password)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token})
		})
	}

	api := r.Group("/api")
	api.Use(middleware.AuthRequired())
	api.Use(middleware.RateLimitPerUser(5, 10))
	{
		api.GET("/candidates/escalated", h.GetEscalated)
		api.GET("/candidates/history", h.GetChatHistory)
		api.GET("/candidates/chats", h.GetAllChats)
		api.POST("/candidates/reply", h.SendAdminReply)
		api.POST("/candidates/resume", h.ResumeBot)
		api.GET("/reports/stats", h.GetReportStats)
		api.POST("/candidates/import", h.UploadSpreadsheet)
	}
}

// metaWebhookPayload is the slice of the Cloud API notification we consume.
type metaWebhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From string `json:"from"`
					ID   string `json:"id"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// VerifyWebhook answers Meta's subscription handshake.
func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	c.String(http.StatusForbidden, "Verification failed")
}

// ReceiveWebhook acks immediately and hands the notification to the background
// runner. Meta retries on anything but a fast 200, so nothing model- or
// database-bound may run on this path.
func (h *Handler) ReceiveWebhook(c *gin.Context) {
	var payload metaWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Warn("unparseable webhook payload", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}

	if msg, ok := extractInbound(payload); ok {
		h.jobs.Enqueue("process-inbound", func(ctx context.Context) {
			h.engine.ProcessInbound(ctx, msg)
		})
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// extractInbound pulls the first text message out of a notification. Status
// callbacks and other non-message notifications return ok=false.
func extractInbound(p metaWebhookPayload) (entities.InboundMessage, bool) {
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return entities.InboundMessage{}, false
	}
	value := p.Entry[0].Changes[0].Value
	if len(value.Messages) == 0 {
		return entities.InboundMessage{}, false
	}
	m := value.Messages[0]
	if m.From == "" || m.Text.Body == "" {
		return entities.InboundMessage{}, false
	}
	return entities.InboundMessage{
		From:      m.From,
		Text:      m.Text.Body,
		MessageID: m.ID,
	}, true
}
