package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"onboardingbot/internal/entities"
	"onboardingbot/internal/usecases"
)

// GetEscalated lists candidates waiting on a human operator.
func (h *Handler) GetEscalated(c *gin.Context) {
	candidates, err := h.store.ListByStatus(c.Request.Context(), entities.StatusEscalated)
	if err != nil {
		h.logger.Error("list escalated failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load candidates"})
		return
	}

	data := make([]gin.H, 0, len(candidates))
	for _, cand := range candidates {
		data = append(data, gin.H{
			"name":         cand.Name,
			"phone_number": cand.PhoneNumber,
		})
	}
	c.JSON(http.StatusOK, data)
}

// GetChatHistory returns one candidate's full transcript. An unknown phone
// number returns an empty history rather than an error, matching the panel's
// polling behavior.
func (h *Handler) GetChatHistory(c *gin.Context) {
	phone := entities.NormalizePhone(c.Query("phone"))
	cand, err := h.store.GetByPhone(c.Request.Context(), phone)
	if err != nil {
		h.logger.Error("load history failed", zap.String("phone", phone), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}
	if cand == nil {
		c.JSON(http.StatusOK, gin.H{"history": []entities.HistoryEntry{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": cand.History})
}

// GetAllChats lists every conversation with at least one message, newest
// first, with a last-message preview per row.
func (h *Handler) GetAllChats(c *gin.Context) {
	candidates, err := h.store.ListWithHistory(c.Request.Context())
	if err != nil {
		h.logger.Error("list chats failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load chats"})
		return
	}

	data := make([]gin.H, 0, len(candidates))
	for _, cand := range candidates {
		var last entities.HistoryEntry
		if len(cand.History) > 0 {
			last = cand.History[len(cand.History)-1]
		}
		data = append(data, gin.H{
			"name":         cand.Name,
			"phone_number": cand.PhoneNumber,
			"status":       cand.Status,
			"last_message": last.Text,
			"last_sender":  last.From,
			"last_updated": cand.LastUpdated.Format("2006-01-02 15:04"),
		})
	}
	c.JSON(http.StatusOK, data)
}

// SendAdminReply delivers an operator-authored message into the conversation.
func (h *Handler) SendAdminReply(c *gin.Context) {
	var req struct {
		PhoneNumber string `json:"phone_number"`
		Text        string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.PhoneNumber == "" || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phone_number and text are required"})
		return
	}

	if err := h.engine.AdminReply(c.Request.Context(), req.PhoneNumber, req.Text); err != nil {
		if errors.Is(err, usecases.ErrCandidateNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"sent": false, "error": "Candidate not found"})
			return
		}
		h.logger.Error("admin reply failed", zap.String("phone", req.PhoneNumber), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"sent": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

// ResumeBot returns an escalated conversation to automated handling.
func (h *Handler) ResumeBot(c *gin.Context) {
	var req struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.PhoneNumber == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phone_number is required"})
		return
	}

	if err := h.engine.Resume(c.Request.Context(), req.PhoneNumber); err != nil {
		if errors.Is(err, usecases.ErrCandidateNotFound) {
			c.JSON(http.StatusOK, gin.H{"resumed": false})
			return
		}
		h.logger.Error("resume failed", zap.String("phone", req.PhoneNumber), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"resumed": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resumed": true})
}

// GetReportStats serves the aggregate engagement report.
func (h *Handler) GetReportStats(c *gin.Context) {
	report, err := h.reports.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("report stats failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// UploadSpreadsheet imports candidates from an uploaded xlsx file and sends
// the onboarding template to each new one.
func (h *Handler) UploadSpreadsheet(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer file.Close()

	result, err := h.importer.ImportXLSX(c.Request.Context(), file)
	if err != nil {
		h.logger.Error("spreadsheet import failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"added":   result.Added,
		"skipped": result.Skipped,
		"failed":  result.Failed,
	})
}
