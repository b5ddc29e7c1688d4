package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"support_chat/internal/config"
	"support_chat/internal/realtime"
	"support_chat/internal/repository"
)

type HealthHandler struct {
	messages repository.MessageRepository
	registry realtime.Registry
	store    string
}

func NewHealthHandler(messages repository.MessageRepository, registry realtime.Registry, cfg *config.Config) *HealthHandler {
	return &HealthHandler{
		messages: messages,
		registry: registry,
		store:    cfg.Store.Driver,
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.messages.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "degraded",
			"service": "support-chat",
			"store":   h.store,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"service":      "support-chat",
		"store":        h.store,
		"admin_online": h.registry.IsAdminConnected(),
	})
}
