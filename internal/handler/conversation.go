package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"support_chat/internal/service"
	"support_chat/pkg/logger"
)

type ConversationHandler struct {
	conversations service.ConversationService
	log           logger.Logger
}

func NewConversationHandler(conversations service.ConversationService, log logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		log:           log,
	}
}

func (h *ConversationHandler) List(c *gin.Context) {
	summaries, err := h.conversations.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

func (h *ConversationHandler) GetMessages(c *gin.Context) {
	identity := c.Param("identity")

	messages, status, err := h.conversations.History(c.Request.Context(), identity)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"identity": identity,
		"status":   status,
		"messages": messages,
	})
}
