package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"support_chat/internal/middleware"
	"support_chat/internal/service"
	"support_chat/pkg/logger"
)

// ChatHandler - HTTP доступ клиента к собственной беседе
type ChatHandler struct {
	conversations service.ConversationService
	log           logger.Logger
}

func NewChatHandler(conversations service.ConversationService, log logger.Logger) *ChatHandler {
	return &ChatHandler{
		conversations: conversations,
		log:           log,
	}
}

func (h *ChatHandler) GetMessages(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	if principal.IsAdmin() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "use /admin/conversations/:identity/messages"})
		return
	}

	messages, status, err := h.conversations.History(c.Request.Context(), principal.Identity)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"identity": principal.Identity,
		"status":   status,
		"messages": messages,
	})
}
