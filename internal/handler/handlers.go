package handler

import (
	"support_chat/internal/config"
	"support_chat/internal/realtime"
	"support_chat/internal/repository"
	"support_chat/internal/service"
	"support_chat/pkg/logger"
)

type Handlers struct {
	Health       *HealthHandler
	Chat         *ChatHandler
	Conversation *ConversationHandler
	Export       *ExportHandler
	WebSocket    *WebSocketHandler
}

func NewHandlers(services *service.Services, repos *repository.Repositories, registry realtime.Registry, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:       NewHealthHandler(repos.Messages, registry, cfg),
		Chat:         NewChatHandler(services.Conversation, log),
		Conversation: NewConversationHandler(services.Conversation, log),
		Export:       NewExportHandler(services.Export, log),
		WebSocket:    NewWebSocketHandler(services.Relay, services.Conversation, registry, cfg, log.With("component", "websocket")),
	}
}
