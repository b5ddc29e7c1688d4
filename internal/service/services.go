package service

import (
	"support_chat/internal/config"
	"support_chat/internal/events"
	"support_chat/internal/realtime"
	"support_chat/internal/repository"
	"support_chat/pkg/logger"
)

type Services struct {
	Auth         AuthService
	Relay        RelayService
	Conversation ConversationService
	Export       ExportService
	RateLimit    RateLimitService
	Audit        AuditService
}

func NewServices(
	repos *repository.Repositories,
	registry realtime.Registry,
	publisher events.Publisher,
	cfg *config.Config,
	log logger.Logger,
) *Services {
	rateLimit := NewRateLimitService(repos.RateLimit, log)
	audit := NewAuditService(repos.Audit, log)
	relay := NewRelayService(repos.Messages, registry, rateLimit, publisher, NewClock(nil), cfg, log.With("component", "relay"))

	return &Services{
		Auth:         NewAuthService(cfg.JWT, log),
		Relay:        relay,
		Conversation: NewConversationService(repos.Messages, registry, log),
		Export:       NewExportService(repos.Messages, repos.Artifacts, relay, audit, publisher, cfg, log.With("component", "export")),
		RateLimit:    rateLimit,
		Audit:        audit,
	}
}
