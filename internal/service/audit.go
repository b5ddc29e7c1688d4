package service

import (
	"context"
	"time"

	"support_chat/internal/domain"
	"support_chat/internal/repository"
	"support_chat/pkg/logger"
)

type AuditService interface {
	LogEvent(ctx context.Context, actor domain.Principal, eventType string, payload map[string]interface{}) error
}

type auditService struct {
	auditRepo repository.AuditRepository
	log       logger.Logger
}

func NewAuditService(auditRepo repository.AuditRepository, log logger.Logger) AuditService {
	return &auditService{
		auditRepo: auditRepo,
		log:       log,
	}
}

func (s *auditService) LogEvent(ctx context.Context, actor domain.Principal, eventType string, payload map[string]interface{}) error {
	if payload == nil {
		payload = make(map[string]interface{})
	}

	auditLog := &domain.AuditLog{
		EventTime:     time.Now().UTC(),
		ActorIdentity: actor.Identity,
		ActorRole:     actor.Role,
		EventType:     eventType,
		Payload:       payload,
	}

	if err := s.auditRepo.CreateLog(ctx, auditLog); err != nil {
		s.log.Error("Failed to write audit event", "event_type", eventType, "error", err)
		return err
	}
	return nil
}
