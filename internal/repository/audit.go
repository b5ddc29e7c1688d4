package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"support_chat/internal/domain"
	"support_chat/pkg/logger"
)

type AuditRepository interface {
	CreateLog(ctx context.Context, log *domain.AuditLog) error
}

const postgresAuditSchema = `
CREATE TABLE IF NOT EXISTS chat_audit_log (
	id             BIGSERIAL PRIMARY KEY,
	event_time     TIMESTAMPTZ NOT NULL,
	actor_identity TEXT NOT NULL,
	actor_role     TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	payload        JSONB
)`

type auditRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewAuditRepository(db *pgxpool.Pool, log logger.Logger) AuditRepository {
	return &auditRepository{db: db, log: log}
}

func (r *auditRepository) CreateLog(ctx context.Context, auditLog *domain.AuditLog) error {
	payload, err := json.Marshal(auditLog.Payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	query := `
		INSERT INTO chat_audit_log (event_time, actor_identity, actor_role, event_type, payload)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = r.db.Exec(ctx, query,
		auditLog.EventTime, auditLog.ActorIdentity, string(auditLog.ActorRole),
		auditLog.EventType, payload,
	)
	if err != nil {
		r.log.Error("Failed to create audit log", "error", err)
		return err
	}
	return nil
}

// logAuditRepository пишет аудит в структурированный лог, когда Postgres не используется
type logAuditRepository struct {
	log logger.Logger
}

func NewLogAuditRepository(log logger.Logger) AuditRepository {
	return &logAuditRepository{log: log.With("component", "audit")}
}

func (r *logAuditRepository) CreateLog(_ context.Context, auditLog *domain.AuditLog) error {
	r.log.Info("Audit event",
		"event_type", auditLog.EventType,
		"actor_identity", auditLog.ActorIdentity,
		"actor_role", auditLog.ActorRole,
		"event_time", auditLog.EventTime,
		"payload", auditLog.Payload,
	)
	return nil
}
