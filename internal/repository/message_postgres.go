package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"support_chat/internal/domain"
	"support_chat/pkg/logger"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS chat_messages (
		id               TEXT PRIMARY KEY,
		identity         TEXT NOT NULL,
		origin           TEXT NOT NULL,
		kind             TEXT NOT NULL,
		text             TEXT NOT NULL DEFAULT '',
		attachment_data  BYTEA,
		attachment_name  TEXT,
		attachment_mime  TEXT,
		inquiry_type     TEXT,
		inquiry_details  TEXT,
		created_at       TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_identity ON chat_messages (identity, created_at, id);
`

const selectMessageColumns = `
	SELECT id, identity, origin, kind, text, attachment_data, attachment_name, attachment_mime,
	       inquiry_type, inquiry_details, created_at
	FROM chat_messages
`

type postgresMessageRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewPostgresMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &postgresMessageRepository{db: db, log: log}
}

// EnsurePostgresSchema создает таблицы сообщений и аудита, если их нет
func EnsurePostgresSchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range []string{postgresSchema, postgresAuditSchema} {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (r *postgresMessageRepository) Append(ctx context.Context, message *domain.ChatMessage) error {
	query := `
		INSERT INTO chat_messages (id, identity, origin, kind, text, attachment_data, attachment_name,
		                           attachment_mime, inquiry_type, inquiry_details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	var (
		attData          []byte
		attName, attMime *string
		inquiryType      *string
		inquiryDetails   *string
	)
	if a := message.Attachment; a != nil {
		attData = a.Data
		attName = &a.FileName
		attMime = &a.MimeType
	}
	if ic := message.InquiryContext; ic != nil {
		t := string(ic.Type)
		inquiryType = &t
		inquiryDetails = detailsColumn(ic.Details)
	}

	_, err := r.db.Exec(ctx, query,
		message.ID, message.Identity, string(message.Origin), string(message.Kind), message.Text,
		attData, attName, attMime, inquiryType, inquiryDetails, message.Timestamp,
	)
	if err != nil {
		r.log.Error("Failed to insert chat message", "error", err, "identity", message.Identity)
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (r *postgresMessageRepository) ListByIdentity(ctx context.Context, identity string) ([]*domain.ChatMessage, error) {
	rows, err := r.db.Query(ctx, selectMessageColumns+` WHERE identity = $1 ORDER BY created_at, id`, identity)
	if err != nil {
		r.log.Error("Failed to list messages", "error", err, "identity", identity)
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return r.scanMessages(rows)
}

func (r *postgresMessageRepository) ListAll(ctx context.Context) ([]*domain.ChatMessage, error) {
	rows, err := r.db.Query(ctx, selectMessageColumns+` ORDER BY created_at, id`)
	if err != nil {
		r.log.Error("Failed to list all messages", "error", err)
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return r.scanMessages(rows)
}

func (r *postgresMessageRepository) scanMessages(rows pgx.Rows) ([]*domain.ChatMessage, error) {
	defer rows.Close()

	messages := make([]*domain.ChatMessage, 0)
	for rows.Next() {
		var (
			m                         domain.ChatMessage
			origin, kind              string
			attData                   []byte
			attName, attMime, inqType *string
			inqDetails                *string
		)
		err := rows.Scan(
			&m.ID, &m.Identity, &origin, &kind, &m.Text, &attData, &attName, &attMime,
			&inqType, &inqDetails, &m.Timestamp,
		)
		if err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Origin = domain.Origin(origin)
		m.Kind = domain.MessageKind(kind)
		m.Timestamp = m.Timestamp.UTC()
		if attName != nil {
			m.Attachment = &domain.Attachment{Data: attData, FileName: *attName}
			if attMime != nil {
				m.Attachment.MimeType = *attMime
			}
		}
		if inqType != nil {
			m.InquiryContext = &domain.InquiryContext{
				Type:    domain.InquiryType(*inqType),
				Details: detailsFromColumn(inqDetails),
			}
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

// Детали обращения хранятся текстом: JSONB переупорядочивает ключи и
// убирает пробелы, а клиент должен получить их байт в байт
func detailsColumn(details json.RawMessage) *string {
	if len(details) == 0 {
		return nil
	}
	s := string(details)
	return &s
}

func detailsFromColumn(column *string) json.RawMessage {
	if column == nil || *column == "" {
		return nil
	}
	return json.RawMessage(*column)
}

func (r *postgresMessageRepository) DeleteByIdentity(ctx context.Context, identity string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM chat_messages WHERE identity = $1`, identity)
	if err != nil {
		r.log.Error("Failed to delete messages", "error", err, "identity", identity)
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *postgresMessageRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
