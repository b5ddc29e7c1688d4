package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"support_chat/internal/domain"
	"support_chat/pkg/logger"

	_ "modernc.org/sqlite"
)

// SQLiteMessageRepository - встраиваемое хранилище для одного узла и разработки
type SQLiteMessageRepository struct {
	db  *sql.DB
	log logger.Logger
}

func NewSQLiteMessageRepository(dbPath string, log logger.Logger) (*SQLiteMessageRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Одна запись за раз, иначе SQLITE_BUSY под нагрузкой
	db.SetMaxOpenConns(1)

	repo := &SQLiteMessageRepository{db: db, log: log}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return repo, nil
}

func (r *SQLiteMessageRepository) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS chat_messages (
		id              TEXT PRIMARY KEY,
		identity        TEXT NOT NULL,
		origin          TEXT NOT NULL,
		kind            TEXT NOT NULL,
		text            TEXT NOT NULL DEFAULT '',
		attachment_data BLOB,
		attachment_name TEXT,
		attachment_mime TEXT,
		inquiry_type    TEXT,
		inquiry_details TEXT,
		created_at      INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_identity ON chat_messages(identity, created_at, id);
	`
	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (r *SQLiteMessageRepository) Append(ctx context.Context, message *domain.ChatMessage) error {
	var (
		attData                   []byte
		attName, attMime, inqType sql.NullString
		inqDetails                sql.NullString
	)
	if a := message.Attachment; a != nil {
		attData = a.Data
		attName = sql.NullString{String: a.FileName, Valid: true}
		attMime = sql.NullString{String: a.MimeType, Valid: true}
	}
	if ic := message.InquiryContext; ic != nil {
		inqType = sql.NullString{String: string(ic.Type), Valid: true}
		if len(ic.Details) > 0 {
			inqDetails = sql.NullString{String: string(ic.Details), Valid: true}
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, identity, origin, kind, text, attachment_data, attachment_name,
		                           attachment_mime, inquiry_type, inquiry_details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		message.ID, message.Identity, string(message.Origin), string(message.Kind), message.Text,
		attData, attName, attMime, inqType, inqDetails, message.Timestamp.UnixMicro(),
	)
	if err != nil {
		r.log.Error("Failed to insert chat message", "error", err, "identity", message.Identity)
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *SQLiteMessageRepository) ListByIdentity(ctx context.Context, identity string) ([]*domain.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, identity, origin, kind, text, attachment_data, attachment_name, attachment_mime,
		       inquiry_type, inquiry_details, created_at
		FROM chat_messages WHERE identity = ? ORDER BY created_at, id`, identity)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	return scanSQLiteMessages(rows)
}

func (r *SQLiteMessageRepository) ListAll(ctx context.Context) ([]*domain.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, identity, origin, kind, text, attachment_data, attachment_name, attachment_mime,
		       inquiry_type, inquiry_details, created_at
		FROM chat_messages ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	return scanSQLiteMessages(rows)
}

func scanSQLiteMessages(rows *sql.Rows) ([]*domain.ChatMessage, error) {
	defer rows.Close()

	messages := make([]*domain.ChatMessage, 0)
	for rows.Next() {
		var (
			m                         domain.ChatMessage
			origin, kind              string
			attData                   []byte
			attName, attMime, inqType sql.NullString
			inqDetails                sql.NullString
			createdAt                 int64
		)
		if err := rows.Scan(&m.ID, &m.Identity, &origin, &kind, &m.Text, &attData, &attName, &attMime,
			&inqType, &inqDetails, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Origin = domain.Origin(origin)
		m.Kind = domain.MessageKind(kind)
		m.Timestamp = time.UnixMicro(createdAt).UTC()
		if attName.Valid {
			m.Attachment = &domain.Attachment{Data: attData, FileName: attName.String, MimeType: attMime.String}
		}
		if inqType.Valid {
			m.InquiryContext = &domain.InquiryContext{Type: domain.InquiryType(inqType.String)}
			if inqDetails.Valid {
				m.InquiryContext.Details = json.RawMessage(inqDetails.String)
			}
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func (r *SQLiteMessageRepository) DeleteByIdentity(ctx context.Context, identity string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE identity = ?`, identity)
	if err != nil {
		r.log.Error("Failed to delete messages", "error", err, "identity", identity)
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteMessageRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteMessageRepository) Close() error {
	return r.db.Close()
}
