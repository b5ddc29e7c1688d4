package repository

import (
	"context"

	"support_chat/internal/domain"
)

// MessageRepository - append-only журнал сообщений чата, ключ - identity.
// Списки возвращаются в порядке (timestamp, id).
type MessageRepository interface {
	Append(ctx context.Context, message *domain.ChatMessage) error
	ListByIdentity(ctx context.Context, identity string) ([]*domain.ChatMessage, error)
	ListAll(ctx context.Context) ([]*domain.ChatMessage, error)
	// DeleteByIdentity удаляет все сообщения identity одной атомарной операцией
	DeleteByIdentity(ctx context.Context, identity string) (int64, error)
	Ping(ctx context.Context) error
}
