package repository

import (
	"context"
	"sync"

	"support_chat/internal/domain"
)

// MemoryMessageRepository хранит журнал в памяти процесса (разработка и тесты)
type MemoryMessageRepository struct {
	mu         sync.RWMutex
	byIdentity map[string][]*domain.ChatMessage
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{byIdentity: make(map[string][]*domain.ChatMessage)}
}

func (r *MemoryMessageRepository) Append(_ context.Context, message *domain.ChatMessage) error {
	copied := *message
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byIdentity[message.Identity] = append(r.byIdentity[message.Identity], &copied)
	domain.SortMessages(r.byIdentity[message.Identity])
	return nil
}

func (r *MemoryMessageRepository) ListByIdentity(_ context.Context, identity string) ([]*domain.ChatMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyMessages(r.byIdentity[identity]), nil
}

func (r *MemoryMessageRepository) ListAll(_ context.Context) ([]*domain.ChatMessage, error) {
	r.mu.RLock()
	all := make([]*domain.ChatMessage, 0)
	for _, messages := range r.byIdentity {
		all = append(all, copyMessages(messages)...)
	}
	r.mu.RUnlock()

	domain.SortMessages(all)
	return all, nil
}

func (r *MemoryMessageRepository) DeleteByIdentity(_ context.Context, identity string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := int64(len(r.byIdentity[identity]))
	delete(r.byIdentity, identity)
	return count, nil
}

func (r *MemoryMessageRepository) Ping(_ context.Context) error {
	return nil
}

func copyMessages(messages []*domain.ChatMessage) []*domain.ChatMessage {
	result := make([]*domain.ChatMessage, 0, len(messages))
	for _, m := range messages {
		copied := *m
		result = append(result, &copied)
	}
	return result
}
