package service

import (
	"context"
	"fmt"

	"support_chat/internal/domain"
	"support_chat/internal/realtime"
	"support_chat/internal/repository"
	apperrors "support_chat/pkg/errors"
	"support_chat/pkg/logger"
)

type ConversationService interface {
	// List возвращает беседы, начиная с самой свежей. Клиенты онлайн без сообщений тоже попадают в список.
	List(ctx context.Context) ([]domain.ConversationSummary, error)
	History(ctx context.Context, identity string) ([]*domain.ChatMessage, domain.Status, error)
}

type conversationService struct {
	messages repository.MessageRepository
	registry realtime.Registry
	log      logger.Logger
}

func NewConversationService(messages repository.MessageRepository, registry realtime.Registry, log logger.Logger) ConversationService {
	return &conversationService{
		messages: messages,
		registry: registry,
		log:      log,
	}
}

func (s *conversationService) List(ctx context.Context) ([]domain.ConversationSummary, error) {
	all, err := s.messages.ListAll(ctx)
	if err != nil {
		s.log.Error("Failed to list messages", "error", err)
		return nil, fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}

	groups := domain.GroupByIdentity(all)
	for _, identity := range s.registry.OnlineIdentities() {
		if _, ok := groups[identity]; !ok {
			groups[identity] = nil
		}
	}

	summaries := make([]domain.ConversationSummary, 0, len(groups))
	for identity, messages := range groups {
		summary := domain.Summarize(identity, messages)
		summary.Online = s.registry.IsOnline(identity)
		summaries = append(summaries, summary)
	}
	domain.SortSummaries(summaries)
	return summaries, nil
}

func (s *conversationService) History(ctx context.Context, identity string) ([]*domain.ChatMessage, domain.Status, error) {
	identity = domain.NormalizeIdentity(identity)
	if identity == "" || identity == domain.AdminIdentity {
		return nil, "", fmt.Errorf("%w: customer identity is required", apperrors.ErrValidation)
	}

	messages, err := s.messages.ListByIdentity(ctx, identity)
	if err != nil {
		s.log.Error("Failed to load conversation", "identity", identity, "error", err)
		return nil, "", fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}
	domain.SortMessages(messages)
	return messages, domain.StatusOf(messages), nil
}
