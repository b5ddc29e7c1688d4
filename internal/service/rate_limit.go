package service

import (
	"context"

	"support_chat/internal/domain"
	"support_chat/internal/repository"
	"support_chat/pkg/logger"
)

type RateLimitService interface {
	// Allow засчитывает попытку и сообщает, укладывается ли она в лимит.
	// Ошибка хранилища счетчиков не блокирует клиента.
	Allow(ctx context.Context, rule domain.RateLimitRule) bool
}

type rateLimitService struct {
	rateLimitRepo repository.RateLimitRepository
	log           logger.Logger
}

func NewRateLimitService(rateLimitRepo repository.RateLimitRepository, log logger.Logger) RateLimitService {
	return &rateLimitService{
		rateLimitRepo: rateLimitRepo,
		log:           log,
	}
}

func (s *rateLimitService) Allow(ctx context.Context, rule domain.RateLimitRule) bool {
	if !rule.Enabled() {
		return true
	}
	count, err := s.rateLimitRepo.Increment(ctx, rule.CounterKey(), rule.Window)
	if err != nil {
		s.log.Warn("Rate limit check failed, allowing request", "scope", rule.Scope, "error", err)
		return true
	}
	return count <= int64(rule.Limit)
}
