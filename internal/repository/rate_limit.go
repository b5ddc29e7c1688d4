package repository

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"support_chat/pkg/logger"
)

// RateLimitRepository - счетчики фиксированного окна
type RateLimitRepository interface {
	// Increment увеличивает счетчик ключа и возвращает новое значение;
	// окно стартует с первого инкремента
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

type rateLimitRepository struct {
	redis *redis.Client
	log   logger.Logger
}

func NewRateLimitRepository(redis *redis.Client, log logger.Logger) RateLimitRepository {
	return &rateLimitRepository{redis: redis, log: log}
}

func (r *rateLimitRepository) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	// TTL ставится в той же транзакции, что и INCR, ключ без окна не остается
	var count *redis.IntCmd
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, window)
		count = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		r.log.Error("Failed to increment rate limit", "error", err, "key", key)
		return 0, err
	}

	return count.Val(), nil
}

// memoryRateLimitRepository используется без Redis, счетчики живут в процессе
type memoryRateLimitRepository struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
	now      func() time.Time
}

type windowCounter struct {
	count     int64
	expiresAt time.Time
}

func NewMemoryRateLimitRepository() RateLimitRepository {
	return &memoryRateLimitRepository{
		counters: make(map[string]*windowCounter),
		now:      time.Now,
	}
}

func (r *memoryRateLimitRepository) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	c, ok := r.counters[key]
	if !ok || !now.Before(c.expiresAt) {
		// заодно чистим протухшие окна
		for k, old := range r.counters {
			if !now.Before(old.expiresAt) {
				delete(r.counters, k)
			}
		}
		c = &windowCounter{expiresAt: now.Add(window)}
		r.counters[key] = c
	}
	c.count++
	return c.count, nil
}
