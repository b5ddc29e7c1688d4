package repository

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"support_chat/internal/config"
	"support_chat/pkg/logger"
)

type Repositories struct {
	Messages  MessageRepository
	Artifacts ArtifactRepository
	Audit     AuditRepository
	RateLimit RateLimitRepository

	closers []func() error
}

// NewRepositories выбирает хранилище сообщений по cfg.Store.Driver.
// db нужен только для postgres, rdb - для redis; без rdb лимиты считаются в памяти.
func NewRepositories(cfg *config.Config, db *pgxpool.Pool, rdb *redis.Client, log logger.Logger) (*Repositories, error) {
	repos := &Repositories{}

	switch cfg.Store.Driver {
	case config.StorePostgres:
		if db == nil {
			return nil, fmt.Errorf("postgres message store requires a database pool")
		}
		repos.Messages = NewPostgresMessageRepository(db, log)
		repos.Audit = NewAuditRepository(db, log)
	case config.StoreRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis message store requires a redis client")
		}
		repos.Messages = NewRedisMessageRepository(rdb, log)
	case config.StoreSQLite:
		sqliteRepo, err := NewSQLiteMessageRepository(cfg.SQLite.Path, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		repos.Messages = sqliteRepo
		repos.closers = append(repos.closers, sqliteRepo.Close)
	case config.StoreMemory:
		log.Warn("Using in-memory message store, history is lost on restart")
		repos.Messages = NewMemoryMessageRepository()
	default:
		return nil, fmt.Errorf("unknown message store %q", cfg.Store.Driver)
	}

	if repos.Audit == nil {
		repos.Audit = NewLogAuditRepository(log)
	}

	if rdb != nil {
		repos.RateLimit = NewRateLimitRepository(rdb, log)
	} else {
		log.Warn("Redis is not configured, rate limit counters are per process")
		repos.RateLimit = NewMemoryRateLimitRepository()
	}

	artifacts, err := NewFileArtifactRepository(cfg.Export.Dir, log)
	if err != nil {
		repos.Close()
		return nil, err
	}
	repos.Artifacts = artifacts

	log.Info("Repositories initialized", "message_store", cfg.Store.Driver, "export_dir", cfg.Export.Dir)

	return repos, nil
}

func (r *Repositories) Close() error {
	var firstErr error
	for _, closeFn := range r.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
