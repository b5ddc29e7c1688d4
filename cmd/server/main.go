package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"support_chat/internal/config"
	"support_chat/internal/events"
	"support_chat/internal/handler"
	"support_chat/internal/middleware"
	"support_chat/internal/realtime"
	"support_chat/internal/repository"
	"support_chat/internal/service"
	"support_chat/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	appLogger := logger.New(cfg.Log.Level, cfg.IsProduction())
	defer appLogger.Sync()

	ctx := context.Background()

	// PostgreSQL нужен только для хранилища postgres
	var dbPool *pgxpool.Pool
	if cfg.Store.Driver == config.StorePostgres {
		dbPool, err = connectPostgres(ctx, cfg.Database)
		if err != nil {
			appLogger.Fatal("Failed to connect to database", "error", err)
		}
		defer dbPool.Close()

		if err := repository.EnsurePostgresSchema(ctx, dbPool); err != nil {
			appLogger.Fatal("Failed to apply database schema", "error", err)
		}
		appLogger.Info("Database connection established")
	}

	// Redis: хранилище сообщений (redis) и счетчики лимитов; без REDIS_ADDR лимиты в памяти
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			if cfg.Store.Driver == config.StoreRedis {
				appLogger.Fatal("Failed to connect to Redis", "error", err)
			}
			appLogger.Warn("Redis unavailable, rate limits fall back to process memory", "error", err)
			rdb.Close()
			rdb = nil
		} else {
			appLogger.Info("Redis connection established")
		}
	}

	// Шина событий
	publisher := newPublisher(ctx, cfg.AMQP, appLogger)
	defer publisher.Close()

	// Инициализация репозиториев
	repos, err := repository.NewRepositories(cfg, dbPool, rdb, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize repositories", "error", err)
	}
	defer repos.Close()

	registry := realtime.NewRegistry(appLogger.With("component", "registry"), presencePublisher(publisher, cfg.AMQP.Producer))

	// Инициализация сервисов
	services := service.NewServices(repos, registry, publisher, cfg, appLogger)

	// Инициализация middleware
	authMiddleware := middleware.NewAuthMiddleware(services.Auth, appLogger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.RateLimit, cfg.Chat.AdminRateLimit, cfg.Chat.AdminRateWindow, appLogger)

	// Инициализация handlers
	handlers := handler.NewHandlers(services, repos, registry, cfg, appLogger)

	// Настройка роутера
	router := handler.SetupRouter(handlers, authMiddleware, rateLimitMiddleware, cfg, appLogger)

	// Запуск HTTP сервера
	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout не ставим: он ограничил бы загрузку больших артефактов
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		appLogger.Info("Starting server", "addr", srv.Addr, "message_store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Ожидание сигнала для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}

	appLogger.Info("Server exited")
}

func connectPostgres(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConnections)
	poolCfg.MaxConnIdleTime = cfg.MaxIdleTime
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// newPublisher подключается к AMQP, если задан AMQP_URL; иначе события только логируются
func newPublisher(ctx context.Context, cfg config.AMQPConfig, log logger.Logger) events.Publisher {
	var next events.Publisher
	if cfg.URL == "" {
		log.Info("AMQP_URL is not set, domain events are disabled")
		next = events.NewFallback(log)
	} else {
		dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		rmq, err := events.NewRabbitPublisher(dialCtx, events.ConnectionOptions{
			URL:           cfg.URL,
			Exchange:      cfg.Exchange,
			RetryAttempts: 5,
			Delay:         time.Second,
		}, log)
		if err != nil {
			log.Error("Failed to connect to AMQP broker, domain events are disabled", "error", err)
			next = events.NewFallback(log)
		} else {
			log.Info("AMQP publisher connected", "exchange", cfg.Exchange)
			next = rmq
		}
	}
	return events.NewAsyncPublisher(next, 1024, 5*time.Second, log)
}

func presencePublisher(publisher events.Publisher, producer string) realtime.PresenceListener {
	return func(identity string, online bool) {
		envelope := events.NewEnvelope(events.TypePresenceChanged, producer, events.PresenceChanged{Identity: identity, Online: online})
		_ = publisher.Publish(context.Background(), events.TypePresenceChanged, envelope)
	}
}
