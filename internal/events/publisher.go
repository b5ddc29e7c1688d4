package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"support_chat/pkg/logger"
)

// Publisher отправляет доменные события в шину. Ключ маршрутизации - тип события.
type Publisher interface {
	Publish(ctx context.Context, key string, msg Envelope) error
	Close() error
}

type rmqClient struct {
	conn     *amqp091.Connection
	exchange string
	log      logger.Logger
}

type ConnectionOptions struct {
	URL           string
	Exchange      string
	RetryAttempts int
	Delay         time.Duration
}

const maxDialDelay = 60 * time.Second

// NewRabbitPublisher подключается к брокеру и объявляет topic exchange
func NewRabbitPublisher(ctx context.Context, opts ConnectionOptions, log logger.Logger) (Publisher, error) {
	conn, err := DialWithRetry(ctx, opts, log)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(opts.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", opts.Exchange, err)
	}

	return &rmqClient{conn: conn, exchange: opts.Exchange, log: log}, nil
}

// DialWithRetry - экспоненциальная задержка между попытками, прерывается контекстом
func DialWithRetry(ctx context.Context, opts ConnectionOptions, log logger.Logger) (*amqp091.Connection, error) {
	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error

	for i := 1; i <= attempts; i++ {
		conn, err := amqp091.Dial(opts.URL)
		if err == nil {
			if i > 1 {
				log.Info("Connected to AMQP broker", "attempt", i)
			}
			return conn, nil
		}
		lastErr = err
		if i == attempts {
			break
		}

		sleep := opts.Delay * time.Duration(math.Pow(2, float64(i-1)))
		if sleep > maxDialDelay {
			sleep = maxDialDelay
		}
		log.Warn("AMQP dial failed", "attempt", i, "sleep", sleep, "error", err)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.New("dial cancelled: " + ctx.Err().Error())
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("failed to connect to AMQP broker after %d attempts: %w", attempts, lastErr)
}

func (r *rmqClient) Publish(ctx context.Context, key string, msg Envelope) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	msgID := msg.Meta.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}
	cid := msgID
	if msg.Meta.CorrelationID != nil {
		cid = *msg.Meta.CorrelationID
	}

	err = ch.PublishWithContext(ctx, r.exchange, key, false, false, amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     msgID,
		CorrelationId: cid,
		Timestamp:     msg.Meta.Time,
		Type:          msg.Meta.Type,
		Body:          body,
	})
	if err == nil {
		r.log.Debug("Event published", "key", key, "exchange", r.exchange)
	}
	return err
}

func (r *rmqClient) Close() error {
	return r.conn.Close()
}

// FallbackPublisher используется, когда брокер не настроен
type FallbackPublisher struct {
	log logger.Logger
}

func NewFallback(log logger.Logger) Publisher {
	return &FallbackPublisher{log: log}
}

func (p *FallbackPublisher) Publish(_ context.Context, key string, _ Envelope) error {
	p.log.Debug("Event bus disabled, skipped publish", "key", key)
	return nil
}

func (p *FallbackPublisher) Close() error {
	return nil
}
