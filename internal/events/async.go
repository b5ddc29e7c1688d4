package events

import (
	"context"
	"sync"
	"time"

	"support_chat/pkg/logger"
)

// AsyncPublisher публикует из фоновой горутины, чтобы медленный брокер
// не задерживал relay. При переполнении очереди событие отбрасывается.
type AsyncPublisher struct {
	next    Publisher
	queue   chan queuedEvent
	timeout time.Duration
	log     logger.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

type queuedEvent struct {
	key string
	msg Envelope
}

func NewAsyncPublisher(next Publisher, buffer int, timeout time.Duration, log logger.Logger) *AsyncPublisher {
	p := &AsyncPublisher{
		next:    next,
		queue:   make(chan queuedEvent, buffer),
		timeout: timeout,
		log:     log,
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for ev := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.next.Publish(ctx, ev.key, ev.msg); err != nil {
			p.log.Warn("Failed to publish event", "key", ev.key, "error", err)
		}
		cancel()
	}
}

// Publish не блокирует; ctx не используется, у фоновой отправки свой таймаут
func (p *AsyncPublisher) Publish(_ context.Context, key string, msg Envelope) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil
	}
	select {
	case p.queue <- queuedEvent{key: key, msg: msg}:
	default:
		p.log.Warn("Event queue full, dropping event", "key", key)
	}
	return nil
}

// Close дожидается отправки очереди и закрывает нижний publisher
func (p *AsyncPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.next.Close()
}
