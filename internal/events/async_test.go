package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"support_chat/pkg/logger"
)

type collectingPublisher struct {
	mu     sync.Mutex
	keys   []string
	closed bool
	delay  time.Duration
}

func (p *collectingPublisher) Publish(ctx context.Context, key string, _ Envelope) error {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return nil
}

func (p *collectingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestAsyncPublisher_DrainsOnClose(t *testing.T) {
	t.Parallel()
	next := &collectingPublisher{}
	p := NewAsyncPublisher(next, 16, time.Second, logger.NewNop())

	for i := 0; i < 10; i++ {
		if err := p.Publish(context.Background(), TypeMessageCreated, NewEnvelope(TypeMessageCreated, "test", nil)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	next.mu.Lock()
	defer next.mu.Unlock()
	if len(next.keys) != 10 || !next.closed {
		t.Errorf("delivered %d events, closed %v", len(next.keys), next.closed)
	}

	// после Close публикация молча игнорируется
	if err := p.Publish(context.Background(), TypeMessageCreated, Envelope{}); err != nil {
		t.Errorf("Publish after Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestAsyncPublisher_DropsWhenFull(t *testing.T) {
	t.Parallel()
	next := &collectingPublisher{delay: 50 * time.Millisecond}
	p := NewAsyncPublisher(next, 1, time.Second, logger.NewNop())

	start := time.Now()
	for i := 0; i < 20; i++ {
		_ = p.Publish(context.Background(), TypePresenceChanged, Envelope{})
	}
	if elapsed := time.Since(start); elapsed > 40*time.Millisecond {
		t.Errorf("Publish blocked for %s", elapsed)
	}
	_ = p.Close()

	next.mu.Lock()
	defer next.mu.Unlock()
	if len(next.keys) >= 20 || len(next.keys) == 0 {
		t.Errorf("expected some events to be dropped, delivered %d", len(next.keys))
	}
}

func TestEnvelope(t *testing.T) {
	t.Parallel()
	e := NewEnvelope(TypeMessageCreated, "support-chat", MessageCreated{MessageID: "m1"}).WithCorrelation("m1")
	if e.Meta.ID == "" || e.Meta.Type != TypeMessageCreated || e.Meta.Time.IsZero() {
		t.Errorf("meta: %+v", e.Meta)
	}
	if e.Meta.Producer == nil || *e.Meta.Producer != "support-chat" {
		t.Error("producer not set")
	}
	if e.Meta.CorrelationID == nil || *e.Meta.CorrelationID != "m1" {
		t.Error("correlation id not set")
	}
	if NewEnvelope(TypeMessageCreated, "", nil).Meta.Producer != nil {
		t.Error("empty producer must be omitted")
	}
}
