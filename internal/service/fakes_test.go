package service

import (
	"context"
	"errors"
	"sync"

	"support_chat/internal/config"
	"support_chat/internal/domain"
	"support_chat/internal/events"
	"support_chat/internal/realtime"
	"support_chat/internal/repository"
	"support_chat/pkg/logger"
)

var errStoreDown = errors.New("store down")

type fakeConn struct {
	id     string
	mu     sync.Mutex
	frames []realtime.Frame
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(frame realtime.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
	return true
}

func (c *fakeConn) Close() {}

// messages возвращает сообщения из полученных new_message кадров по порядку
func (c *fakeConn) messages() []realtime.MessagePayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	var result []realtime.MessagePayload
	for _, f := range c.frames {
		if f.Type != realtime.FrameNewMessage {
			continue
		}
		var p realtime.MessagePayload
		if err := f.Decode(&p); err == nil {
			result = append(result, p)
		}
	}
	return result
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, msg events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, msg)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Meta.Type)
	}
	return types
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []*domain.AuditLog
}

func (r *recordingAudit) CreateLog(_ context.Context, auditLog *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, auditLog)
	return nil
}

// flakyStore - хранилище в памяти, которое отказывает по заданным identity
type flakyStore struct {
	*repository.MemoryMessageRepository
	failAppend bool
	failRead   map[string]bool
}

func (s *flakyStore) Append(ctx context.Context, message *domain.ChatMessage) error {
	if s.failAppend {
		return errStoreDown
	}
	return s.MemoryMessageRepository.Append(ctx, message)
}

func (s *flakyStore) ListByIdentity(ctx context.Context, identity string) ([]*domain.ChatMessage, error) {
	if s.failRead[identity] {
		return nil, errStoreDown
	}
	return s.MemoryMessageRepository.ListByIdentity(ctx, identity)
}

func testConfig() *config.Config {
	return &config.Config{
		Chat: config.ChatConfig{
			MaxAttachmentBytes: 1024,
			SendBufferSize:     16,
		},
		Export: config.ExportConfig{DefaultFormat: config.ExportFormatJSON},
		AMQP:   config.AMQPConfig{Producer: "support-chat-test"},
	}
}

type relayFixture struct {
	store     repository.MessageRepository
	registry  realtime.Registry
	publisher *recordingPublisher
	relay     RelayService
}

func newRelayFixture(store repository.MessageRepository, cfg *config.Config) *relayFixture {
	log := logger.NewNop()
	if store == nil {
		store = repository.NewMemoryMessageRepository()
	}
	if cfg == nil {
		cfg = testConfig()
	}
	registry := realtime.NewRegistry(log, nil)
	publisher := &recordingPublisher{}
	rateLimit := NewRateLimitService(repository.NewMemoryRateLimitRepository(), log)
	return &relayFixture{
		store:     store,
		registry:  registry,
		publisher: publisher,
		relay:     NewRelayService(store, registry, rateLimit, publisher, NewClock(nil), cfg, log),
	}
}

func (f *relayFixture) connect(id, identity string, role domain.Role) *fakeConn {
	c := newFakeConn(id)
	f.registry.Register(c, identity, role)
	return c
}

func newMemoryStore() *repository.MemoryMessageRepository {
	return repository.NewMemoryMessageRepository()
}
