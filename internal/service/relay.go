package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"support_chat/internal/config"
	"support_chat/internal/domain"
	"support_chat/internal/events"
	"support_chat/internal/realtime"
	"support_chat/internal/repository"
	apperrors "support_chat/pkg/errors"
	"support_chat/pkg/logger"
)

const (
	MaxTextRunes          = 10000
	MaxInquiryDetailsSize = 16 << 10
	maxFileNameRunes      = 255
)

// RelayService принимает сообщения от соединений, сохраняет их и рассылает
// всем соединениям беседы и консолям администратора.
type RelayService interface {
	Submit(ctx context.Context, sender realtime.Conn, envelope domain.Envelope) (*domain.ChatMessage, error)
	// Purge удаляет беседу целиком под блокировкой identity
	Purge(ctx context.Context, identity string) (int64, error)
}

type relayService struct {
	messages  repository.MessageRepository
	registry  realtime.Registry
	rateLimit RateLimitService
	publisher events.Publisher
	locks     *realtime.KeyedMutex
	clock     *Clock
	cfg       config.ChatConfig
	producer  string
	log       logger.Logger

	// Кеш статусов бесед; заполняется лениво из хранилища
	statusMu    sync.Mutex
	statuses    map[string]domain.Status
	statusLimit int
}

// Верхняя граница кеша статусов. При заполнении вытесняются беседы без открытых
// вкладок; вытесненный статус пересчитывается из истории при следующем сообщении.
const maxCachedStatuses = 10000

func NewRelayService(
	messages repository.MessageRepository,
	registry realtime.Registry,
	rateLimit RateLimitService,
	publisher events.Publisher,
	clock *Clock,
	cfg *config.Config,
	log logger.Logger,
) RelayService {
	return &relayService{
		messages:    messages,
		registry:    registry,
		rateLimit:   rateLimit,
		publisher:   publisher,
		locks:       realtime.NewKeyedMutex(),
		clock:       clock,
		cfg:         cfg.Chat,
		producer:    cfg.AMQP.Producer,
		log:         log,
		statuses:    make(map[string]domain.Status),
		statusLimit: maxCachedStatuses,
	}
}

func (s *relayService) Submit(ctx context.Context, sender realtime.Conn, envelope domain.Envelope) (*domain.ChatMessage, error) {
	senderIdentity, role, ok := s.registry.IdentityOf(sender)
	if !ok {
		return nil, apperrors.ErrNotIdentified
	}

	target, origin, err := resolveTarget(senderIdentity, role, envelope)
	if err != nil {
		return nil, err
	}

	kind, err := s.validate(origin, envelope)
	if err != nil {
		return nil, err
	}

	limitKey := senderIdentity
	if role == domain.RoleAdmin {
		limitKey = senderIdentity + ":" + sender.ID()
	}
	if !s.rateLimit.Allow(ctx, domain.RateLimitRule{
		Scope:  domain.RateLimitScopeSend,
		Key:    limitKey,
		Limit:  s.cfg.SendRateLimit,
		Window: s.cfg.SendRateWindow,
	}) {
		return nil, apperrors.ErrRateLimited
	}

	message, status, err := s.persistAndFanOut(ctx, sender, target, origin, kind, envelope)
	if err != nil {
		return nil, err
	}

	s.publishCreated(ctx, message, status)
	return message, nil
}

// persistAndFanOut держит блокировку identity от записи до постановки кадров в очереди,
// поэтому все получатели видят сообщения одной беседы в порядке записи.
func (s *relayService) persistAndFanOut(
	ctx context.Context,
	sender realtime.Conn,
	target string,
	origin domain.Origin,
	kind domain.MessageKind,
	envelope domain.Envelope,
) (*domain.ChatMessage, domain.Status, error) {
	unlock := s.locks.Lock(target)
	defer unlock()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate message id: %w", err)
	}

	message := &domain.ChatMessage{
		ID:             id.String(),
		Identity:       target,
		Origin:         origin,
		Kind:           kind,
		Text:           envelope.Text,
		Attachment:     envelope.Attachment,
		Timestamp:      s.clock.Now(),
		InquiryContext: envelope.InquiryContext,
	}

	if err := s.messages.Append(ctx, message); err != nil {
		s.log.Error("Failed to persist message", "identity", target, "message_id", message.ID, "error", err)
		return nil, "", fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}

	status := s.advanceStatus(ctx, target, message)

	frame, err := realtime.NewFrame(realtime.FrameNewMessage, realtime.MessagePayload{Message: message, Status: status})
	if err != nil {
		// сообщение уже сохранено, получатели увидят его в истории
		s.log.Error("Failed to build message frame", "message_id", message.ID, "error", err)
		return message, status, nil
	}
	delivered := s.registry.Broadcast(target, frame, sender)

	s.log.Debug("Message relayed",
		"message_id", message.ID,
		"identity", target,
		"origin", origin,
		"kind", kind,
		"delivered", delivered,
	)
	return message, status, nil
}

// advanceStatus вызывается под блокировкой identity.
// При ошибке чтения статус не передается, само сообщение уже доставлено.
func (s *relayService) advanceStatus(ctx context.Context, identity string, message *domain.ChatMessage) domain.Status {
	s.statusMu.Lock()
	current, ok := s.statuses[identity]
	s.statusMu.Unlock()

	var next domain.Status
	if ok {
		next = domain.NextStatus(current, message)
	} else {
		history, err := s.messages.ListByIdentity(ctx, identity)
		if err != nil {
			s.log.Warn("Failed to load conversation for status", "identity", identity, "error", err)
			return ""
		}
		next = domain.StatusOf(history)
	}

	s.cacheStatus(identity, next)
	return next
}

func (s *relayService) cacheStatus(identity string, status domain.Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	if _, ok := s.statuses[identity]; !ok && len(s.statuses) >= s.statusLimit {
		for cached := range s.statuses {
			if !s.registry.IsOnline(cached) {
				delete(s.statuses, cached)
			}
		}
		if len(s.statuses) >= s.statusLimit {
			return
		}
	}
	s.statuses[identity] = status
}

func (s *relayService) Purge(ctx context.Context, identity string) (int64, error) {
	unlock := s.locks.Lock(identity)
	defer unlock()

	count, err := s.messages.DeleteByIdentity(ctx, identity)

	// Кеш сбрасывается и при ошибке: состояние хранилища неизвестно
	s.statusMu.Lock()
	delete(s.statuses, identity)
	s.statusMu.Unlock()

	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}
	return count, nil
}

// resolveTarget определяет беседу и origin сообщения по зарегистрированной роли отправителя
func resolveTarget(senderIdentity string, role domain.Role, envelope domain.Envelope) (string, domain.Origin, error) {
	switch role {
	case domain.RoleCustomer:
		if envelope.Origin != "" && envelope.Origin != domain.OriginCustomer {
			return "", "", fmt.Errorf("%w: customers cannot send as %s", apperrors.ErrForbidden, envelope.Origin)
		}
		if t := domain.NormalizeIdentity(envelope.TargetIdentity); t != "" && t != senderIdentity {
			return "", "", apperrors.ErrIdentityMismatch
		}
		return senderIdentity, domain.OriginCustomer, nil

	case domain.RoleAdmin:
		if envelope.Origin != "" && envelope.Origin != domain.OriginAdmin {
			return "", "", fmt.Errorf("%w: admin connections send as admin", apperrors.ErrValidation)
		}
		target := domain.NormalizeIdentity(envelope.TargetIdentity)
		if target == "" {
			return "", "", fmt.Errorf("%w: target identity is required", apperrors.ErrValidation)
		}
		if target == domain.AdminIdentity {
			return "", "", fmt.Errorf("%w: target must be a customer identity", apperrors.ErrValidation)
		}
		return target, domain.OriginAdmin, nil

	default:
		return "", "", apperrors.ErrNotIdentified
	}
}

func (s *relayService) validate(origin domain.Origin, envelope domain.Envelope) (domain.MessageKind, error) {
	kind := envelope.Kind
	if kind == "" {
		kind = domain.KindMessage
	}

	switch kind {
	case domain.KindMessage:
	case domain.KindCompletionByCustomer:
		if origin != domain.OriginCustomer {
			return "", fmt.Errorf("%w: %s is reserved for customers", apperrors.ErrValidation, kind)
		}
	case domain.KindCompletionByAdmin:
		if origin != domain.OriginAdmin {
			return "", fmt.Errorf("%w: %s is reserved for admins", apperrors.ErrValidation, kind)
		}
	default:
		return "", fmt.Errorf("%w: unknown message kind %q", apperrors.ErrValidation, kind)
	}

	if utf8.RuneCountInString(envelope.Text) > MaxTextRunes {
		return "", fmt.Errorf("%w: text exceeds %d characters", apperrors.ErrValidation, MaxTextRunes)
	}
	if !utf8.ValidString(envelope.Text) {
		return "", fmt.Errorf("%w: text is not valid UTF-8", apperrors.ErrValidation)
	}

	if a := envelope.Attachment; a != nil {
		if len(a.Data) == 0 {
			return "", fmt.Errorf("%w: attachment data is empty", apperrors.ErrValidation)
		}
		if a.FileName == "" || a.MimeType == "" {
			return "", fmt.Errorf("%w: attachment requires file name and MIME type", apperrors.ErrValidation)
		}
		if utf8.RuneCountInString(a.FileName) > maxFileNameRunes {
			return "", fmt.Errorf("%w: attachment file name is too long", apperrors.ErrValidation)
		}
		if int64(len(a.Data)) > s.cfg.MaxAttachmentBytes {
			return "", fmt.Errorf("%w: attachment exceeds %d bytes", apperrors.ErrValidation, s.cfg.MaxAttachmentBytes)
		}
	}

	if kind == domain.KindMessage && envelope.Text == "" && envelope.Attachment == nil {
		return "", fmt.Errorf("%w: message needs text or an attachment", apperrors.ErrValidation)
	}

	if ic := envelope.InquiryContext; ic != nil {
		if ic.Type != domain.InquiryProduct && ic.Type != domain.InquiryPaymentCancellation {
			return "", fmt.Errorf("%w: unknown inquiry type %q", apperrors.ErrValidation, ic.Type)
		}
		if len(ic.Details) > MaxInquiryDetailsSize {
			return "", fmt.Errorf("%w: inquiry details exceed %d bytes", apperrors.ErrValidation, MaxInquiryDetailsSize)
		}
		if len(ic.Details) > 0 && !json.Valid(ic.Details) {
			return "", fmt.Errorf("%w: inquiry details are not valid JSON", apperrors.ErrValidation)
		}
	}

	return kind, nil
}

func (s *relayService) publishCreated(ctx context.Context, message *domain.ChatMessage, status domain.Status) {
	data := events.MessageCreated{
		MessageID: message.ID,
		Identity:  message.Identity,
		Origin:    string(message.Origin),
		Kind:      string(message.Kind),
		Status:    string(status),
		Timestamp: message.Timestamp,
	}
	if message.Attachment != nil {
		data.HasAttachment = true
		data.AttachmentMime = message.Attachment.MimeType
	}
	if message.InquiryContext != nil {
		data.InquiryType = string(message.InquiryContext.Type)
	}

	envelope := events.NewEnvelope(events.TypeMessageCreated, s.producer, data).WithCorrelation(message.ID)
	if err := s.publisher.Publish(ctx, events.TypeMessageCreated, envelope); err != nil {
		s.log.Warn("Failed to publish message event", "message_id", message.ID, "error", err)
	}
}
