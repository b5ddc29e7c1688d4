package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"support_chat/internal/config"
	"support_chat/internal/domain"
	"support_chat/internal/events"
	"support_chat/internal/repository"
	apperrors "support_chat/pkg/errors"
	"support_chat/pkg/logger"
)

// ExportService - пакетные операции администратора над историей бесед
type ExportService interface {
	ExportAll(ctx context.Context, actor domain.Principal, format string) (*domain.ExportResult, error)
	ExportFor(ctx context.Context, actor domain.Principal, identities []string, format string) (*domain.ExportResult, error)
	DeleteFor(ctx context.Context, actor domain.Principal, identities []string) (*domain.BatchResult, error)
	ListArtifacts(ctx context.Context, actor domain.Principal) ([]domain.ExportArtifact, error)
	OpenArtifact(ctx context.Context, actor domain.Principal, name string) (io.ReadCloser, *domain.ExportArtifact, error)
	ReadArtifact(ctx context.Context, actor domain.Principal, name string) ([]*domain.ChatMessage, error)
	DeleteArtifact(ctx context.Context, actor domain.Principal, name string) error
}

// Purger удаляет беседу так, чтобы удаление не пересекалось с отправкой в нее
type Purger interface {
	Purge(ctx context.Context, identity string) (int64, error)
}

type exportService struct {
	messages      repository.MessageRepository
	artifacts     repository.ArtifactRepository
	purger        Purger
	audit         AuditService
	publisher     events.Publisher
	defaultFormat string
	producer      string
	now           func() time.Time
	log           logger.Logger
}

func NewExportService(
	messages repository.MessageRepository,
	artifacts repository.ArtifactRepository,
	purger Purger,
	audit AuditService,
	publisher events.Publisher,
	cfg *config.Config,
	log logger.Logger,
) ExportService {
	return &exportService{
		messages:      messages,
		artifacts:     artifacts,
		purger:        purger,
		audit:         audit,
		publisher:     publisher,
		defaultFormat: cfg.Export.DefaultFormat,
		producer:      cfg.AMQP.Producer,
		now:           time.Now,
		log:           log,
	}
}

func (s *exportService) ExportAll(ctx context.Context, actor domain.Principal, format string) (*domain.ExportResult, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.ErrForbidden
	}
	format, err := s.resolveFormat(format)
	if err != nil {
		return nil, err
	}

	all, err := s.messages.ListAll(ctx)
	if err != nil {
		s.log.Error("Failed to read messages for export", "error", err)
		return nil, fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}

	result := &domain.ExportResult{}
	groups := domain.GroupByIdentity(all)
	identities := make([]string, 0, len(groups))
	for identity := range groups {
		identities = append(identities, identity)
	}
	sort.Strings(identities)
	for _, identity := range identities {
		result.AddSuccess(identity, int64(len(groups[identity])))
	}

	domain.SortMessages(all)
	snapshot := &domain.ExportSnapshot{CreatedAt: s.now().UTC(), Messages: all}
	if err := s.writeArtifact(ctx, format, snapshot, result); err != nil {
		return nil, err
	}

	s.record(ctx, actor, domain.EventTypeConversationsExported, events.TypeConversationsExport, nil, result.Artifact.Name, &result.BatchResult)
	return result, nil
}

func (s *exportService) ExportFor(ctx context.Context, actor domain.Principal, identities []string, format string) (*domain.ExportResult, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.ErrForbidden
	}
	format, err := s.resolveFormat(format)
	if err != nil {
		return nil, err
	}
	selected := domain.NormalizeIdentities(identities)
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no identities selected", apperrors.ErrValidation)
	}

	result := &domain.ExportResult{}
	collected := make([]*domain.ChatMessage, 0)
	for _, identity := range selected {
		messages, err := s.messages.ListByIdentity(ctx, identity)
		if err != nil {
			s.log.Warn("Failed to read conversation for export", "identity", identity, "error", err)
			result.AddFailure(identity, err)
			continue
		}
		result.AddSuccess(identity, int64(len(messages)))
		collected = append(collected, messages...)
	}

	if len(result.Succeeded) == 0 {
		return result, apperrors.ErrExportFailed
	}

	domain.SortMessages(collected)
	snapshot := &domain.ExportSnapshot{CreatedAt: s.now().UTC(), Identities: selected, Messages: collected}
	if err := s.writeArtifact(ctx, format, snapshot, result); err != nil {
		return nil, err
	}

	s.record(ctx, actor, domain.EventTypeConversationsExported, events.TypeConversationsExport, selected, result.Artifact.Name, &result.BatchResult)
	return result, nil
}

func (s *exportService) writeArtifact(ctx context.Context, format string, snapshot *domain.ExportSnapshot, result *domain.ExportResult) error {
	artifact, err := s.artifacts.Save(ctx, format, snapshot)
	if err != nil {
		s.log.Error("Failed to write export artifact", "format", format, "error", err)
		return fmt.Errorf("failed to write export artifact: %w", err)
	}
	result.Artifact = artifact
	return nil
}

// DeleteFor удаляет беседы по одной; ошибка одной identity не откатывает остальные
func (s *exportService) DeleteFor(ctx context.Context, actor domain.Principal, identities []string) (*domain.BatchResult, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.ErrForbidden
	}
	selected := domain.NormalizeIdentities(identities)
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no identities selected", apperrors.ErrValidation)
	}

	result := &domain.BatchResult{}
	for _, identity := range selected {
		if identity == domain.AdminIdentity {
			result.AddFailure(identity, fmt.Errorf("%w: admin identity has no conversation", apperrors.ErrValidation))
			continue
		}
		count, err := s.purger.Purge(ctx, identity)
		if err != nil {
			s.log.Warn("Failed to delete conversation", "identity", identity, "error", err)
			result.AddFailure(identity, err)
			continue
		}
		result.AddSuccess(identity, count)
	}

	s.log.Info("Conversations deleted",
		"actor", actor.Identity,
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed),
		"messages", result.Total,
	)
	s.record(ctx, actor, domain.EventTypeConversationsDeleted, events.TypeConversationsDeleted, selected, "", result)
	return result, nil
}

func (s *exportService) ListArtifacts(ctx context.Context, actor domain.Principal) ([]domain.ExportArtifact, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.ErrForbidden
	}
	return s.artifacts.List(ctx)
}

func (s *exportService) OpenArtifact(ctx context.Context, actor domain.Principal, name string) (io.ReadCloser, *domain.ExportArtifact, error) {
	if !actor.IsAdmin() {
		return nil, nil, apperrors.ErrForbidden
	}
	return s.artifacts.Open(ctx, name)
}

func (s *exportService) ReadArtifact(ctx context.Context, actor domain.Principal, name string) ([]*domain.ChatMessage, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.ErrForbidden
	}
	snapshot, err := s.artifacts.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	return snapshot.Messages, nil
}

func (s *exportService) DeleteArtifact(ctx context.Context, actor domain.Principal, name string) error {
	if !actor.IsAdmin() {
		return apperrors.ErrForbidden
	}
	if err := s.artifacts.Delete(ctx, name); err != nil {
		return err
	}
	s.record(ctx, actor, domain.EventTypeArtifactDeleted, events.TypeArtifactDeleted, nil, name, nil)
	return nil
}

func (s *exportService) resolveFormat(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		return s.defaultFormat, nil
	}
	if format != config.ExportFormatJSON && format != config.ExportFormatXLSX {
		return "", fmt.Errorf("%w: unknown export format %q", apperrors.ErrValidation, format)
	}
	return format, nil
}

// record пишет аудит и публикует событие; ошибки не влияют на результат операции
func (s *exportService) record(
	ctx context.Context,
	actor domain.Principal,
	auditType, eventType string,
	identities []string,
	artifact string,
	batch *domain.BatchResult,
) {
	payload := map[string]interface{}{}
	data := events.BulkOperation{Actor: actor.Identity, Identities: identities, Artifact: artifact}
	if len(identities) > 0 {
		payload["identities"] = identities
	}
	if artifact != "" {
		payload["artifact"] = artifact
	}
	if batch != nil {
		payload["succeeded"] = len(batch.Succeeded)
		payload["failed"] = len(batch.Failed)
		payload["total"] = batch.Total
		data.Succeeded = len(batch.Succeeded)
		data.Failed = len(batch.Failed)
		data.Total = batch.Total
	}

	_ = s.audit.LogEvent(ctx, actor, auditType, payload)

	envelope := events.NewEnvelope(eventType, s.producer, data)
	if err := s.publisher.Publish(ctx, eventType, envelope); err != nil {
		s.log.Warn("Failed to publish bulk operation event", "event", eventType, "error", err)
	}
}
