package events

import (
	"time"

	"github.com/google/uuid"
)

// Типы событий, имя включает версию схемы
const (
	TypeMessageCreated       = "support.message.created.v1"
	TypePresenceChanged      = "support.presence.changed.v1"
	TypeConversationsExport  = "support.conversations.exported.v1"
	TypeConversationsDeleted = "support.conversations.deleted.v1"
	TypeArtifactDeleted      = "support.export.deleted.v1"
)

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

type Meta struct {
	// Корреляция с запросом или соединением
	CorrelationID *string   `json:"correlation_id,omitempty"`
	ID            string    `json:"id"`
	Producer      *string   `json:"producer,omitempty"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"`
}

// NewEnvelope заполняет id и время события
func NewEnvelope(eventType, producer string, data any) Envelope {
	meta := Meta{
		ID:   uuid.NewString(),
		Time: time.Now().UTC(),
		Type: eventType,
	}
	if producer != "" {
		meta.Producer = &producer
	}
	return Envelope{Meta: meta, Data: data}
}

// WithCorrelation возвращает копию с correlation id
func (e Envelope) WithCorrelation(id string) Envelope {
	if id != "" {
		e.Meta.CorrelationID = &id
	}
	return e
}

// MessageCreated - без содержимого вложения, только метаданные
type MessageCreated struct {
	MessageID      string    `json:"message_id"`
	Identity       string    `json:"identity"`
	Origin         string    `json:"origin"`
	Kind           string    `json:"kind"`
	Status         string    `json:"status"`
	HasAttachment  bool      `json:"has_attachment"`
	AttachmentMime string    `json:"attachment_mime,omitempty"`
	InquiryType    string    `json:"inquiry_type,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type PresenceChanged struct {
	Identity string `json:"identity"`
	Online   bool   `json:"online"`
}

type BulkOperation struct {
	Actor      string   `json:"actor"`
	Identities []string `json:"identities,omitempty"`
	Artifact   string   `json:"artifact,omitempty"`
	Succeeded  int      `json:"succeeded"`
	Failed     int      `json:"failed"`
	Total      int64    `json:"total"`
}
