package domain

import (
	"encoding/json"
	"time"
)

type Origin string

const (
	OriginCustomer Origin = "customer"
	OriginAdmin    Origin = "admin"
)

// MessageKind - тип сообщения. Завершение чата хранится как отдельный тип,
// а не как зарезервированный текст.
type MessageKind string

const (
	KindMessage              MessageKind = "message"
	KindCompletionByCustomer MessageKind = "completion_by_customer"
	KindCompletionByAdmin    MessageKind = "completion_by_admin"
)

type InquiryType string

const (
	InquiryProduct             InquiryType = "product"
	InquiryPaymentCancellation InquiryType = "payment_cancellation"
)

type Attachment struct {
	Data     []byte `json:"data"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
}

// InquiryContext передается без изменений из исходного запроса (товар или платеж)
type InquiryContext struct {
	Type    InquiryType     `json:"type"`
	Details json.RawMessage `json:"details,omitempty"`
}

// ChatMessage неизменяемо после сохранения
type ChatMessage struct {
	ID             string          `json:"id"`
	Identity       string          `json:"identity"`
	Origin         Origin          `json:"origin"`
	Kind           MessageKind     `json:"kind"`
	Text           string          `json:"text,omitempty"`
	Attachment     *Attachment     `json:"attachment,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	InquiryContext *InquiryContext `json:"inquiry_context,omitempty"`
}

func (m *ChatMessage) IsCompletion() bool {
	return m.Kind == KindCompletionByCustomer || m.Kind == KindCompletionByAdmin
}

// Envelope - входящее сообщение от клиента до присвоения id и времени
type Envelope struct {
	TargetIdentity string          `json:"target_identity"`
	Origin         Origin          `json:"origin"`
	Kind           MessageKind     `json:"kind,omitempty"`
	Text           string          `json:"text,omitempty"`
	Attachment     *Attachment     `json:"attachment,omitempty"`
	InquiryContext *InquiryContext `json:"inquiry_context,omitempty"`
	// ClientTimestamp не используется для сортировки
	ClientTimestamp *time.Time `json:"client_timestamp,omitempty"`
}
