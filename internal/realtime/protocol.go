package realtime

import (
	"encoding/json"
	"fmt"

	"support_chat/internal/domain"
)

// Клиент -> сервер
const (
	FrameIdentify       = "identify"
	FrameSendMessage    = "send_message"
	FrameRequestHistory = "request_history"
	FramePing           = "ping"
)

// Сервер -> клиент
const (
	FrameIdentified      = "identified"
	FrameNewMessage      = "new_message"
	FrameMessageSent     = "message_sent"
	FrameHistory         = "history"
	FramePresenceChanged = "presence_changed"
	FrameMessageError    = "message_error"
	FramePong            = "pong"
)

type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewFrame(frameType string, payload interface{}) (Frame, error) {
	if payload == nil {
		return Frame{Type: frameType}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to marshal %s payload: %w", frameType, err)
	}
	return Frame{Type: frameType, Data: data}, nil
}

// Decode распаковывает data кадра в v
func (f Frame) Decode(v interface{}) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("frame %s has no data", f.Type)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", f.Type, err)
	}
	return nil
}

type IdentifyPayload struct {
	Identity string      `json:"identity"`
	Role     domain.Role `json:"role"`
}

type RequestHistoryPayload struct {
	// Identity учитывается только для администратора
	Identity string `json:"identity,omitempty"`
}

type IdentifiedPayload struct {
	Identity     string      `json:"identity"`
	Role         domain.Role `json:"role"`
	ConnectionID string      `json:"connection_id"`
	AdminOnline  bool        `json:"admin_online"`
}

type MessagePayload struct {
	Message *domain.ChatMessage `json:"message"`
	Status  domain.Status       `json:"status,omitempty"`
}

type HistoryPayload struct {
	Identity string                `json:"identity"`
	Messages []*domain.ChatMessage `json:"messages"`
	Status   domain.Status         `json:"status"`
}

type PresencePayload struct {
	Identity string `json:"identity"`
	Online   bool   `json:"online"`
}

type ErrorPayload struct {
	Reason string `json:"reason"`
	Code   string `json:"code"`
}

func ErrorFrame(code, reason string) Frame {
	frame, _ := NewFrame(FrameMessageError, ErrorPayload{Reason: reason, Code: code})
	return frame
}

func presenceFrame(identity string, online bool) Frame {
	frame, _ := NewFrame(FramePresenceChanged, PresencePayload{Identity: identity, Online: online})
	return frame
}
