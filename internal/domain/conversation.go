package domain

import (
	"sort"
	"time"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAnswered Status = "answered"
	StatusClosed   Status = "closed"
)

// ConversationSummary - строка списка бесед в консоли администратора
type ConversationSummary struct {
	Identity       string       `json:"identity"`
	Status         Status       `json:"status"`
	Representative *ChatMessage `json:"representative,omitempty"`
	MessageCount   int          `json:"message_count"`
	Online         bool         `json:"online"`
}

// StatusOf выводит статус беседы только из истории сообщений.
// Завершение закрывает беседу навсегда, последующие сообщения статус не меняют.
func StatusOf(messages []*ChatMessage) Status {
	status := StatusPending
	for _, m := range messages {
		status = NextStatus(status, m)
	}
	return status
}

// NextStatus - переход состояния при добавлении одного сообщения.
// Свертка NextStatus по истории дает StatusOf.
func NextStatus(current Status, m *ChatMessage) Status {
	switch {
	case current == StatusClosed || m.IsCompletion():
		return StatusClosed
	case m.Origin == OriginAdmin:
		return StatusAnswered
	case current == "":
		return StatusPending
	default:
		return current
	}
}

// RepresentativeOf возвращает последнее сообщение: максимальный timestamp,
// при равенстве - больший id (порядок вставки). Входной срез не меняется.
func RepresentativeOf(messages []*ChatMessage) *ChatMessage {
	var latest *ChatMessage
	for _, m := range messages {
		if latest == nil || messageLess(latest, m) {
			latest = m
		}
	}
	return latest
}

// SortMessages сортирует по (timestamp, id) на месте
func SortMessages(messages []*ChatMessage) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messageLess(messages[i], messages[j])
	})
}

func messageLess(a, b *ChatMessage) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID < b.ID
}

func Summarize(identity string, messages []*ChatMessage) ConversationSummary {
	return ConversationSummary{
		Identity:       identity,
		Status:         StatusOf(messages),
		Representative: RepresentativeOf(messages),
		MessageCount:   len(messages),
	}
}

// GroupByIdentity раскладывает общий лог по беседам, каждая в порядке (timestamp, id)
func GroupByIdentity(messages []*ChatMessage) map[string][]*ChatMessage {
	groups := make(map[string][]*ChatMessage)
	for _, m := range messages {
		groups[m.Identity] = append(groups[m.Identity], m)
	}
	for _, group := range groups {
		SortMessages(group)
	}
	return groups
}

// SortSummaries - сначала беседы с самым свежим сообщением, при равенстве по identity
func SortSummaries(summaries []ConversationSummary) {
	sort.Slice(summaries, func(i, j int) bool {
		a, b := lastActivity(summaries[i]), lastActivity(summaries[j])
		if !a.Equal(b) {
			return a.After(b)
		}
		return summaries[i].Identity < summaries[j].Identity
	})
}

func lastActivity(s ConversationSummary) time.Time {
	if s.Representative == nil {
		return time.Time{}
	}
	return s.Representative.Timestamp
}
