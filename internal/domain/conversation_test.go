package domain

import (
	"testing"
	"time"
)

func msg(id string, origin Origin, kind MessageKind, ts time.Time) *ChatMessage {
	return &ChatMessage{ID: id, Identity: "a@example.com", Origin: origin, Kind: kind, Timestamp: ts}
}

func TestStatusOf(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		messages []*ChatMessage
		want     Status
	}{
		{"empty conversation", nil, StatusPending},
		{"customer only", []*ChatMessage{
			msg("1", OriginCustomer, KindMessage, base),
			msg("2", OriginCustomer, KindMessage, base.Add(time.Second)),
		}, StatusPending},
		{"admin replied", []*ChatMessage{
			msg("1", OriginCustomer, KindMessage, base),
			msg("2", OriginAdmin, KindMessage, base.Add(time.Second)),
			msg("3", OriginCustomer, KindMessage, base.Add(2*time.Second)),
		}, StatusAnswered},
		{"closed by customer", []*ChatMessage{
			msg("1", OriginCustomer, KindMessage, base),
			msg("2", OriginCustomer, KindCompletionByCustomer, base.Add(time.Second)),
		}, StatusClosed},
		{"closed stays closed after new messages", []*ChatMessage{
			msg("1", OriginCustomer, KindMessage, base),
			msg("2", OriginAdmin, KindCompletionByAdmin, base.Add(time.Second)),
			msg("3", OriginCustomer, KindMessage, base.Add(2*time.Second)),
			msg("4", OriginAdmin, KindMessage, base.Add(3*time.Second)),
		}, StatusClosed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := StatusOf(tt.messages); got != tt.want {
				t.Errorf("StatusOf() = %s, want %s", got, tt.want)
			}

			// инкрементальный пересчет должен совпадать с полным
			var status Status
			for _, m := range tt.messages {
				status = NextStatus(status, m)
			}
			if len(tt.messages) > 0 && status != tt.want {
				t.Errorf("NextStatus fold = %s, want %s", status, tt.want)
			}
		})
	}
}

func TestRepresentativeOf(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	if RepresentativeOf(nil) != nil {
		t.Error("expected nil representative for empty conversation")
	}

	messages := []*ChatMessage{
		msg("b", OriginCustomer, KindMessage, base.Add(time.Second)),
		msg("c", OriginAdmin, KindMessage, base),
		msg("a", OriginCustomer, KindMessage, base.Add(time.Second)),
	}
	got := RepresentativeOf(messages)
	if got == nil || got.ID != "b" {
		t.Fatalf("expected latest message with highest id on tie, got %+v", got)
	}

	// результат не зависит от порядка входа
	reversed := []*ChatMessage{messages[2], messages[1], messages[0]}
	if again := RepresentativeOf(reversed); again.ID != "b" {
		t.Errorf("representative depends on input order: %s", again.ID)
	}
	if messages[0].ID != "b" {
		t.Error("input slice was modified")
	}
}

func TestSortMessagesAndGroup(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	messages := []*ChatMessage{
		{ID: "2", Identity: "b@example.com", Timestamp: base},
		{ID: "3", Identity: "a@example.com", Timestamp: base.Add(time.Second)},
		{ID: "1", Identity: "a@example.com", Timestamp: base},
	}
	groups := GroupByIdentity(messages)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	a := groups["a@example.com"]
	if len(a) != 2 || a[0].ID != "1" || a[1].ID != "3" {
		t.Errorf("group a not sorted: %+v", a)
	}

	SortMessages(messages)
	if messages[0].ID != "1" || messages[1].ID != "2" || messages[2].ID != "3" {
		t.Errorf("unexpected order: %s %s %s", messages[0].ID, messages[1].ID, messages[2].ID)
	}
}

func TestSummarizeAndSort(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	older := Summarize("old@example.com", []*ChatMessage{msg("1", OriginCustomer, KindMessage, base)})
	newer := Summarize("new@example.com", []*ChatMessage{
		msg("2", OriginCustomer, KindMessage, base.Add(time.Minute)),
		msg("3", OriginAdmin, KindMessage, base.Add(2*time.Minute)),
	})
	empty := Summarize("idle@example.com", nil)

	if newer.Status != StatusAnswered || newer.MessageCount != 2 || newer.Representative.ID != "3" {
		t.Errorf("unexpected summary: %+v", newer)
	}

	summaries := []ConversationSummary{empty, older, newer}
	SortSummaries(summaries)
	if summaries[0].Identity != "new@example.com" || summaries[1].Identity != "old@example.com" || summaries[2].Identity != "idle@example.com" {
		t.Errorf("unexpected order: %s, %s, %s", summaries[0].Identity, summaries[1].Identity, summaries[2].Identity)
	}
}

func TestSortSummaries_TieBreakByIdentity(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	want := []string{"a@example.com", "c@example.com", "b@example.com", "d@example.com", "e@example.com"}
	// входной порядок берется из map, результат от него не зависит
	inputs := [][]string{
		{"e@example.com", "d@example.com", "c@example.com", "b@example.com", "a@example.com"},
		{"b@example.com", "e@example.com", "a@example.com", "d@example.com", "c@example.com"},
	}
	for _, order := range inputs {
		summaries := make([]ConversationSummary, 0, len(order))
		for _, identity := range order {
			switch identity {
			case "a@example.com", "c@example.com":
				summaries = append(summaries, Summarize(identity, []*ChatMessage{msg(identity, OriginCustomer, KindMessage, base.Add(time.Minute))}))
			case "b@example.com":
				summaries = append(summaries, Summarize(identity, []*ChatMessage{msg(identity, OriginCustomer, KindMessage, base)}))
			default:
				summaries = append(summaries, Summarize(identity, nil))
			}
		}
		SortSummaries(summaries)
		for i, s := range summaries {
			if s.Identity != want[i] {
				t.Errorf("input %v: position %d is %s, want %s", order, i, s.Identity, want[i])
			}
		}
	}
}

func TestNormalizeIdentities(t *testing.T) {
	t.Parallel()

	got := NormalizeIdentities([]string{" A@Example.com", "", "b@example.com", "a@example.com ", "   "})
	if len(got) != 2 || got[0] != "a@example.com" || got[1] != "b@example.com" {
		t.Errorf("unexpected normalization: %v", got)
	}
}
