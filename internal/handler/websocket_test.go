package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"support_chat/internal/domain"
	"support_chat/internal/realtime"
)

func TestWebSocket_RequiresToken(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestWebSocket_CustomerAdminExchange(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	customer := srv.dial(t, customerToken(t, "Buyer@Example.com"))
	identified := customer.identify("buyer@example.com", domain.RoleCustomer)
	if identified.Identity != "buyer@example.com" || identified.AdminOnline || identified.ConnectionID == "" {
		t.Fatalf("customer identified: %+v", identified)
	}

	admin := srv.dial(t, adminToken(t))
	adminIdentified := admin.identify("", domain.RoleAdmin)
	if adminIdentified.Identity != domain.AdminIdentity || !adminIdentified.AdminOnline {
		t.Fatalf("admin identified: %+v", adminIdentified)
	}
	var snapshot realtime.PresencePayload
	admin.expect(realtime.FramePresenceChanged, &snapshot)
	if snapshot.Identity != "buyer@example.com" || !snapshot.Online {
		t.Errorf("presence snapshot: %+v", snapshot)
	}

	customer.send(realtime.FrameSendMessage, domain.Envelope{
		Text:           "my order is stuck",
		InquiryContext: &domain.InquiryContext{Type: domain.InquiryPaymentCancellation, Details: []byte(`{"payment_id":"p-1"}`)},
	})
	var sent realtime.MessagePayload
	customer.expect(realtime.FrameMessageSent, &sent)
	if sent.Message == nil || sent.Message.ID == "" || sent.Message.Origin != domain.OriginCustomer {
		t.Fatalf("echo: %+v", sent)
	}

	var incoming realtime.MessagePayload
	admin.expect(realtime.FrameNewMessage, &incoming)
	if incoming.Message.ID != sent.Message.ID || incoming.Status != domain.StatusPending {
		t.Errorf("admin received: %+v", incoming)
	}

	admin.send(realtime.FrameSendMessage, domain.Envelope{TargetIdentity: "buyer@example.com", Text: "refund issued"})
	admin.expect(realtime.FrameMessageSent, nil)

	var reply realtime.MessagePayload
	customer.expect(realtime.FrameNewMessage, &reply)
	if reply.Message.Text != "refund issued" || reply.Message.Origin != domain.OriginAdmin || reply.Status != domain.StatusAnswered {
		t.Errorf("customer received: %+v", reply)
	}

	customer.send(realtime.FrameRequestHistory, nil)
	var history realtime.HistoryPayload
	customer.expect(realtime.FrameHistory, &history)
	if len(history.Messages) != 2 || history.Status != domain.StatusAnswered {
		t.Errorf("customer history: %+v", history)
	}
	if string(history.Messages[0].InquiryContext.Details) != `{"payment_id":"p-1"}` {
		t.Errorf("inquiry details changed: %s", history.Messages[0].InquiryContext.Details)
	}

	admin.send(realtime.FrameRequestHistory, realtime.RequestHistoryPayload{Identity: "buyer@example.com"})
	var adminHistory realtime.HistoryPayload
	admin.expect(realtime.FrameHistory, &adminHistory)
	if adminHistory.Identity != "buyer@example.com" || len(adminHistory.Messages) != 2 {
		t.Errorf("admin history: %+v", adminHistory)
	}

	customer.conn.Close()
	var offline realtime.PresencePayload
	admin.expect(realtime.FramePresenceChanged, &offline)
	if offline.Identity != "buyer@example.com" || offline.Online {
		t.Errorf("offline presence: %+v", offline)
	}
}

func TestWebSocket_MultipleTabsShareConversation(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	tok := customerToken(t, "tabs@example.com")

	tab1 := srv.dial(t, tok)
	tab1.identify("", domain.RoleCustomer)
	tab2 := srv.dial(t, tok)
	tab2.identify("", domain.RoleCustomer)

	tab1.send(realtime.FrameSendMessage, domain.Envelope{Text: "from tab 1"})
	tab1.expect(realtime.FrameMessageSent, nil)

	var got realtime.MessagePayload
	tab2.expect(realtime.FrameNewMessage, &got)
	if got.Message.Text != "from tab 1" {
		t.Errorf("second tab received: %+v", got)
	}
}

func TestWebSocket_Errors(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	client := srv.dial(t, customerToken(t, "err@example.com"))

	tests := []struct {
		name  string
		write func()
		code  string
	}{
		{"send before identify", func() {
			client.send(realtime.FrameSendMessage, domain.Envelope{Text: "hi"})
		}, "not_identified"},
		{"malformed frame", func() {
			if err := client.conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
				t.Fatal(err)
			}
		}, "validation"},
		{"unknown frame", func() {
			client.send("subscribe", nil)
		}, "validation"},
		{"identify as someone else", func() {
			client.send(realtime.FrameIdentify, realtime.IdentifyPayload{Identity: "victim@example.com", Role: domain.RoleCustomer})
		}, "forbidden"},
		{"identify as admin", func() {
			client.send(realtime.FrameIdentify, realtime.IdentifyPayload{Role: domain.RoleAdmin})
		}, "forbidden"},
	}

	// все случаи идут последовательно по одному соединению
	for _, tt := range tests {
		tt.write()
		var payload realtime.ErrorPayload
		client.expect(realtime.FrameMessageError, &payload)
		if payload.Code != tt.code || payload.Reason == "" {
			t.Errorf("%s: error frame = %+v, want code %s", tt.name, payload, tt.code)
		}
	}

	client.identify("err@example.com", domain.RoleCustomer)
	client.send(realtime.FrameSendMessage, domain.Envelope{})
	var payload realtime.ErrorPayload
	client.expect(realtime.FrameMessageError, &payload)
	if payload.Code != "validation" {
		t.Errorf("empty message code = %s", payload.Code)
	}

	client.send(realtime.FramePing, nil)
	client.expect(realtime.FramePong, nil)
}
