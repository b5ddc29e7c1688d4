package handler

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"support_chat/internal/domain"
)

func TestHealth(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp := srv.request(t, http.MethodGet, "/api/v1/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]interface{}
	decodeBody(t, resp, &body)
	if body["status"] != "ok" || body["store"] != "memory" {
		t.Errorf("body: %v", body)
	}
}

func TestAdminRoutes_AccessControl(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	if resp := srv.request(t, http.MethodGet, "/api/v1/admin/conversations", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: %d", resp.StatusCode)
	}
	if resp := srv.request(t, http.MethodGet, "/api/v1/admin/conversations", customerToken(t, "a@example.com"), nil); resp.StatusCode != http.StatusForbidden {
		t.Errorf("customer token: %d", resp.StatusCode)
	}
	if resp := srv.request(t, http.MethodGet, "/api/v1/admin/conversations", adminToken(t), nil); resp.StatusCode != http.StatusOK {
		t.Errorf("admin token: %d", resp.StatusCode)
	}
}

func TestChatMessages_OwnHistory(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	srv.seed(t, "mine@example.com", domain.Envelope{Text: "mine"})
	srv.seed(t, "other@example.com", domain.Envelope{Text: "not mine"})

	resp := srv.request(t, http.MethodGet, "/api/v1/chat/messages", customerToken(t, "mine@example.com"), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Identity string                `json:"identity"`
		Status   domain.Status         `json:"status"`
		Messages []*domain.ChatMessage `json:"messages"`
	}
	decodeBody(t, resp, &body)
	if body.Identity != "mine@example.com" || len(body.Messages) != 1 || body.Messages[0].Text != "mine" || body.Status != domain.StatusPending {
		t.Errorf("body: %+v", body)
	}

	if resp := srv.request(t, http.MethodGet, "/api/v1/chat/messages", adminToken(t), nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("admin on customer history: %d", resp.StatusCode)
	}
}

func TestAdminConversations(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	srv.seed(t, "first@example.com", domain.Envelope{Text: "older"})
	srv.seed(t, "second@example.com", domain.Envelope{Text: "newer"}, domain.Envelope{Kind: domain.KindCompletionByCustomer})
	admin := adminToken(t)

	resp := srv.request(t, http.MethodGet, "/api/v1/admin/conversations", admin, nil)
	var list struct {
		Conversations []domain.ConversationSummary `json:"conversations"`
	}
	decodeBody(t, resp, &list)
	if len(list.Conversations) != 2 {
		t.Fatalf("conversations: %+v", list.Conversations)
	}
	if list.Conversations[0].Identity != "second@example.com" || list.Conversations[0].Status != domain.StatusClosed {
		t.Errorf("first row: %+v", list.Conversations[0])
	}

	resp = srv.request(t, http.MethodGet, "/api/v1/admin/conversations/"+url.PathEscape("first@example.com")+"/messages", admin, nil)
	var history struct {
		Messages []*domain.ChatMessage `json:"messages"`
	}
	decodeBody(t, resp, &history)
	if len(history.Messages) != 1 || history.Messages[0].Text != "older" {
		t.Errorf("history: %+v", history.Messages)
	}

	resp = srv.request(t, http.MethodDelete, "/api/v1/admin/conversations", admin, map[string]interface{}{
		"identities": []string{"first@example.com"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	var result domain.BatchResult
	decodeBody(t, resp, &result)
	if len(result.Succeeded) != 1 || result.Total != 1 {
		t.Errorf("delete result: %+v", result)
	}

	resp = srv.request(t, http.MethodGet, "/api/v1/admin/conversations", admin, nil)
	decodeBody(t, resp, &list)
	if len(list.Conversations) != 1 || list.Conversations[0].Identity != "second@example.com" {
		t.Errorf("after delete: %+v", list.Conversations)
	}

	if resp := srv.request(t, http.MethodDelete, "/api/v1/admin/conversations", admin, map[string]interface{}{}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("delete without identities: %d", resp.StatusCode)
	}
}

func TestAdminExports(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	srv.seed(t, "a@example.com", domain.Envelope{Text: "a1"}, domain.Envelope{
		Attachment: &domain.Attachment{Data: []byte("%PDF-1.4"), FileName: "invoice.pdf", MimeType: "application/pdf"},
	})
	srv.seed(t, "b@example.com", domain.Envelope{Text: "b1"})
	admin := adminToken(t)

	resp := srv.request(t, http.MethodPost, "/api/v1/admin/exports", admin, map[string]interface{}{
		"identities": []string{"a@example.com"},
		"format":     "xlsx",
	})
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("create status = %d: %s", resp.StatusCode, body)
	}
	var created domain.ExportResult
	decodeBody(t, resp, &created)
	if created.Artifact == nil || created.Artifact.Format != "xlsx" || created.Total != 2 {
		t.Fatalf("created: %+v", created)
	}
	name := created.Artifact.Name

	// без тела - экспорт всех бесед в формате по умолчанию
	resp = srv.request(t, http.MethodPost, "/api/v1/admin/exports", admin, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("export all status = %d", resp.StatusCode)
	}

	resp = srv.request(t, http.MethodGet, "/api/v1/admin/exports", admin, nil)
	var list struct {
		Exports []domain.ExportArtifact `json:"exports"`
	}
	decodeBody(t, resp, &list)
	if len(list.Exports) != 2 {
		t.Fatalf("exports: %+v", list.Exports)
	}

	resp = srv.request(t, http.MethodGet, "/api/v1/admin/exports/"+name, admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, name) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if data, _ := io.ReadAll(resp.Body); int64(len(data)) != created.Artifact.Size {
		t.Errorf("downloaded %d bytes, want %d", len(data), created.Artifact.Size)
	}

	resp = srv.request(t, http.MethodGet, "/api/v1/admin/exports/"+name+"/messages", admin, nil)
	var restored struct {
		Messages []*domain.ChatMessage `json:"messages"`
	}
	decodeBody(t, resp, &restored)
	if len(restored.Messages) != 2 || restored.Messages[1].Attachment == nil || string(restored.Messages[1].Attachment.Data) != "%PDF-1.4" {
		t.Errorf("restored: %+v", restored.Messages)
	}

	if resp := srv.request(t, http.MethodDelete, "/api/v1/admin/exports/"+name, admin, nil); resp.StatusCode != http.StatusOK {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
	if resp := srv.request(t, http.MethodGet, "/api/v1/admin/exports/"+name, admin, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("download after delete = %d", resp.StatusCode)
	}
	if resp := srv.request(t, http.MethodGet, "/api/v1/admin/exports/not-an-export.txt", admin, nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid name = %d", resp.StatusCode)
	}
	if resp := srv.request(t, http.MethodPost, "/api/v1/admin/exports", admin, map[string]interface{}{"format": "csv"}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown format = %d", resp.StatusCode)
	}
}
