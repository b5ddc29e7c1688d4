package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"support_chat/internal/config"
	"support_chat/internal/domain"
	"support_chat/internal/events"
	"support_chat/internal/middleware"
	"support_chat/internal/realtime"
	"support_chat/internal/repository"
	"support_chat/internal/service"
	"support_chat/pkg/logger"
)

const testSecret = "test-secret"

type testServer struct {
	*httptest.Server
	services *service.Services
	registry realtime.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{AllowedOrigins: []string{"*"}},
		Store:       config.StoreConfig{Driver: config.StoreMemory},
		JWT:         config.JWTConfig{Secret: testSecret, AdminRole: "admin"},
		Chat: config.ChatConfig{
			MaxAttachmentBytes: 1 << 20,
			SendBufferSize:     64,
			WriteWait:          5 * time.Second,
			PongWait:           30 * time.Second,
		},
		Export: config.ExportConfig{Dir: t.TempDir(), DefaultFormat: config.ExportFormatJSON},
		AMQP:   config.AMQPConfig{Producer: "support-chat-test"},
	}
	log := logger.NewNop()

	repos, err := repository.NewRepositories(cfg, nil, nil, log)
	if err != nil {
		t.Fatalf("repositories: %v", err)
	}
	registry := realtime.NewRegistry(log, nil)
	publisher := events.NewFallback(log)
	services := service.NewServices(repos, registry, publisher, cfg, log)
	handlers := NewHandlers(services, repos, registry, cfg, log)

	authMW := middleware.NewAuthMiddleware(services.Auth, log)
	rateLimitMW := middleware.NewRateLimitMiddleware(services.RateLimit, cfg.Chat.AdminRateLimit, cfg.Chat.AdminRateWindow, log)

	srv := httptest.NewServer(SetupRouter(handlers, authMW, rateLimitMW, cfg, log))
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, services: services, registry: registry}
}

func token(t *testing.T, email, role string) string {
	t.Helper()
	claims := service.JWTClaims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func customerToken(t *testing.T, email string) string { return token(t, email, "user") }

func adminToken(t *testing.T) string { return token(t, "ops@example.com", "admin") }

// seedConn - соединение без сокета для наполнения хранилища через relay
type seedConn struct{ id string }

func (c seedConn) ID() string               { return c.id }
func (c seedConn) Send(realtime.Frame) bool { return true }
func (c seedConn) Close()                   {}

func (s *testServer) seed(t *testing.T, identity string, envelopes ...domain.Envelope) {
	t.Helper()
	conn := seedConn{id: "seed-" + identity}
	s.registry.Register(conn, identity, domain.RoleCustomer)
	defer s.registry.Unregister(conn)
	for _, e := range envelopes {
		if _, err := s.services.Relay.Submit(context.Background(), conn, e); err != nil {
			t.Fatalf("seed %s: %v", identity, err)
		}
	}
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *testServer) dial(t *testing.T, tok string) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/chat?token=" + tok
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial: %v (status %d)", err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(frameType string, payload interface{}) {
	c.t.Helper()
	frame, err := realtime.NewFrame(frameType, payload)
	if err != nil {
		c.t.Fatalf("build frame: %v", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(frame); err != nil {
		c.t.Fatalf("write %s: %v", frameType, err)
	}
}

// expect читает кадры, пропуская другие типы, пока не придет нужный
func (c *wsClient) expect(frameType string, v interface{}) {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = c.conn.SetReadDeadline(deadline)
		var frame realtime.Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			c.t.Fatalf("waiting for %s: %v", frameType, err)
		}
		if frame.Type != frameType {
			continue
		}
		if v != nil {
			if err := json.Unmarshal(frame.Data, v); err != nil {
				c.t.Fatalf("decode %s: %v", frameType, err)
			}
		}
		return
	}
}

func (c *wsClient) identify(identity string, role domain.Role) realtime.IdentifiedPayload {
	c.t.Helper()
	c.send(realtime.FrameIdentify, realtime.IdentifyPayload{Identity: identity, Role: role})
	var identified realtime.IdentifiedPayload
	c.expect(realtime.FrameIdentified, &identified)
	return identified
}

func (s *testServer) request(t *testing.T, method, path, tok string, body interface{}) *http.Response {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = strings.NewReader(string(data))
	} else {
		reader = strings.NewReader("")
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}
