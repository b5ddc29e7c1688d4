package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"support_chat/internal/config"
	"support_chat/internal/domain"
	"support_chat/internal/middleware"
	"support_chat/internal/realtime"
	"support_chat/internal/service"
	"support_chat/pkg/errors"
	"support_chat/pkg/logger"
)

// Запас на JSON-обертку кадра поверх base64 вложения и текста
const frameOverheadBytes = 64 << 10

type WebSocketHandler struct {
	relay         service.RelayService
	conversations service.ConversationService
	registry      realtime.Registry
	upgrader      websocket.Upgrader
	cfg           config.ChatConfig
	readLimit     int64
	log           logger.Logger
}

func NewWebSocketHandler(
	relay service.RelayService,
	conversations service.ConversationService,
	registry realtime.Registry,
	cfg *config.Config,
	log logger.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		relay:         relay,
		conversations: conversations,
		registry:      registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.Server.AllowedOrigins),
		},
		cfg:       cfg.Chat,
		readLimit: cfg.Chat.MaxAttachmentBytes*4/3 + int64(service.MaxTextRunes*4) + frameOverheadBytes,
		log:       log,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleChat - GET /ws/chat, токен проверен RequireAuth до апгрейда
func (h *WebSocketHandler) HandleChat(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Failed to upgrade connection", "error", err)
		return
	}

	connID := uuid.NewString()
	log := h.log.With("connection_id", connID, "principal", principal.Identity)
	conn := newWSConn(c.Request.Context(), connID, ws, h.cfg.SendBufferSize, h.cfg.WriteWait, h.cfg.PongWait, log)

	go conn.writePump()
	log.Info("Chat connection opened")

	h.readPump(conn, principal, log)

	h.registry.Unregister(conn)
	conn.Close()
	<-conn.done
	log.Info("Chat connection closed")
}

func (h *WebSocketHandler) readPump(conn *wsConn, principal domain.Principal, log logger.Logger) {
	ws := conn.conn
	ws.SetReadLimit(h.readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Warn("Unexpected connection close", "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		var frame realtime.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			conn.Send(realtime.ErrorFrame("validation", "malformed frame"))
			continue
		}
		h.dispatch(conn.ctx, conn, principal, frame, log)
	}
}

// dispatch обрабатывает кадры одного соединения последовательно
func (h *WebSocketHandler) dispatch(ctx context.Context, conn realtime.Conn, principal domain.Principal, frame realtime.Frame, log logger.Logger) {
	var err error
	switch frame.Type {
	case realtime.FrameIdentify:
		err = h.handleIdentify(conn, principal, frame)
	case realtime.FrameSendMessage:
		err = h.handleSendMessage(ctx, conn, frame)
	case realtime.FrameRequestHistory:
		err = h.handleRequestHistory(ctx, conn, frame)
	case realtime.FramePing:
		pong, _ := realtime.NewFrame(realtime.FramePong, nil)
		conn.Send(pong)
	default:
		err = fmt.Errorf("%w: unknown frame type %q", errors.ErrValidation, frame.Type)
	}

	if err != nil {
		log.Debug("Frame rejected", "frame", frame.Type, "error", err)
		conn.Send(realtime.ErrorFrame(errors.WireCode(err), errorReason(err)))
	}
}

func (h *WebSocketHandler) handleIdentify(conn realtime.Conn, principal domain.Principal, frame realtime.Frame) error {
	var payload realtime.IdentifyPayload
	if err := frame.Decode(&payload); err != nil {
		return wrapValidation(err)
	}

	role := payload.Role
	if role == "" {
		role = principal.Role
	}
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", errors.ErrValidation, role)
	}
	if role != principal.Role {
		return errors.ErrForbidden
	}

	identity := principal.Identity
	if role == domain.RoleCustomer {
		if requested := domain.NormalizeIdentity(payload.Identity); requested != "" && requested != principal.Identity {
			return errors.ErrIdentityMismatch
		}
	}

	h.registry.Register(conn, identity, role)

	identified, err := realtime.NewFrame(realtime.FrameIdentified, realtime.IdentifiedPayload{
		Identity:     identity,
		Role:         role,
		ConnectionID: conn.ID(),
		AdminOnline:  h.registry.IsAdminConnected(),
	})
	if err != nil {
		return err
	}
	conn.Send(identified)

	// Консоль администратора получает снимок присутствия, дальше - изменения
	if role == domain.RoleAdmin {
		for _, online := range h.registry.OnlineIdentities() {
			presence, _ := realtime.NewFrame(realtime.FramePresenceChanged, realtime.PresencePayload{Identity: online, Online: true})
			conn.Send(presence)
		}
	}
	return nil
}

func (h *WebSocketHandler) handleSendMessage(ctx context.Context, conn realtime.Conn, frame realtime.Frame) error {
	var envelope domain.Envelope
	if err := frame.Decode(&envelope); err != nil {
		return wrapValidation(err)
	}

	message, err := h.relay.Submit(ctx, conn, envelope)
	if err != nil {
		return err
	}

	sent, err := realtime.NewFrame(realtime.FrameMessageSent, realtime.MessagePayload{Message: message})
	if err != nil {
		return err
	}
	conn.Send(sent)
	return nil
}

func (h *WebSocketHandler) handleRequestHistory(ctx context.Context, conn realtime.Conn, frame realtime.Frame) error {
	identity, role, ok := h.registry.IdentityOf(conn)
	if !ok {
		return errors.ErrNotIdentified
	}

	if role == domain.RoleAdmin {
		var payload realtime.RequestHistoryPayload
		if err := frame.Decode(&payload); err != nil {
			return wrapValidation(err)
		}
		identity = payload.Identity
	}

	messages, status, err := h.conversations.History(ctx, identity)
	if err != nil {
		return err
	}

	history, err := realtime.NewFrame(realtime.FrameHistory, realtime.HistoryPayload{
		Identity: domain.NormalizeIdentity(identity),
		Messages: messages,
		Status:   status,
	})
	if err != nil {
		return err
	}
	conn.Send(history)
	return nil
}

func wrapValidation(err error) error {
	return fmt.Errorf("%w: %v", errors.ErrValidation, err)
}

// errorReason не раскрывает клиенту детали сбоев хранилища
func errorReason(err error) string {
	switch errors.WireCode(err) {
	case "persistence":
		return "message could not be stored, please retry"
	case "internal":
		return "internal error"
	default:
		return err.Error()
	}
}
