package handler

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"support_chat/internal/realtime"
	"support_chat/pkg/logger"
)

// wsConn - realtime.Conn поверх gorilla/websocket. Писать в сокет может только writePump,
// остальные горутины ставят кадры в ограниченную очередь.
type wsConn struct {
	id        string
	conn      *websocket.Conn
	send      chan realtime.Frame
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
	writeWait time.Duration
	pongWait  time.Duration
	log       logger.Logger
}

func newWSConn(parent context.Context, id string, conn *websocket.Conn, buffer int, writeWait, pongWait time.Duration, log logger.Logger) *wsConn {
	ctx, cancel := context.WithCancel(parent)
	return &wsConn{
		id:        id,
		conn:      conn,
		send:      make(chan realtime.Frame, buffer),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		writeWait: writeWait,
		pongWait:  pongWait,
		log:       log,
	}
}

func (c *wsConn) ID() string {
	return c.id
}

// Send не блокирует. Переполненная очередь означает медленного клиента:
// соединение закрывается, остальные получатели не ждут.
func (c *wsConn) Send(frame realtime.Frame) bool {
	if c.ctx.Err() != nil {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.log.Warn("Send buffer full, closing slow connection", "frame", frame.Type)
		c.Close()
		return false
	}
}

func (c *wsConn) Close() {
	c.closeOnce.Do(c.cancel)
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.writeWait))
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				c.log.Debug("Write failed", "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait)); err != nil {
				c.log.Debug("Ping failed", "error", err)
				c.Close()
				return
			}
		}
	}
}
