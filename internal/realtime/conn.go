package realtime

// Conn - живое дуплексное соединение. Send не блокирует: false означает,
// что соединение закрыто или его очередь переполнена.
type Conn interface {
	ID() string
	Send(frame Frame) bool
	Close()
}
