package realtime

import (
	"sort"
	"sync"

	"support_chat/internal/domain"
	"support_chat/pkg/logger"
)

// Registry связывает живые соединения с identity.
// Все методы безопасны для конкурентного вызова.
type Registry interface {
	Register(conn Conn, identity string, role domain.Role)
	Unregister(conn Conn)
	IdentityOf(conn Conn) (string, domain.Role, bool)
	ConnectionsFor(identity string) []Conn
	AdminConnections() []Conn
	IsAdminConnected() bool
	IsOnline(identity string) bool
	OnlineIdentities() []string
	// Broadcast отправляет кадр всем соединениям identity и всем консолям администратора,
	// кроме exclude. Выполняется под блокировкой чтения, поэтому не пересекается с Register/Unregister.
	Broadcast(identity string, frame Frame, exclude Conn) int
}

type registration struct {
	conn     Conn
	identity string
	role     domain.Role
}

type registry struct {
	mu         sync.RWMutex
	byConn     map[string]registration
	byIdentity map[string]map[string]Conn
	onPresence PresenceListener
	log        logger.Logger
}

// PresenceListener вызывается под блокировкой реестра и не должен блокировать
type PresenceListener func(identity string, online bool)

// NewRegistry создает реестр; onPresence может быть nil
func NewRegistry(log logger.Logger, onPresence PresenceListener) Registry {
	return &registry{
		byConn:     make(map[string]registration),
		byIdentity: make(map[string]map[string]Conn),
		onPresence: onPresence,
		log:        log,
	}
}

func (r *registry) Register(conn Conn, identity string, role domain.Role) {
	if role == domain.RoleAdmin {
		identity = domain.AdminIdentity
	} else {
		identity = domain.NormalizeIdentity(identity)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byConn[conn.ID()]; ok {
		if prev.identity == identity {
			r.byConn[conn.ID()] = registration{conn: conn, identity: identity, role: role}
			r.byIdentity[identity][conn.ID()] = conn
			return
		}
		r.removeLocked(prev)
	}

	conns, ok := r.byIdentity[identity]
	if !ok {
		conns = make(map[string]Conn)
		r.byIdentity[identity] = conns
	}
	conns[conn.ID()] = conn
	r.byConn[conn.ID()] = registration{conn: conn, identity: identity, role: role}

	r.log.Debug("Connection registered", "connection_id", conn.ID(), "identity", identity, "role", role)

	if role == domain.RoleCustomer && len(conns) == 1 {
		r.presenceLocked(identity, true)
	}
}

func (r *registry) Unregister(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.byConn[conn.ID()]
	if !ok {
		return
	}
	r.removeLocked(reg)
	r.log.Debug("Connection unregistered", "connection_id", conn.ID(), "identity", reg.identity)
}

// removeLocked удаляет регистрацию; вызывается под r.mu
func (r *registry) removeLocked(reg registration) {
	delete(r.byConn, reg.conn.ID())

	conns := r.byIdentity[reg.identity]
	delete(conns, reg.conn.ID())
	if len(conns) > 0 {
		return
	}
	delete(r.byIdentity, reg.identity)

	if reg.role == domain.RoleCustomer {
		r.presenceLocked(reg.identity, false)
	}
}

// Уведомление о присутствии best-effort: Send не блокирует
func (r *registry) presenceLocked(identity string, online bool) {
	frame := presenceFrame(identity, online)
	for _, admin := range r.byIdentity[domain.AdminIdentity] {
		admin.Send(frame)
	}
	if r.onPresence != nil {
		r.onPresence(identity, online)
	}
}

func (r *registry) IdentityOf(conn Conn) (string, domain.Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.byConn[conn.ID()]
	if !ok {
		return "", "", false
	}
	return reg.identity, reg.role, true
}

func (r *registry) ConnectionsFor(identity string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byIdentity[identity]
	result := make([]Conn, 0, len(conns))
	for _, c := range conns {
		result = append(result, c)
	}
	return result
}

func (r *registry) AdminConnections() []Conn {
	return r.ConnectionsFor(domain.AdminIdentity)
}

func (r *registry) IsAdminConnected() bool {
	return r.IsOnline(domain.AdminIdentity)
}

func (r *registry) IsOnline(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity[identity]) > 0
}

func (r *registry) OnlineIdentities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identities := make([]string, 0, len(r.byIdentity))
	for identity := range r.byIdentity {
		if identity == domain.AdminIdentity {
			continue
		}
		identities = append(identities, identity)
	}
	sort.Strings(identities)
	return identities
}

func (r *registry) Broadcast(identity string, frame Frame, exclude Conn) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	excludeID := ""
	if exclude != nil {
		excludeID = exclude.ID()
	}

	delivered := 0
	send := func(conns map[string]Conn) {
		for id, c := range conns {
			if id == excludeID {
				continue
			}
			if c.Send(frame) {
				delivered++
			}
		}
	}

	send(r.byIdentity[identity])
	if identity != domain.AdminIdentity {
		send(r.byIdentity[domain.AdminIdentity])
	}
	return delivered
}
