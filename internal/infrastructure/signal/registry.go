package signal

import (
	"sync"

	"voxrelay/internal/core/domain"

	"go.uber.org/zap"
)

// Registry maps client identities to their live connections and enforces
// at most one connection per identity. It also tracks unregistered
// connections so the liveness monitor can reap them.
type Registry struct {
	byID  map[domain.ClientID]*Conn
	conns map[*Conn]struct{}
	mu    sync.RWMutex

	logger *zap.SugaredLogger
}

func NewRegistry(logger *zap.SugaredLogger) *Registry {
	return &Registry{
		byID:   make(map[domain.ClientID]*Conn),
		conns:  make(map[*Conn]struct{}),
		logger: logger,
	}
}

// Track adds a freshly accepted connection before it registers.
func (r *Registry) Track(c *Conn) {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
}

// Untrack forgets a connection after its read loop exits.
func (r *Registry) Untrack(c *Conn) {
	r.mu.Lock()
	delete(r.conns, c)
	r.mu.Unlock()
}

// Register binds identity to conn. A stale connection registered under the
// same identity is closed and evicted first, so a reconnecting tab never
// leaves a ghost session behind. Registering the same connection twice is
// idempotent. Returns true if an old connection was evicted.
func (r *Registry) Register(id domain.ClientID, c *Conn) bool {
	r.mu.Lock()
	old, exists := r.byID[id]
	evict := exists && old != c
	r.byID[id] = c
	r.mu.Unlock()

	c.bindIdentity(id)

	if evict {
		// Close never fails on an already-closed connection.
		old.Close()
		r.logger.Infow("evicted stale connection",
			"client_id", id,
			"old_session", old.SessionID(),
			"new_session", c.SessionID(),
		)
	}
	return evict
}

// Unregister removes the binding only if it still points at conn, so a
// late-arriving close event cannot remove a newer registration.
func (r *Registry) Unregister(id domain.ClientID, c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.byID[id]
	if !exists || current != c {
		return false
	}
	delete(r.byID, id)
	return true
}

// Lookup returns the live connection for identity.
func (r *Registry) Lookup(id domain.ClientID) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.byID[id]
	return c, exists
}

// Send delivers a control message to identity. Callers treat any failure
// as a logged no-op; an unregistered target is reported via
// domain.ErrClientNotConnected so they can decide whether that matters.
func (r *Registry) Send(id domain.ClientID, v interface{}) error {
	c, exists := r.Lookup(id)
	if !exists {
		return domain.ErrClientNotConnected
	}
	return c.SendJSON(v)
}

// SendBinary forwards a raw frame to identity.
func (r *Registry) SendBinary(id domain.ClientID, frame []byte) error {
	c, exists := r.Lookup(id)
	if !exists {
		return domain.ErrClientNotConnected
	}
	return c.SendBinary(frame)
}

// Broadcast sends v to every registered connection except exclude.
// Failures are logged and skipped; the returned count is the number of
// successful sends.
func (r *Registry) Broadcast(v interface{}, exclude domain.ClientID) int {
	r.mu.RLock()
	targets := make(map[domain.ClientID]*Conn, len(r.byID))
	for id, c := range r.byID {
		if id != exclude {
			targets[id] = c
		}
	}
	r.mu.RUnlock()

	sent := 0
	for id, c := range targets {
		if err := c.SendJSON(v); err != nil {
			r.logger.Debugw("broadcast send failed", "client_id", id, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// Identities returns the currently registered client identities.
func (r *Registry) Identities() []domain.ClientID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]domain.ClientID, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	return ids
}

// Len reports the number of registered identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Connections snapshots every tracked connection, registered or not.
func (r *Registry) Connections() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}
