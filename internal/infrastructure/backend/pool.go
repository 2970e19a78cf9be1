package backend

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"voxrelay/internal/core/domain"
	"voxrelay/internal/core/ports"
	"voxrelay/pkg/circuitbreaker"
	"voxrelay/pkg/retry"

	"go.uber.org/zap"
)

// Config holds the dialing parameters for the chat backend.
type Config struct {
	Host           string
	Port           int
	DialTimeout    time.Duration
	CommandTimeout time.Duration
	RetryAttempts  int
}

// SessionPool dials and owns backend sessions, one per connected client
// identity. All sessions share one circuit breaker since they talk to the
// same backend process.
type SessionPool struct {
	cfg     Config
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger

	mu       sync.RWMutex
	sessions map[domain.ClientID]*Session
	closed   bool
}

func NewSessionPool(cfg Config, logger *zap.SugaredLogger) *SessionPool {
	return &SessionPool{
		cfg:      cfg,
		breaker:  circuitbreaker.New(circuitbreaker.DefaultConfig()),
		logger:   logger,
		sessions: make(map[domain.ClientID]*Session),
	}
}

// Connect dials the backend with retry and registers the session under the
// identity the backend assigned in its greeting.
func (p *SessionPool) Connect(ctx context.Context) (ports.BackendSession, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, domain.ErrBackendUnavailable
	}
	p.mu.RUnlock()

	addr := net.JoinHostPort(p.cfg.Host, fmt.Sprintf("%d", p.cfg.Port))

	retryCfg := retry.DefaultConfig()
	if p.cfg.RetryAttempts > 0 {
		retryCfg.MaxAttempts = p.cfg.RetryAttempts
	}

	session, err := retry.RetryWithResult(ctx, retryCfg, func() (*Session, error) {
		conn, err := net.DialTimeout("tcp", addr, p.cfg.DialTimeout)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return newSession(conn, p.cfg.DialTimeout, p.cfg.CommandTimeout, p.breaker, p.logger)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}

	p.mu.Lock()
	if old, exists := p.sessions[session.ClientID()]; exists {
		old.Close()
	}
	p.sessions[session.ClientID()] = session
	p.mu.Unlock()

	return session, nil
}

func (p *SessionPool) Session(id domain.ClientID) (ports.BackendSession, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, exists := p.sessions[id]
	if !exists {
		return nil, false
	}
	return s, true
}

func (p *SessionPool) Disconnect(id domain.ClientID) error {
	p.mu.Lock()
	s, exists := p.sessions[id]
	delete(p.sessions, id)
	p.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: no backend session for %s", domain.ErrClientNotConnected, id)
	}
	return s.Close()
}

func (p *SessionPool) ConnectedIDs() []domain.ClientID {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]domain.ClientID, 0, len(p.sessions))
	for id, s := range p.sessions {
		if s.Connected() {
			ids = append(ids, id)
		}
	}
	return ids
}

func (p *SessionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for id, s := range p.sessions {
		s.Close()
		delete(p.sessions, id)
	}
	return nil
}
