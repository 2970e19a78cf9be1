package signal

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LivenessMonitor is a two-tick dead-peer detector. Each sweep closes any
// connection that did not pong since the previous sweep, then marks the
// rest suspect and pings them. A dead peer is detected within two
// intervals at worst; the close handler does the registry cleanup.
type LivenessMonitor struct {
	registry *Registry
	interval time.Duration
	logger   *zap.SugaredLogger
}

func NewLivenessMonitor(registry *Registry, interval time.Duration, logger *zap.SugaredLogger) *LivenessMonitor {
	return &LivenessMonitor{
		registry: registry,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps until ctx is cancelled.
func (m *LivenessMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep runs one liveness pass over every tracked connection.
func (m *LivenessMonitor) Sweep() {
	for _, conn := range m.registry.Connections() {
		if !conn.isAlive() {
			m.logger.Infow("closing dead connection",
				"session_id", conn.SessionID(),
				"client_id", conn.Identity(),
			)
			conn.Close()
			continue
		}

		conn.setAlive(false)
		if err := conn.Ping(); err != nil {
			m.logger.Debugw("ping failed, closing",
				"session_id", conn.SessionID(),
				"error", err,
			)
			conn.Close()
		}
	}
}
