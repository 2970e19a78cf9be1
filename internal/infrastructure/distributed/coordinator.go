package distributed

import (
	"context"

	"voxrelay/internal/core/domain"

	"go.uber.org/zap"
)

// Coordinator combines the pub/sub bus with the shared presence snapshot:
// every local registry transition is published to siblings and mirrored
// into redis, so any instance can answer "is this client online anywhere".
// It implements ports.PresenceBus.
type Coordinator struct {
	bus    *PresenceBus
	shared *SharedPresence
	logger *zap.SugaredLogger
}

func NewCoordinator(bus *PresenceBus, shared *SharedPresence, logger *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		bus:    bus,
		shared: shared,
		logger: logger,
	}
}

func (c *Coordinator) PublishRegistered(ctx context.Context, id domain.ClientID) error {
	if err := c.shared.MarkOnline(ctx, id); err != nil {
		c.logger.Warnw("failed to mark client online", "client_id", id, "error", err)
	}
	return c.bus.PublishRegistered(ctx, id)
}

func (c *Coordinator) PublishUnregistered(ctx context.Context, id domain.ClientID) error {
	if err := c.shared.MarkOffline(ctx, id); err != nil {
		c.logger.Warnw("failed to mark client offline", "client_id", id, "error", err)
	}
	return c.bus.PublishUnregistered(ctx, id)
}

func (c *Coordinator) PublishCallStarted(ctx context.Context, key domain.CallKey) error {
	return c.bus.PublishCallStarted(ctx, key)
}

func (c *Coordinator) PublishCallEnded(ctx context.Context, key domain.CallKey) error {
	return c.bus.PublishCallEnded(ctx, key)
}

// IsOnlineAnywhere answers across all instances, not just this one.
func (c *Coordinator) IsOnlineAnywhere(ctx context.Context, id domain.ClientID) (bool, error) {
	return c.shared.IsOnline(ctx, id)
}

// RefreshAll extends the presence TTL of the given local clients. Driven
// by the gauge ticker so entries expire only when the instance dies.
func (c *Coordinator) RefreshAll(ctx context.Context, ids []domain.ClientID) {
	for _, id := range ids {
		if err := c.shared.Refresh(ctx, id); err != nil {
			c.logger.Debugw("presence refresh failed", "client_id", id, "error", err)
		}
	}
}

// Run consumes sibling events until ctx is cancelled. The gateway only
// observes them today; the shared snapshot already carries the state.
func (c *Coordinator) Run(ctx context.Context) error {
	return c.bus.Subscribe(ctx, func(event *Event) error {
		c.logger.Debugw("sibling presence event",
			"type", event.Type,
			"instance_id", event.InstanceID,
			"client_id", event.ClientID,
			"call_key", event.CallKey,
		)
		return nil
	})
}

func (c *Coordinator) Close() error {
	return c.bus.Close()
}
