package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"voxrelay/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType names a gateway presence transition.
type EventType string

const (
	EventClientRegistered   EventType = "client.registered"
	EventClientUnregistered EventType = "client.unregistered"
	EventCallStarted        EventType = "call.started"
	EventCallEnded          EventType = "call.ended"
)

const eventChannel = "voxrelay:presence"

// Event is one presence transition as published to other gateway
// instances over redis pub/sub.
type Event struct {
	Type       EventType       `json:"type"`
	InstanceID string          `json:"instance_id"`
	Timestamp  time.Time       `json:"timestamp"`
	ClientID   domain.ClientID `json:"client_id,omitempty"`
	CallKey    domain.CallKey  `json:"call_key,omitempty"`
}

// PresenceBus publishes registry and call-table transitions over redis so
// sibling gateway instances can observe presence. Events carry the
// publishing instance id; subscribers drop their own.
type PresenceBus struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
	pubsub     *redis.PubSub
}

func NewPresenceBus(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *PresenceBus {
	return &PresenceBus{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
	}
}

func (b *PresenceBus) publish(ctx context.Context, event *Event) error {
	event.InstanceID = b.instanceID
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal presence event: %w", err)
	}

	if err := b.client.Publish(ctx, eventChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish presence event: %w", err)
	}

	b.logger.Debugw("published presence event",
		"type", event.Type,
		"client_id", event.ClientID,
		"call_key", event.CallKey,
	)
	return nil
}

func (b *PresenceBus) PublishRegistered(ctx context.Context, id domain.ClientID) error {
	return b.publish(ctx, &Event{Type: EventClientRegistered, ClientID: id})
}

func (b *PresenceBus) PublishUnregistered(ctx context.Context, id domain.ClientID) error {
	return b.publish(ctx, &Event{Type: EventClientUnregistered, ClientID: id})
}

func (b *PresenceBus) PublishCallStarted(ctx context.Context, key domain.CallKey) error {
	return b.publish(ctx, &Event{Type: EventCallStarted, CallKey: key})
}

func (b *PresenceBus) PublishCallEnded(ctx context.Context, key domain.CallKey) error {
	return b.publish(ctx, &Event{Type: EventCallEnded, CallKey: key})
}

// Subscribe blocks, delivering events from other instances to handler
// until ctx is cancelled.
func (b *PresenceBus) Subscribe(ctx context.Context, handler func(*Event) error) error {
	if b.pubsub != nil {
		return fmt.Errorf("already subscribed")
	}

	b.pubsub = b.client.Subscribe(ctx, eventChannel)
	defer b.pubsub.Close()

	ch := b.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warnw("failed to unmarshal presence event",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}

			// Skip events from this instance
			if event.InstanceID == b.instanceID {
				continue
			}

			if err := handler(&event); err != nil {
				b.logger.Warnw("error handling presence event",
					"type", event.Type,
					"error", err,
				)
			}
		}
	}
}

// Close closes the subscription if one is active.
func (b *PresenceBus) Close() error {
	if b.pubsub != nil {
		return b.pubsub.Close()
	}
	return nil
}
