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

const (
	presenceTTL    = 5 * time.Minute
	instanceSetTTL = 10 * time.Minute
)

// presenceRecord is the stored value for one online client.
type presenceRecord struct {
	InstanceID   string `json:"instance_id"`
	RegisteredAt int64  `json:"registered_at"`
}

// SharedPresence keeps a TTL-guarded snapshot of which clients are online
// and which gateway instance holds their connection. Entries expire on
// their own, so a crashed instance leaks nothing permanent.
type SharedPresence struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
}

func NewSharedPresence(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *SharedPresence {
	return &SharedPresence{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
	}
}

// MarkOnline records that this instance holds id's connection.
func (p *SharedPresence) MarkOnline(ctx context.Context, id domain.ClientID) error {
	record, err := json.Marshal(presenceRecord{
		InstanceID:   p.instanceID,
		RegisteredAt: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal presence record: %w", err)
	}

	if err := p.client.Set(ctx, p.clientKey(id), record, presenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to mark client online: %w", err)
	}

	instanceKey := p.instanceKey(p.instanceID)
	if err := p.client.SAdd(ctx, instanceKey, id.String()).Err(); err != nil {
		return fmt.Errorf("failed to add client to instance set: %w", err)
	}
	p.client.Expire(ctx, instanceKey, instanceSetTTL)

	return nil
}

// MarkOffline removes id from the snapshot.
func (p *SharedPresence) MarkOffline(ctx context.Context, id domain.ClientID) error {
	p.client.SRem(ctx, p.instanceKey(p.instanceID), id.String())
	return p.client.Del(ctx, p.clientKey(id)).Err()
}

// IsOnline reports whether any instance currently holds id.
func (p *SharedPresence) IsOnline(ctx context.Context, id domain.ClientID) (bool, error) {
	_, err := p.client.Get(ctx, p.clientKey(id)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check presence: %w", err)
	}
	return true, nil
}

// Refresh extends the TTL of id's presence entry. Called from the
// liveness sweep so entries outlive their TTL only while the connection
// keeps answering pings.
func (p *SharedPresence) Refresh(ctx context.Context, id domain.ClientID) error {
	return p.client.Expire(ctx, p.clientKey(id), presenceTTL).Err()
}

// InstanceClients lists the clients held by one instance.
func (p *SharedPresence) InstanceClients(ctx context.Context, instanceID string) ([]domain.ClientID, error) {
	members, err := p.client.SMembers(ctx, p.instanceKey(instanceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get instance clients: %w", err)
	}

	ids := make([]domain.ClientID, len(members))
	for i, m := range members {
		ids[i] = domain.ClientID(m)
	}
	return ids, nil
}

// CleanupInstance drops every entry this instance owns. Called on
// graceful shutdown.
func (p *SharedPresence) CleanupInstance(ctx context.Context) error {
	instanceKey := p.instanceKey(p.instanceID)
	members, err := p.client.SMembers(ctx, instanceKey).Result()
	if err != nil {
		return fmt.Errorf("failed to get instance clients: %w", err)
	}

	for _, m := range members {
		if err := p.client.Del(ctx, p.clientKey(domain.ClientID(m))).Err(); err != nil {
			p.logger.Warnw("failed to remove presence entry during cleanup",
				"client_id", m,
				"error", err,
			)
		}
	}

	return p.client.Del(ctx, instanceKey).Err()
}

func (p *SharedPresence) clientKey(id domain.ClientID) string {
	return "voxrelay:client:" + id.String()
}

func (p *SharedPresence) instanceKey(instanceID string) string {
	return fmt.Sprintf("voxrelay:instance:%s:clients", instanceID)
}
