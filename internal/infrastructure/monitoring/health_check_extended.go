package monitoring

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// AddRedisCheck probes the presence-bus redis with a ping.
func (h *HealthChecker) AddRedisCheck(client *redis.Client, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) (bool, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			return false, err
		}
		return true, nil
	}, timeout)
}

// AddBackendCheck verifies the chat backend accepts TCP connections. The
// probe dials and closes immediately; the backend treats that as a client
// that never registered.
func (h *HealthChecker) AddBackendCheck(host string, port int, timeout time.Duration) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	h.AddCheck("backend", func(ctx context.Context) (bool, error) {
		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			return false, err
		}
		conn.Close()
		return true, nil
	}, timeout)
}
