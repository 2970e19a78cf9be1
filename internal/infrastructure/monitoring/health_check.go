package monitoring

import (
	"context"
	"sync"
	"time"
)

// CheckFunc probes one dependency. It returns false or an error when the
// dependency is unusable.
type CheckFunc func(ctx context.Context) (bool, error)

type healthCheck struct {
	name    string
	check   CheckFunc
	timeout time.Duration
}

// HealthChecker aggregates dependency probes for the readiness endpoint.
type HealthChecker struct {
	mu     sync.RWMutex
	checks []healthCheck
}

// HealthStatus is the readiness report: overall status plus one line per
// probe.
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

func (h *HealthChecker) AddCheck(name string, check CheckFunc, timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.checks = append(h.checks, healthCheck{name: name, check: check, timeout: timeout})
}

// CheckAll runs every probe and reports "unhealthy" if any fails.
func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := make([]healthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}

	for _, hc := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, hc.timeout)
		healthy, err := hc.check(checkCtx)
		cancel()

		switch {
		case err != nil:
			status.Status = "unhealthy"
			status.Checks[hc.name] = err.Error()
		case !healthy:
			status.Status = "unhealthy"
			status.Checks[hc.name] = "check failed"
		default:
			status.Checks[hc.name] = "healthy"
		}
	}

	return status
}

// IsReady reports whether every probe passes.
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	return h.CheckAll(ctx).Status == "healthy"
}
