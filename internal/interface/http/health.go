package http

import (
	"context"
	"sync"
	"time"
)

// CheckFunc probes a single dependency and returns an error when it is down.
type CheckFunc func(ctx context.Context) error

// CheckResult is the outcome of one dependency probe.
type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// HealthStatus aggregates all dependency probes.
type HealthStatus struct {
	Healthy   bool                   `json:"healthy"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// HealthChecker runs named dependency probes with a per-probe timeout.
type HealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	timeout time.Duration
}

// NewHealthChecker creates an empty health checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:  make(map[string]CheckFunc),
		timeout: 5 * time.Second,
	}
}

// AddCheck registers a named dependency probe.
func (c *HealthChecker) AddCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Check runs every registered probe and aggregates the results.
func (c *HealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	status := HealthStatus{
		Healthy:   true,
		Checks:    make(map[string]CheckResult),
		Timestamp: time.Now().UTC(),
	}

	for name, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		start := time.Now()
		err := check(checkCtx)
		cancel()

		result := CheckResult{
			Healthy:  err == nil,
			Duration: time.Since(start).Round(time.Millisecond).String(),
		}
		if err != nil {
			result.Message = err.Error()
			status.Healthy = false
		}
		status.Checks[name] = result
	}

	return status
}
