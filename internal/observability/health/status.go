// Package health runs connectivity checks against the backends an
// experiment reports to.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HealthStatus represents the health status
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// CheckFunc reports a failure as a non-nil error
type CheckFunc func(ctx context.Context) error

// Pinger is implemented by every storage backend
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResult represents the result of a health check
type HealthResult struct {
	Status   HealthStatus  `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// SystemStatus is the outcome of one round of checks
type SystemStatus struct {
	OverallStatus HealthStatus            `json:"overall_status"`
	CheckResults  map[string]HealthResult `json:"check_results"`
	LastCheck     time.Time               `json:"last_check"`
}

type check struct {
	name     string
	fn       CheckFunc
	critical bool
}

// HealthMonitor holds the registered checks
type HealthMonitor struct {
	logger  *logrus.Logger
	timeout time.Duration
	mu      sync.RWMutex
	checks  []check
	last    *SystemStatus
}

// NewHealthMonitor creates a monitor. Each check gets at most timeout.
func NewHealthMonitor(timeout time.Duration, logger *logrus.Logger) *HealthMonitor {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &HealthMonitor{logger: logger, timeout: timeout}
}

// RegisterCheck adds a check. A failing critical check makes the whole
// status unhealthy; any other failure only degrades it.
func (hm *HealthMonitor) RegisterCheck(name string, critical bool, fn CheckFunc) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.checks = append(hm.checks, check{name: name, fn: fn, critical: critical})
	hm.logger.WithField("check", name).Debug("Registered health check")
}

// RegisterPinger registers backend as a check when it can be pinged
func (hm *HealthMonitor) RegisterPinger(name string, critical bool, backend interface{}) bool {
	p, ok := backend.(Pinger)
	if !ok {
		return false
	}
	hm.RegisterCheck(name, critical, p.Ping)
	return true
}

// Names lists the registered checks in order
func (hm *HealthMonitor) Names() []string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	names := make([]string, 0, len(hm.checks))
	for _, c := range hm.checks {
		names = append(names, c.name)
	}
	sort.Strings(names)
	return names
}

// Run executes every check concurrently and returns the combined status
func (hm *HealthMonitor) Run(ctx context.Context) *SystemStatus {
	hm.mu.RLock()
	checks := append([]check(nil), hm.checks...)
	hm.mu.RUnlock()

	results := make([]HealthResult, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func(i int, c check) {
			defer wg.Done()
			results[i] = hm.runCheck(ctx, c)
		}(i, c)
	}
	wg.Wait()

	status := &SystemStatus{
		OverallStatus: StatusHealthy,
		CheckResults:  make(map[string]HealthResult, len(checks)),
		LastCheck:     time.Now(),
	}
	for i, c := range checks {
		r := results[i]
		status.CheckResults[c.name] = r
		if r.Status == StatusHealthy {
			continue
		}
		if c.critical {
			status.OverallStatus = StatusUnhealthy
		} else if status.OverallStatus == StatusHealthy {
			status.OverallStatus = StatusDegraded
		}
	}

	hm.mu.Lock()
	hm.last = status
	hm.mu.Unlock()

	return status
}

// Last returns the status of the previous Run, or nil
func (hm *HealthMonitor) Last() *SystemStatus {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	return hm.last
}

func (hm *HealthMonitor) runCheck(ctx context.Context, c check) HealthResult {
	ctx, cancel := context.WithTimeout(ctx, hm.timeout)
	defer cancel()

	start := time.Now()
	err := c.fn(ctx)
	result := HealthResult{Status: StatusHealthy, Duration: time.Since(start)}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
		hm.logger.WithError(err).WithField("check", c.name).Warn("Health check failed")
	}
	return result
}
