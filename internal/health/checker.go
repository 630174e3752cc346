// Package health reports the state of the artifact bundle and the storage backends.
// Checks run on demand when /health is requested; nothing polls in the background.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gh-risk-server/internal/artifact"
)

// HealthState represents the health state of a component
type HealthState string

const (
	HealthStateHealthy   HealthState = "healthy"
	HealthStateUnhealthy HealthState = "unhealthy"
	HealthStateWarning   HealthState = "warning"
)

// ComponentHealth is the result of one check.
type ComponentHealth struct {
	Name        string                 `json:"name"`
	Status      HealthState            `json:"status"`
	Message     string                 `json:"message"`
	LastChecked time.Time              `json:"last_checked"`
	Duration    time.Duration          `json:"duration"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// HealthStatus is the aggregated report.
type HealthStatus struct {
	Overall    HealthState                `json:"overall"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
}

// HealthCheck is one component probe. A failing critical check makes the service
// unhealthy; a failing non-critical check only puts it in warning.
type HealthCheck interface {
	Name() string
	Critical() bool
	Check(ctx context.Context) ComponentHealth
}

// Pinger is satisfied by the prediction stores and the latest-risk caches.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker runs the registered checks.
type HealthChecker struct {
	logger  *logrus.Logger
	version string
	timeout time.Duration
	started time.Time
	checks  []HealthCheck
	mutex   sync.RWMutex
}

// NewHealthChecker creates a checker. timeout bounds each individual check.
func NewHealthChecker(version string, timeout time.Duration, logger *logrus.Logger) *HealthChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthChecker{
		logger:  logger,
		version: version,
		timeout: timeout,
		started: time.Now(),
	}
}

// RegisterCheck adds a check.
func (h *HealthChecker) RegisterCheck(check HealthCheck) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.checks = append(h.checks, check)
}

// Check runs every registered check concurrently and aggregates the results.
func (h *HealthChecker) Check(ctx context.Context) *HealthStatus {
	h.mutex.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mutex.RUnlock()

	results := make([]ComponentHealth, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check HealthCheck) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			results[i] = check.Check(cctx)
			results[i].Name = check.Name()
		}(i, check)
	}
	wg.Wait()

	status := &HealthStatus{
		Overall:    HealthStateHealthy,
		Timestamp:  time.Now().UTC(),
		Version:    h.version,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		Components: make(map[string]ComponentHealth, len(results)),
	}

	var failing []string
	for i, res := range results {
		status.Components[res.Name] = res
		if res.Status == HealthStateHealthy {
			continue
		}
		failing = append(failing, res.Name)
		if checks[i].Critical() {
			status.Overall = HealthStateUnhealthy
		} else if status.Overall == HealthStateHealthy {
			status.Overall = HealthStateWarning
		}
	}

	if len(failing) > 0 {
		sort.Strings(failing)
		h.logger.WithFields(logrus.Fields{
			"overall":   status.Overall,
			"unhealthy": failing,
		}).Warn("Health check found failing components")
	}
	return status
}

// ArtifactHealthCheck reports the published artifact bundle.
type ArtifactHealthCheck struct {
	registry *artifact.Registry
}

// NewArtifactHealthCheck creates the critical check over the registry's current bundle.
func NewArtifactHealthCheck(registry *artifact.Registry) *ArtifactHealthCheck {
	return &ArtifactHealthCheck{registry: registry}
}

// Name returns "artifacts".
func (a *ArtifactHealthCheck) Name() string { return "artifacts" }

// Critical is always true: nothing can be scored without a bundle.
func (a *ArtifactHealthCheck) Critical() bool { return true }

// Check reports unhealthy when no bundle is published, else the bundle version and model.
func (a *ArtifactHealthCheck) Check(ctx context.Context) ComponentHealth {
	res := ComponentHealth{LastChecked: time.Now().UTC()}
	b := a.registry.Current()
	if b == nil {
		res.Status = HealthStateUnhealthy
		res.Message = "no artifact bundle loaded"
		return res
	}
	res.Status = HealthStateHealthy
	res.Message = "artifact bundle loaded"
	res.Metadata = map[string]interface{}{
		"version":    b.Version,
		"model":      b.Model.Name,
		"calibrated": b.HasCalibrator(),
		"features":   b.Width(),
		"loaded_at":  b.LoadedAt,
	}
	return res
}

// PingHealthCheck probes a store or cache.
type PingHealthCheck struct {
	name     string
	target   Pinger
	critical bool
}

// NewPingHealthCheck creates a probe named name. Storage is normally registered as
// non-critical since predictions keep working while persistence is degraded.
func NewPingHealthCheck(name string, target Pinger, critical bool) *PingHealthCheck {
	return &PingHealthCheck{name: name, target: target, critical: critical}
}

// Name returns the component name given at construction.
func (p *PingHealthCheck) Name() string { return p.name }

// Critical reports whether a failed ping makes the service unhealthy.
func (p *PingHealthCheck) Critical() bool { return p.critical }

// Check pings the target and reports the error, if any, as unhealthy.
func (p *PingHealthCheck) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	err := p.target.Ping(ctx)
	res := ComponentHealth{
		LastChecked: start.UTC(),
		Duration:    time.Since(start),
		Status:      HealthStateHealthy,
		Message:     p.name + " reachable",
	}
	if err != nil {
		res.Status = HealthStateUnhealthy
		res.Message = p.name + " unreachable"
		res.Error = err.Error()
	}
	return res
}
