package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aldhinn/Fintel/pkg/logger"
)

// Pinger is a dependency that can report its health
type Pinger interface {
	Health(ctx context.Context) error
}

// Checker serves liveness and readiness probes
type Checker struct {
	mu        sync.RWMutex
	checks    map[string]Pinger
	ready     bool
	startTime time.Time
}

// HealthStatus represents system health
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ReadinessStatus represents system readiness
type ReadinessStatus struct {
	Ready     bool              `json:"ready"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// NewChecker creates new health checker
func NewChecker() *Checker {
	return &Checker{
		checks:    make(map[string]Pinger),
		startTime: time.Now(),
	}
}

// Register adds a named dependency to readiness checks
func (c *Checker) Register(name string, p Pinger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = p
}

// SetReady marks the service as ready
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	c.ready = ready
	c.mu.Unlock()

	if ready {
		logger.Info("✅ service marked as READY")
	} else {
		logger.Warn("⚠️ service marked as NOT READY")
	}
}

// Liveness handles /health
// Returns 200 if process is alive (even if dependencies are down)
func (c *Checker) Liveness(ctx echo.Context) error {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
	}

	if ctx.QueryParam("verbose") == "true" {
		status.Checks, _ = c.runChecks(ctx.Request().Context())
	}

	return ctx.JSON(http.StatusOK, status)
}

// Readiness handles /ready
// Returns 200 only after startup completed and every dependency is healthy
func (c *Checker) Readiness(ctx echo.Context) error {
	c.mu.RLock()
	ready := c.ready
	c.mu.RUnlock()

	checks, allHealthy := c.runChecks(ctx.Request().Context())
	isReady := ready && allHealthy

	status := ReadinessStatus{
		Ready:     isReady,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if isReady {
		return ctx.JSON(http.StatusOK, status)
	}
	return ctx.JSON(http.StatusServiceUnavailable, status)
}

func (c *Checker) runChecks(ctx context.Context) (map[string]string, bool) {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)

	results := make(map[string]string, len(names))
	allHealthy := true

	for _, name := range names {
		c.mu.RLock()
		p := c.checks[name]
		c.mu.RUnlock()

		if err := p.Health(ctx); err != nil {
			results[name] = "unhealthy: " + err.Error()
			allHealthy = false
			continue
		}
		results[name] = "healthy"
	}

	return results, allHealthy
}
