package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// PingFunc reports whether a dependency is reachable
type PingFunc func(ctx context.Context) error

// Checker serves liveness, readiness and dependency health
type Checker struct {
	mu        sync.RWMutex
	checks    map[string]PingFunc
	version   string
	startTime time.Time
	ready     atomic.Bool
}

func NewChecker(version string) *Checker {
	return &Checker{
		checks:    make(map[string]PingFunc),
		version:   version,
		startTime: time.Now(),
	}
}

// AddCheck registers a dependency under name. Checks added later replace earlier ones.
func (c *Checker) AddCheck(name string, ping PingFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = ping
}

func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", c.Health)
	e.GET("/live", c.Live)
	e.GET("/ready", c.Ready)
}

type HealthStatus struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	Uptime     string                  `json:"uptime"`
	Checks     map[string]*CheckResult `json:"checks"`
	ReportedAt time.Time               `json:"reported_at"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Health pings every registered dependency concurrently. Any failure turns the
// whole report unhealthy and the response into a 503.
func (c *Checker) Health(ctx echo.Context) error {
	c.mu.RLock()
	checks := make(map[string]PingFunc, len(c.checks))
	for name, ping := range c.checks {
		checks[name] = ping
	}
	c.mu.RUnlock()

	reqCtx, cancel := context.WithTimeout(ctx.Request().Context(), 5*time.Second)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]*CheckResult, len(checks))
	)
	for name, ping := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := runCheck(reqCtx, ping)
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	status := &HealthStatus{
		Status:     "healthy",
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     results,
		ReportedAt: time.Now().UTC(),
	}
	httpStatus := http.StatusOK
	for _, res := range results {
		if res.Status != "healthy" {
			status.Status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}
	return ctx.JSON(httpStatus, status)
}

func runCheck(ctx context.Context, ping PingFunc) *CheckResult {
	start := time.Now()
	if err := ping(ctx); err != nil {
		return &CheckResult{Status: "unhealthy", Message: err.Error()}
	}
	return &CheckResult{Status: "healthy", Latency: time.Since(start).String()}
}

func (c *Checker) Live(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

func (c *Checker) Ready(ctx echo.Context) error {
	if c.ready.Load() {
		return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
	}
	return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
}
