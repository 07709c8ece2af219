package health

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Status values reported by checks and probes.
const (
	StatusOK        = "ok"
	StatusReady     = "ready"
	StatusUnhealthy = "unhealthy"
	StatusNotReady  = "not_ready"
)

// CheckFunc reports nil when the component is healthy.
type CheckFunc func(ctx context.Context) error

// CheckResult is the outcome of a single check.
type CheckResult struct {
	Status     string  `json:"status"`
	Message    string  `json:"message,omitempty"`
	DurationMS float64 `json:"duration_ms"`
}

// Report is the aggregated probe response.
type Report struct {
	Status    string                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Ready reports whether every check passed.
func (r Report) Ready() bool {
	return r.Status == StatusReady || r.Status == StatusOK
}

// ErrCheckTimeout is reported when a check does not finish in time.
var ErrCheckTimeout = errors.New("health check timeout")

// Pinger is implemented by storage backends.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker runs named component checks concurrently.
type Checker struct {
	mu           sync.RWMutex
	checks       map[string]CheckFunc
	checkTimeout time.Duration
	now          func() time.Time
}

// New creates a checker. A zero timeout defaults to 5 seconds per check.
func New(checkTimeout time.Duration) *Checker {
	if checkTimeout <= 0 {
		checkTimeout = 5 * time.Second
	}
	return &Checker{
		checks:       make(map[string]CheckFunc),
		checkTimeout: checkTimeout,
		now:          time.Now,
	}
}

// RegisterCheck adds or replaces the check for name.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// RegisterPinger registers p.Ping as the check for name.
func (c *Checker) RegisterPinger(name string, p Pinger) {
	c.RegisterCheck(name, p.Ping)
}

// UnregisterCheck removes the check for name.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// Names returns the registered check names, sorted.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Liveness reports that the process is running.
func (c *Checker) Liveness(context.Context) Report {
	return Report{Status: StatusOK, Timestamp: c.now()}
}

// Readiness runs every registered check. The system is ready only when all
// checks pass; with no checks it is ready by default.
func (c *Checker) Readiness(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()
			res := c.run(ctx, check)
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	status := StatusReady
	for _, res := range results {
		if res.Status != StatusOK {
			status = StatusNotReady
			break
		}
	}
	return Report{Status: status, Checks: results, Timestamp: c.now()}
}

func (c *Checker) run(ctx context.Context, check CheckFunc) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	start := time.Now()
	errCh := make(chan error, 1)
	go func() { errCh <- check(ctx) }()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = ErrCheckTimeout
	}

	res := CheckResult{
		Status:     StatusOK,
		DurationMS: float64(time.Since(start).Microseconds()) / 1000,
	}
	if err != nil {
		res.Status = StatusUnhealthy
		res.Message = err.Error()
	}
	return res
}
