// Package health runs periodic self-checks of the ledger with recovery
// hooks. Results feed /health and the karma_health_check_status gauge.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tutu-network/karma/internal/domain"
	"github.com/tutu-network/karma/internal/infra/metrics"
)

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	Recovered bool      `json:"recovered,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Database is what the checks need from the store.
type Database interface {
	Ping(ctx context.Context) error
	BalanceDrift(ctx context.Context) ([]domain.BalanceDrift, error)
}

// Validator is a catalog integrity check.
type Validator interface {
	Validate() error
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	log      *zap.Logger
}

// NewChecker creates a checker with the standard checks: database
// reachability, catalog integrity and balance cache drift. repair, when
// non-nil, is run to rebuild drifted balances.
func NewChecker(db Database, cat Validator, repair func(ctx context.Context) error, log *zap.Logger) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Checker{
		interval: 60 * time.Second,
		log:      log.Named("health"),
		checks: []Check{
			{
				Name: "database",
				CheckFn: func(ctx context.Context) error {
					ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
					defer cancel()
					return db.Ping(ctx)
				},
			},
			{
				Name: "catalog",
				CheckFn: func(ctx context.Context) error {
					return cat.Validate()
				},
			},
			{
				Name: "balance_cache",
				CheckFn: func(ctx context.Context) error {
					drift, err := db.BalanceDrift(ctx)
					if err != nil {
						return err
					}
					if len(drift) > 0 {
						return fmt.Errorf("%d balance cache rows differ from the ledger", len(drift))
					}
					return nil
				},
				RecoverFn: repair,
			},
		},
	}
}

// SetInterval changes the check period. Call before Run.
func (c *Checker) SetInterval(d time.Duration) {
	if d > 0 {
		c.interval = d
	}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.RunOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce runs every check and stores the results.
func (c *Checker) RunOnce(ctx context.Context) []Status {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Error = err.Error()
			c.log.Warn("health check failed", zap.String("check", check.Name), zap.Error(err))
			if check.RecoverFn != nil {
				if rerr := check.RecoverFn(ctx); rerr != nil {
					c.log.Error("health recovery failed", zap.String("check", check.Name), zap.Error(rerr))
				} else {
					s.Recovered = true
				}
			}
		} else {
			s.Healthy = true
		}
		statuses[i] = s

		if s.Healthy {
			metrics.HealthStatus.WithLabelValues(check.Name).Set(1)
		} else {
			metrics.HealthStatus.WithLabelValues(check.Name).Set(0)
		}
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
	return statuses
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass. A recovered check counts as
// healthy for the current round.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy && !s.Recovered {
			return false
		}
	}
	return true
}
