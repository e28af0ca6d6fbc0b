// Package chaos injects failures and latency into a backend service so the
// order service's breakers and bulkheads can be exercised on demand.
package chaos

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"
)

var ErrInjected = errors.New("chaos: injected failure")

// Profile describes what a service does when chaos is switched on.
type Profile struct {
	FailureRate float64
	SlowMin     time.Duration
	SlowMax     time.Duration
}

var (
	InventoryProfile = Profile{FailureRate: 0.3, SlowMin: 2 * time.Second, SlowMax: 5 * time.Second}
	PaymentProfile   = Profile{FailureRate: 0.4, SlowMin: 5 * time.Second, SlowMax: 10 * time.Second}
)

type Status struct {
	Service     string  `json:"service"`
	Failures    bool    `json:"chaos_enabled"`
	Slow        bool    `json:"chaos_slow_mode"`
	FailureRate float64 `json:"failure_rate"`
	SlowMinMS   int64   `json:"slow_min_ms"`
	SlowMaxMS   int64   `json:"slow_max_ms"`
}

// ModeRecorder is told the current modes after every change.
type ModeRecorder interface {
	ChaosModes(service string, failures, slow bool)
}

type Controller struct {
	service  string
	profile  Profile
	failures atomic.Bool
	slow     atomic.Bool
	float    func() float64
	recorder ModeRecorder
	logger   *slog.Logger
}

type Option func(*Controller)

// WithRand replaces the random source; f must return values in [0, 1).
func WithRand(f func() float64) Option {
	return func(c *Controller) { c.float = f }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithRecorder(r ModeRecorder) Option {
	return func(c *Controller) { c.recorder = r }
}

func New(service string, profile Profile, opts ...Option) *Controller {
	c := &Controller{
		service: service,
		profile: profile,
		float:   rand.Float64,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.record()
	return c
}

func (c *Controller) EnableFailures() {
	c.failures.Store(true)
	c.record()
	c.logger.Warn("chaos failure mode enabled", "service", c.service, "failure_rate", c.profile.FailureRate)
}

// DisableFailures turns off both failure and slow mode.
func (c *Controller) DisableFailures() {
	c.failures.Store(false)
	c.slow.Store(false)
	c.record()
	c.logger.Info("chaos disabled", "service", c.service)
}

func (c *Controller) EnableSlow() {
	c.slow.Store(true)
	c.record()
	c.logger.Warn("chaos slow mode enabled", "service", c.service,
		"min", c.profile.SlowMin.String(), "max", c.profile.SlowMax.String())
}

func (c *Controller) DisableSlow() {
	c.slow.Store(false)
	c.record()
	c.logger.Info("chaos slow mode disabled", "service", c.service)
}

func (c *Controller) record() {
	if c.recorder != nil {
		c.recorder.ChaosModes(c.service, c.failures.Load(), c.slow.Load())
	}
}

func (c *Controller) Status() Status {
	return Status{
		Service:     c.service,
		Failures:    c.failures.Load(),
		Slow:        c.slow.Load(),
		FailureRate: c.profile.FailureRate,
		SlowMinMS:   c.profile.SlowMin.Milliseconds(),
		SlowMaxMS:   c.profile.SlowMax.Milliseconds(),
	}
}

// Inject delays when slow mode is on and then fails with ErrInjected at
// the profile's failure rate when failure mode is on. It returns early with
// the context error if ctx ends while delaying.
func (c *Controller) Inject(ctx context.Context) error {
	if c.slow.Load() {
		if err := sleep(ctx, c.delay()); err != nil {
			return err
		}
	}
	if c.failures.Load() && c.float() < c.profile.FailureRate {
		return ErrInjected
	}
	return nil
}

func (c *Controller) delay() time.Duration {
	span := c.profile.SlowMax - c.profile.SlowMin
	if span <= 0 {
		return c.profile.SlowMin
	}
	return c.profile.SlowMin + time.Duration(c.float()*float64(span))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
