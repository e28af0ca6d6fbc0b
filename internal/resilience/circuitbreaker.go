package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/jcmexdev/resilient-orders/internal/metrics"
)

// State is the phase of a circuit breaker. Its numeric value is the code
// exposed by status queries and metrics.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Code returns 0 for closed, 1 for open and 2 for half-open.
func (s State) Code() int { return int(s) }

// Override pins a breaker to a state regardless of observed outcomes.
type Override int32

const (
	OverrideNone Override = iota
	OverrideOpen
	OverrideClosed
)

func (o Override) String() string {
	switch o {
	case OverrideOpen:
		return "forced-open"
	case OverrideClosed:
		return "forced-closed"
	default:
		return "auto"
	}
}

// BreakerConfig holds the trip and recovery settings of one breaker.
type BreakerConfig struct {
	// FailureRatio trips the breaker once failures/requests reaches it.
	FailureRatio float64 `mapstructure:"failure_ratio"`
	// MinRequests is the sample size required before the ratio is checked.
	MinRequests uint32 `mapstructure:"min_requests"`
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
	// HalfOpenRequests bounds trial calls and is also the number of
	// consecutive trial successes needed to close again.
	HalfOpenRequests uint32 `mapstructure:"half_open_requests"`
	// Interval clears the closed-state counts periodically.
	Interval time.Duration `mapstructure:"interval"`
}

// DefaultBreakerConfig trips at 60% failures over at least 3 calls, stays
// open for 30s and probes with 3 trial calls.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureRatio:     0.6,
		MinRequests:      3,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 3,
		Interval:         15 * time.Second,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	d := DefaultBreakerConfig()
	if c.FailureRatio <= 0 {
		c.FailureRatio = d.FailureRatio
	}
	if c.MinRequests == 0 {
		c.MinRequests = d.MinRequests
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = d.OpenTimeout
	}
	if c.HalfOpenRequests == 0 {
		c.HalfOpenRequests = d.HalfOpenRequests
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	return c
}

func (c BreakerConfig) readyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests == 0 || counts.Requests < c.MinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureRatio
}

// Counts are the outcome counters of the current window.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// BreakerStatus is a point-in-time view of a breaker.
type BreakerStatus struct {
	Name       string
	Dependency string
	State      State
	Override   Override
	Counts     Counts
}

// Breaker gates calls to one dependency. Callers ask for a Permit before
// calling and report the outcome on it afterwards; the state machine itself
// is sony/gobreaker's two-step breaker.
type Breaker struct {
	name       string
	dependency string
	config     BreakerConfig

	cb       atomic.Pointer[gobreaker.TwoStepCircuitBreaker]
	override atomic.Int32

	sink   metrics.Sink
	logger *slog.Logger
}

// BreakerOption customises a Breaker.
type BreakerOption func(*Breaker)

// WithBreakerSink reports state changes and failures to sink.
func WithBreakerSink(sink metrics.Sink) BreakerOption {
	return func(b *Breaker) { b.sink = metrics.OrDefault(sink) }
}

// WithBreakerLogger sets the logger used for transitions and rejections.
func WithBreakerLogger(logger *slog.Logger) BreakerOption {
	return func(b *Breaker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBreaker creates a closed breaker. Zero config fields take the
// DefaultBreakerConfig values.
func NewBreaker(name, dependency string, config BreakerConfig, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:       name,
		dependency: dependency,
		config:     config.withDefaults(),
		sink:       metrics.Nop{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.cb.Store(b.newStateMachine())
	b.sink.CircuitStateChanged(b.dependency, b.name, StateClosed.Code())

	return b
}

func (b *Breaker) newStateMachine() *gobreaker.TwoStepCircuitBreaker {
	var sm *gobreaker.TwoStepCircuitBreaker
	sm = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        b.name,
		MaxRequests: b.config.HalfOpenRequests,
		Interval:    b.config.Interval,
		Timeout:     b.config.OpenTimeout,
		ReadyToTrip: b.config.readyToTrip,
		OnStateChange: func(_ string, from, to gobreaker.State) {
			// A breaker replaced by Reset may still see late outcomes.
			if b.cb.Load() != sm {
				return
			}
			b.onStateChange(fromGobreaker(from), fromGobreaker(to))
		},
	})
	return sm
}

func (b *Breaker) Name() string       { return b.name }
func (b *Breaker) Dependency() string { return b.dependency }

// Config returns the effective configuration.
func (b *Breaker) Config() BreakerConfig { return b.config }

// Attempt asks the breaker whether a call may proceed. The returned Permit
// must be settled with Record once the call's outcome is known. A rejection
// wraps ErrCircuitOpen or ErrTooManyRequests.
func (b *Breaker) Attempt() (*Permit, error) {
	switch Override(b.override.Load()) {
	case OverrideOpen:
		return nil, b.reject(ErrCircuitOpen)
	case OverrideClosed:
		return &Permit{breaker: b}, nil
	}

	done, err := b.cb.Load().Allow()
	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState):
			return nil, b.reject(ErrCircuitOpen)
		case errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, b.reject(ErrTooManyRequests)
		}
		return nil, fmt.Errorf("circuit breaker %s: %w", b.name, err)
	}

	return &Permit{breaker: b, done: done}, nil
}

func (b *Breaker) reject(cause error) error {
	b.logger.Warn("circuit breaker rejected call",
		"circuit", b.name,
		"dependency", b.dependency,
		"reason", cause.Error(),
	)
	return fmt.Errorf("circuit breaker %s: %w", b.name, cause)
}

// State returns the current phase, honouring any override. An open breaker
// whose timeout has elapsed reports half-open.
func (b *Breaker) State() State {
	switch Override(b.override.Load()) {
	case OverrideOpen:
		return StateOpen
	case OverrideClosed:
		return StateClosed
	}
	return fromGobreaker(b.cb.Load().State())
}

// Counts returns the counters of the current window.
func (b *Breaker) Counts() Counts {
	sm := b.cb.Load()
	// State expires a stale closed window; Counts alone does not.
	sm.State()
	c := sm.Counts()
	return Counts{
		Requests:             c.Requests,
		TotalSuccesses:       c.TotalSuccesses,
		TotalFailures:        c.TotalFailures,
		ConsecutiveSuccesses: c.ConsecutiveSuccesses,
		ConsecutiveFailures:  c.ConsecutiveFailures,
	}
}

// Status returns a snapshot suitable for status endpoints.
func (b *Breaker) Status() BreakerStatus {
	return BreakerStatus{
		Name:       b.name,
		Dependency: b.dependency,
		State:      b.State(),
		Override:   Override(b.override.Load()),
		Counts:     b.Counts(),
	}
}

// ForceOpen rejects every call until Auto or ForceClose is called.
func (b *Breaker) ForceOpen() { b.setOverride(OverrideOpen) }

// ForceClose lets every call through until Auto or ForceOpen is called.
func (b *Breaker) ForceClose() { b.setOverride(OverrideClosed) }

// Auto returns the breaker to outcome-driven operation.
func (b *Breaker) Auto() { b.setOverride(OverrideNone) }

func (b *Breaker) setOverride(o Override) {
	before := b.State()
	if prev := Override(b.override.Swap(int32(o))); prev == o {
		return
	}

	after := b.State()
	b.logger.Warn("circuit breaker override changed",
		"circuit", b.name,
		"dependency", b.dependency,
		"override", o.String(),
		"state", after.String(),
	)
	if after != before {
		b.sink.CircuitStateChanged(b.dependency, b.name, after.Code())
	}
}

// Reset discards all counters and returns the breaker to closed with the
// same configuration. Outstanding permits of the old state machine are
// ignored.
func (b *Breaker) Reset() {
	b.cb.Store(b.newStateMachine())
	b.logger.Info("circuit breaker reset", "circuit", b.name, "dependency", b.dependency)
	b.sink.CircuitStateChanged(b.dependency, b.name, b.State().Code())
}

func (b *Breaker) onStateChange(from, to State) {
	b.sink.CircuitStateChanged(b.dependency, b.name, to.Code())

	attrs := []any{"circuit", b.name, "dependency", b.dependency, "from", from.String(), "to", to.String()}
	switch to {
	case StateOpen:
		b.logger.Error("circuit breaker opened, requests will fast-fail", attrs...)
	case StateHalfOpen:
		b.logger.Info("circuit breaker half-open, probing recovery", attrs...)
	case StateClosed:
		b.logger.Info("circuit breaker closed, dependency healthy", attrs...)
	}
}

// Permit is a single-use admission granted by Attempt.
type Permit struct {
	once    sync.Once
	breaker *Breaker
	done    func(success bool)
}

// Record reports the call outcome. Only the first call has any effect.
func (p *Permit) Record(success bool) {
	if p == nil {
		return
	}
	p.once.Do(func() {
		if p.done != nil {
			p.done(success)
		}
		if !success && p.breaker != nil {
			p.breaker.sink.CircuitFailure(p.breaker.dependency, p.breaker.name)
		}
	})
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
