package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/resilient-orders/internal/coordinator/sagalog"
)

const tracerName = "github.com/jcmexdev/resilient-orders/internal/coordinator"

// Step represents a single unit of work in the Saga.
// Each step must have a compensating action to undo its effects.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
	Compensate(ctx context.Context) error
}

type EventKind string

const (
	EventStepDone           EventKind = "step_done"
	EventStepFailed         EventKind = "step_failed"
	EventCompensated        EventKind = "compensated"
	EventCompensationFailed EventKind = "compensation_failed"
)

// Event is reported to the observer after every step outcome and every
// compensation.
type Event struct {
	Step string
	Kind EventKind
	Err  error
}

// StepError is returned by Start when a step fails. Compensations holds the
// errors of compensating actions that failed during the rollback.
type StepError struct {
	Step          string
	Err           error
	Compensations []error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Orchestrator runs a saga: steps execute in order, each at most once, and
// when one fails the steps that already committed are compensated in
// reverse order.
type Orchestrator struct {
	sagaID  string
	steps   []Step
	repo    sagalog.Repository
	logger  *slog.Logger
	tracer  trace.Tracer
	observe func(Event)
}

type Option func(*Orchestrator)

// WithJournal appends every transition to repo. Journal failures are logged
// and never fail the saga.
func WithJournal(repo sagalog.Repository) Option {
	return func(o *Orchestrator) { o.repo = repo }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

func WithObserver(fn func(Event)) Option {
	return func(o *Orchestrator) { o.observe = fn }
}

func NewOrchestrator(sagaID string, steps []Step, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sagaID:  sagaID,
		steps:   steps,
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
		observe: func(Event) {},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start runs the saga steps sequentially. payload is journaled with the
// STARTED entry. If a step fails, every previously successful step is
// compensated and a *StepError is returned.
func (o *Orchestrator) Start(ctx context.Context, payload string) error {
	ctx, span := o.tracer.Start(ctx, "saga", trace.WithAttributes(attribute.String("saga.id", o.sagaID)))
	defer span.End()

	o.journal(ctx, sagalog.StatusStarted, "", payload, nil)

	var committed []Step
	for _, step := range o.steps {
		o.logger.InfoContext(ctx, "executing step", "saga_id", o.sagaID, "step", step.Name())

		if err := o.execute(ctx, step); err != nil {
			o.logger.WarnContext(ctx, "step failed, starting rollback",
				"saga_id", o.sagaID,
				"step", step.Name(),
				"committed", len(committed),
				"error", err,
			)
			o.observe(Event{Step: step.Name(), Kind: EventStepFailed, Err: err})

			failure := &StepError{Step: step.Name(), Err: err}
			errs := []string{fmt.Sprintf("%s: %v", step.Name(), err)}

			if len(committed) > 0 {
				o.journal(ctx, sagalog.StatusCompensating, step.Name(), "", errs)
				failure.Compensations = o.rollback(ctx, committed)
				for _, cerr := range failure.Compensations {
					errs = append(errs, cerr.Error())
				}
				o.journal(ctx, sagalog.StatusCompensated, committed[0].Name(), "", errs)
			}

			o.journal(ctx, sagalog.StatusFailed, step.Name(), "", errs)
			span.SetStatus(codes.Error, failure.Error())
			return failure
		}

		committed = append(committed, step)
		o.observe(Event{Step: step.Name(), Kind: EventStepDone})
		o.journal(ctx, sagalog.StatusStepDone, step.Name(), "", nil)
	}

	o.journal(ctx, sagalog.StatusCompleted, o.lastStep(), "", nil)
	o.logger.InfoContext(ctx, "saga completed", "saga_id", o.sagaID)
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, step Step) error {
	ctx, span := o.tracer.Start(ctx, step.Name())
	defer span.End()

	if err := step.Execute(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// rollback compensates steps last-in first-out. A failed compensation is
// logged and the rollback moves on to the next step.
func (o *Orchestrator) rollback(ctx context.Context, steps []Step) []error {
	var failed []error
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		o.logger.InfoContext(ctx, "compensating step", "saga_id", o.sagaID, "step", step.Name())

		if err := o.compensate(ctx, step); err != nil {
			o.logger.ErrorContext(ctx, "CRITICAL: failed to compensate step",
				"saga_id", o.sagaID,
				"step", step.Name(),
				"error", err,
			)
			cerr := fmt.Errorf("compensation of %s failed: %w", step.Name(), err)
			failed = append(failed, cerr)
			o.observe(Event{Step: step.Name(), Kind: EventCompensationFailed, Err: err})
			continue
		}
		o.observe(Event{Step: step.Name(), Kind: EventCompensated})
	}
	return failed
}

func (o *Orchestrator) compensate(ctx context.Context, step Step) error {
	ctx, span := o.tracer.Start(ctx, "compensate "+step.Name())
	defer span.End()

	if err := step.Compensate(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (o *Orchestrator) journal(ctx context.Context, status sagalog.Status, step, payload string, errs []string) {
	if o.repo == nil {
		return
	}
	entry := sagalog.NewEntry(ctx, o.sagaID, status, step, payload, errs)
	if err := o.repo.Save(ctx, entry); err != nil {
		o.logger.ErrorContext(ctx, "failed to write saga log",
			"saga_id", o.sagaID,
			"status", string(status),
			"error", err,
		)
	}
}

func (o *Orchestrator) lastStep() string {
	if len(o.steps) == 0 {
		return ""
	}
	return o.steps[len(o.steps)-1].Name()
}
