// Package sagalog records every transition an order workflow goes through.
//
// The journal is append-only: each transition adds a row, and the rows of
// one saga read in order tell where it stopped and why. Entries carry the
// trace and span ids active when they were written so a row can be joined
// with its distributed trace.
package sagalog

import "time"

// Status is the lifecycle state recorded by an entry.
type Status string

const (
	StatusStarted      Status = "STARTED"
	StatusStepDone     Status = "STEP_DONE"
	StatusCompensating Status = "COMPENSATING"
	StatusCompensated  Status = "COMPENSATED"
	StatusCompleted    Status = "COMPLETED"
	StatusFailed       Status = "FAILED"
)

// SagaLog is one row of the journal.
type SagaLog struct {
	// SagaID is the order id.
	SagaID string

	Status Status

	// CurrentStep is the step that just ran, failed or was compensated.
	CurrentStep string

	// Payload is the JSON request that started the saga. Only set on
	// STARTED rows.
	Payload string

	// ErrorMessages is a JSON array of the failures accumulated so far.
	ErrorMessages string

	TraceID string
	SpanID  string

	UpdatedAt time.Time
}
