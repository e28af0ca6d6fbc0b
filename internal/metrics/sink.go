// Package metrics defines the write-only reporting interface used by the
// resilience primitives and the coordinator, plus Prometheus and
// OpenTelemetry implementations of it.
//
// A Sink never influences control flow: every method must return quickly
// and must not block the caller.
package metrics

// Sink receives resilience and workflow events.
type Sink interface {
	// CircuitStateChanged reports the numeric state of a breaker
	// (0=closed, 1=open, 2=half-open).
	CircuitStateChanged(dependency, circuit string, state int)
	// CircuitFailure counts one failed call observed by a breaker.
	CircuitFailure(dependency, circuit string)
	// BulkheadOccupancy adds delta (+1 on acquire, -1 on release).
	BulkheadOccupancy(dependency, bulkhead string, delta int)
	// BulkheadRejected counts one admission that timed out.
	BulkheadRejected(dependency, bulkhead string)
	// OrderOutcome counts one order reaching the given status.
	OrderOutcome(status string)
}

// Nop discards every event.
type Nop struct{}

func (Nop) CircuitStateChanged(string, string, int) {}
func (Nop) CircuitFailure(string, string)           {}
func (Nop) BulkheadOccupancy(string, string, int)   {}
func (Nop) BulkheadRejected(string, string)         {}
func (Nop) OrderOutcome(string)                     {}

// Multi fans every event out to each of its sinks in order.
type Multi []Sink

func (m Multi) CircuitStateChanged(dependency, circuit string, state int) {
	for _, s := range m {
		s.CircuitStateChanged(dependency, circuit, state)
	}
}

func (m Multi) CircuitFailure(dependency, circuit string) {
	for _, s := range m {
		s.CircuitFailure(dependency, circuit)
	}
}

func (m Multi) BulkheadOccupancy(dependency, bulkhead string, delta int) {
	for _, s := range m {
		s.BulkheadOccupancy(dependency, bulkhead, delta)
	}
}

func (m Multi) BulkheadRejected(dependency, bulkhead string) {
	for _, s := range m {
		s.BulkheadRejected(dependency, bulkhead)
	}
}

func (m Multi) OrderOutcome(status string) {
	for _, s := range m {
		s.OrderOutcome(status)
	}
}

// OrDefault returns s, or Nop when s is nil.
func OrDefault(s Sink) Sink {
	if s == nil {
		return Nop{}
	}
	return s
}
