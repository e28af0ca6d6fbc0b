package sagalog

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// TraceInfo holds the OTel identifiers extracted from a context.
type TraceInfo struct {
	// TraceID is the W3C trace ID (32 lowercase hex chars), empty when the
	// context carries no valid span.
	TraceID string
	// SpanID is the W3C span ID (16 lowercase hex chars).
	SpanID string
}

// ExtractTraceInfo reads the active OpenTelemetry span from ctx.
func ExtractTraceInfo(ctx context.Context) TraceInfo {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return TraceInfo{}
	}

	return TraceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}

// NewEntry builds an entry stamped with the trace info found in ctx.
//
//	entry := sagalog.NewEntry(ctx, orderID, sagalog.StatusStepDone, "reserve_inventory", "", nil)
//	_ = repo.Save(ctx, entry)
func NewEntry(
	ctx context.Context,
	sagaID string,
	status Status,
	currentStep string,
	payload string,
	errs []string,
) *SagaLog {
	ti := ExtractTraceInfo(ctx)

	errJSON := "[]"
	if len(errs) > 0 {
		if b, err := json.Marshal(errs); err == nil {
			errJSON = string(b)
		}
	}

	return &SagaLog{
		SagaID:        sagaID,
		Status:        status,
		CurrentStep:   currentStep,
		Payload:       payload,
		ErrorMessages: errJSON,
		TraceID:       ti.TraceID,
		SpanID:        ti.SpanID,
		UpdatedAt:     time.Now().UTC(),
	}
}

// Errors decodes ErrorMessages.
func (l SagaLog) Errors() []string {
	var out []string
	if err := json.Unmarshal([]byte(l.ErrorMessages), &out); err != nil {
		return nil
	}
	return out
}
