package familyaccess

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/tracing"
)

var tracer = tracing.Tracer("familyaccess")

// Recorder receives workflow outcomes for metrics. Implementations must be
// safe for concurrent use.
type Recorder interface {
	AccessDecision(granted bool)
	Redemption(outcome OutcomeKind)
	WorkflowError(op string, err error)
}

type noopRecorder struct{}

func (noopRecorder) AccessDecision(bool)         {}
func (noopRecorder) Redemption(OutcomeKind)      {}
func (noopRecorder) WorkflowError(string, error) {}

func recorderOrNoop(r Recorder) Recorder {
	if r == nil {
		return noopRecorder{}
	}
	return r
}

func startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "familyaccess."+op, trace.WithAttributes(attrs...))
}

// finish ends span and reports err. Expected workflow refusals are recorded
// on the span but do not mark it as failed.
func finish(span trace.Span, rec Recorder, op string, err error) {
	if err != nil {
		span.RecordError(err)
		rec.WorkflowError(op, err)
		if !IsWorkflowError(err) {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

// IsWorkflowError reports whether err is one of the package's sentinel refusals
// rather than a storage or infrastructure failure.
func IsWorkflowError(err error) bool {
	for _, sentinel := range []error{
		ErrSelfReference, ErrDuplicatePending, ErrDuplicateGrant, ErrNotFound,
		ErrForbidden, ErrAlreadyResponded, ErrExpired, ErrTokenConsumed, ErrInvalidArgument,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
