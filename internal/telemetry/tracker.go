package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/ticketledger/internal/tracker"
)

const trackerScopeName = "github.com/steveyegge/ticketledger/tracker"

// InstrumentedTracker wraps a tracker.IssueTracker with OTel tracing and
// metrics. Every call gets a span and is counted in ticketledger.tracker.*
// metrics.
type InstrumentedTracker struct {
	inner  tracker.IssueTracker
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapTracker returns t decorated with OTel instrumentation.
// When telemetry is disabled, t is returned as-is.
func WrapTracker(t tracker.IssueTracker) tracker.IssueTracker {
	if !Enabled() {
		return t
	}
	return newInstrumentedTracker(t, Tracer(trackerScopeName), Meter(trackerScopeName))
}

func newInstrumentedTracker(t tracker.IssueTracker, tracer trace.Tracer, m metric.Meter) *InstrumentedTracker {
	ops, _ := m.Int64Counter("ticketledger.tracker.operations",
		metric.WithDescription("Total tracker operations executed"),
	)
	dur, _ := m.Float64Histogram("ticketledger.tracker.duration",
		metric.WithDescription("Tracker operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("ticketledger.tracker.errors",
		metric.WithDescription("Total tracker operation errors"),
	)
	return &InstrumentedTracker{
		inner:  t,
		tracer: tracer,
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// op starts a span and counts the named tracker operation.
func (t *InstrumentedTracker) op(ctx context.Context, name, key string) (context.Context, trace.Span, time.Time, []attribute.KeyValue) {
	attrs := []attribute.KeyValue{
		attribute.String("tracker.name", t.inner.Name()),
		attribute.String("tracker.operation", name),
	}
	ctx, span := t.tracer.Start(ctx, "tracker."+name,
		trace.WithAttributes(append(attrs, attribute.String("issue.key", key))...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	t.ops.Add(ctx, 1, metric.WithAttributes(attrs...))
	return ctx, span, time.Now(), attrs
}

// done ends the span, records duration and optional error.
func (t *InstrumentedTracker) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs []attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	t.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func (t *InstrumentedTracker) Name() string { return t.inner.Name() }

// Unwrap returns the decorated tracker.
func (t *InstrumentedTracker) Unwrap() tracker.IssueTracker { return t.inner }

func (t *InstrumentedTracker) GetComments(ctx context.Context, key string) ([]tracker.Comment, error) {
	ctx, span, start, attrs := t.op(ctx, "get_comments", key)
	comments, err := t.inner.GetComments(ctx, key)
	span.SetAttributes(attribute.Int("comment.count", len(comments)))
	t.done(ctx, span, start, err, attrs)
	return comments, err
}

func (t *InstrumentedTracker) AddComment(ctx context.Context, key, body string) error {
	ctx, span, start, attrs := t.op(ctx, "add_comment", key)
	err := t.inner.AddComment(ctx, key, body)
	t.done(ctx, span, start, err, attrs)
	return err
}

func (t *InstrumentedTracker) UpdateComment(ctx context.Context, key string, c tracker.Comment) error {
	ctx, span, start, attrs := t.op(ctx, "update_comment", key)
	span.SetAttributes(attribute.String("comment.id", c.ID))
	err := t.inner.UpdateComment(ctx, key, c)
	t.done(ctx, span, start, err, attrs)
	return err
}

func (t *InstrumentedTracker) GetStatus(ctx context.Context, key string) (string, error) {
	ctx, span, start, attrs := t.op(ctx, "get_status", key)
	status, err := t.inner.GetStatus(ctx, key)
	span.SetAttributes(attribute.String("issue.status", status))
	t.done(ctx, span, start, err, attrs)
	return status, err
}

func (t *InstrumentedTracker) DoTransition(ctx context.Context, key, transition string) error {
	ctx, span, start, attrs := t.op(ctx, "do_transition", key)
	span.SetAttributes(attribute.String("transition.name", transition))
	err := t.inner.DoTransition(ctx, key, transition)
	t.done(ctx, span, start, err, attrs)
	return err
}
