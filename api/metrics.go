package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	mutationEventName   = "board.mutation"
	mutationEventDomain = "boardsync"
	tracerName          = "boardsync/api"
)

// mutationMetrics times one board mutation end to end and emits a structured
// observability event, both as a log entry and as an event on the request
// span.
type mutationMetrics struct {
	logger        *log.Logger
	span          trace.Span
	op            string
	start         time.Time
	applyDuration time.Duration
}

func newMutationMetrics(ctx context.Context, logger *log.Logger, op string) (*mutationMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, mutationEventName+"."+op)
	return &mutationMetrics{
		logger: logger,
		span:   span,
		op:     op,
		start:  time.Now(),
	}, ctx
}

// ObserveApply records how long the local-apply plus remote-write step took.
func (m *mutationMetrics) ObserveApply(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.applyDuration = duration
}

// Log finalizes the span and emits the observability event. Call exactly once
// per mutation, after the handler has written its response.
func (m *mutationMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	totalMs := durationToMillis(time.Since(m.start))
	severityText, severityNumber := severityForStatus(status, err)

	attrs := []attribute.KeyValue{
		attribute.String("boardsync.mutation.op", m.op),
		attribute.Float64("boardsync.mutation.total_ms", totalMs),
		attribute.Int("http.status_code", status),
	}
	if m.applyDuration > 0 {
		attrs = append(attrs, attribute.Float64("boardsync.mutation.apply_ms", durationToMillis(m.applyDuration)))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}

	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", mutationEventName),
		attribute.String("event.domain", mutationEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, attrs...)

	m.span.SetAttributes(attrs...)
	m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
	if err != nil {
		m.span.SetStatus(codes.Error, err.Error())
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	m.span.End()

	attributes := map[string]any{
		"boardsync.mutation.op":       m.op,
		"boardsync.mutation.total_ms": totalMs,
		"http.status_code":            status,
	}
	if m.applyDuration > 0 {
		attributes["boardsync.mutation.apply_ms"] = durationToMillis(m.applyDuration)
	}
	if err != nil {
		attributes["error.message"] = err.Error()
	}

	fields := log.Fields{
		"event.name":      mutationEventName,
		"event.domain":    mutationEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attributes,
	}
	if sc := m.span.SpanContext(); sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
	}

	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error("observability.event")
	case "WARN":
		entry.Warn("observability.event")
	default:
		entry.Info("observability.event")
	}
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil && status < http.StatusBadRequest:
		return "ERROR", 17
	case status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
