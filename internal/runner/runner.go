// Package runner produces one assistant reply for a conversation.
//
// A Runner is a single fixed step: the whole history goes to the backend
// once and the reply comes back as an assistant message. It keeps no state
// between calls and persists nothing.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"SessionChat/internal/backend"
	"SessionChat/internal/message"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrInference marks every failure of the model call
	ErrInference = errors.New("inference failure")
	// ErrEmptyHistory is returned when Run is given no messages
	ErrEmptyHistory = errors.New("empty conversation history")
)

// InferenceError carries the cause of a failed model call
type InferenceError struct {
	Backend string
	Err     error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s inference failed: %v", e.Backend, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

func (e *InferenceError) Is(target error) bool { return target == ErrInference }

// Runner invokes one backend with one credential
type Runner struct {
	backend backend.Backend
	apiKey  string
	logger  *slog.Logger
	tracer  trace.Tracer
	meter   metric.Meter
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option { return func(r *Runner) { r.logger = l } }

// WithTracer sets the tracer used for call spans
func WithTracer(t trace.Tracer) Option { return func(r *Runner) { r.tracer = t } }

// WithMeter sets the meter used for duration and usage metrics
func WithMeter(m metric.Meter) Option { return func(r *Runner) { r.meter = m } }

// New returns a Runner; telemetry defaults to the global providers
func New(b backend.Backend, apiKey string, opts ...Option) *Runner {
	r := &Runner{
		backend: b,
		apiKey:  apiKey,
		logger:  slog.Default(),
		tracer:  otel.Tracer("SessionChat/runner"),
		meter:   otel.Meter("SessionChat/runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sends history to the backend exactly once and returns its reply
func (r *Runner) Run(ctx context.Context, history []message.Message) (message.Message, error) {
	if len(history) == 0 {
		return message.Message{}, ErrEmptyHistory
	}

	ctx, span := r.tracer.Start(ctx, r.backend.Name()+"_api_call", trace.WithAttributes(
		attribute.String("backend", r.backend.Name()),
		attribute.Int("message_count", len(history)),
	))
	defer span.End()

	start := time.Now()
	completion, err := r.backend.Complete(ctx, r.apiKey, slices.Clone(history))
	duration := time.Since(start)
	r.recordDuration(ctx, duration)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("inference failed",
			"backend", r.backend.Name(),
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return message.Message{}, &InferenceError{Backend: r.backend.Name(), Err: err}
	}

	r.recordUsage(ctx, completion.Usage)
	r.logger.Info("inference completed",
		"backend", r.backend.Name(),
		"model", completion.Model,
		"duration_ms", duration.Milliseconds())

	return message.Assistant(completion.Content), nil
}

func (r *Runner) recordDuration(ctx context.Context, d time.Duration) {
	histogram, err := r.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err == nil {
		histogram.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(
			attribute.String("backend", r.backend.Name()),
		))
	}
}

// recordUsage records OpenTelemetry counters from usage data
func (r *Runner) recordUsage(ctx context.Context, usage map[string]int64) {
	for key, value := range usage {
		counter, err := r.meter.Int64Counter(
			fmt.Sprintf("llm.usage.%s", key),
			metric.WithDescription(fmt.Sprintf("LLM usage metric: %s", key)),
		)
		if err != nil {
			r.logger.Warn("failed to create counter", "key", key, "error", err)
			continue
		}
		counter.Add(ctx, value)
	}
}
