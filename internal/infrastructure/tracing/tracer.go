// Package tracing provides OpenTelemetry-based distributed tracing
// infrastructure. It supports multiple exporters (stdout, OTLP) and
// provides domain-specific span helpers for orchestration, phase, and
// merge execution tracing.
package tracing

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// TracerName is the name used for the flowctl tracer.
	TracerName = "github.com/speckit/flowctl"

	// Version is the semantic version of the tracer.
	Version = "1.0.0"
)

// ExporterType defines the type of trace exporter.
type ExporterType string

const (
	ExporterNone   ExporterType = "none"
	ExporterStdout ExporterType = "stdout"
	ExporterOTLP   ExporterType = "otlp"
)

// Config holds tracing configuration.
type Config struct {
	Enabled      bool
	ExporterType ExporterType
	OTLPEndpoint string
	ServiceName  string
	Environment  string
	SampleRate   float64
	Output       io.Writer
}

// DefaultConfig returns sensible default tracing configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		ExporterType: ExporterNone,
		ServiceName:  "flowctl",
		Environment:  "development",
		SampleRate:   1.0,
	}
}

// Tracer wraps an OpenTelemetry tracer with domain-specific functionality.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	config   Config
}

var (
	global     *Tracer
	globalOnce sync.Once
)

// Init initializes the global tracer with the provided configuration.
func Init(ctx context.Context, cfg Config) (*Tracer, error) {
	var err error
	globalOnce.Do(func() {
		global, err = New(ctx, cfg)
	})
	return global, err
}

// Default returns the global tracer, or a no-op tracer if not initialized.
func Default() *Tracer {
	if global == nil {
		return &Tracer{
			tracer: otel.Tracer(TracerName),
			config: DefaultConfig(),
		}
	}
	return global
}

// New creates a new Tracer with the provided configuration.
func New(ctx context.Context, cfg Config) (*Tracer, error) {
	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		return &Tracer{
			tracer: noop.NewTracerProvider().Tracer(TracerName),
			config: cfg,
		}, nil
	}

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(Version),
			attribute.String("deployment.environment", cfg.Environment),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	if cfg.SampleRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if cfg.SampleRate <= 0.0 {
		sampler = sdktrace.NeverSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetTracerProvider(provider)

	return &Tracer{
		tracer:   provider.Tracer(TracerName, trace.WithInstrumentationVersion(Version)),
		provider: provider,
		config:   cfg,
	}, nil
}

func createExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		opts := []stdouttrace.Option{
			stdouttrace.WithPrettyPrint(),
		}
		if cfg.Output != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.Output))
		}
		return stdouttrace.New(opts...)

	case ExporterOTLP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithInsecure(),
		}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		return otlptracehttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.ExporterType)
	}
}

// Shutdown gracefully shuts down the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

// Start starts a new span with the given name.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// SpanFromContext returns the current span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// --- Domain-specific span helpers ---

// RunSpan represents one orchestration run, from the resumed phase through
// the last phase; initialisation is not part of it.
type RunSpan struct {
	span trace.Span
	ctx  context.Context
}

// StartRunSpan starts a span for a full orchestration run.
func (t *Tracer) StartRunSpan(ctx context.Context, specID string, numSessions int) (context.Context, *RunSpan) {
	ctx, span := t.tracer.Start(ctx, "orchestration.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("spec.id", specID),
			attribute.Int("spec.num_sessions", numSessions),
		),
	)
	return ctx, &RunSpan{span: span, ctx: ctx}
}

// SetPhaseCount sets the total number of phases in the run.
func (rs *RunSpan) SetPhaseCount(count int) {
	rs.span.SetAttributes(attribute.Int("spec.phase_count", count))
}

// SetInterrupted marks the run as having stopped on a cooperative interrupt.
func (rs *RunSpan) SetInterrupted(interrupted bool) {
	rs.span.SetAttributes(attribute.Bool("spec.interrupted", interrupted))
}

// End ends the run span with success status.
func (rs *RunSpan) End() {
	rs.span.SetStatus(codes.Ok, "orchestration run completed")
	rs.span.End()
}

// EndWithError ends the run span with error status.
func (rs *RunSpan) EndWithError(err error) {
	rs.span.RecordError(err)
	rs.span.SetStatus(codes.Error, err.Error())
	rs.span.End()
}

// PhaseSpan represents a single phase's execution: notifying sessions and
// waiting for completion.
type PhaseSpan struct {
	span trace.Span
	ctx  context.Context
}

// StartPhaseSpan starts a span for a phase's execution.
func (t *Tracer) StartPhaseSpan(ctx context.Context, phase string, taskCount, sessionCount int) (context.Context, *PhaseSpan) {
	ctx, span := t.tracer.Start(ctx, "phase.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("phase.name", phase),
			attribute.Int("phase.task_count", taskCount),
			attribute.Int("phase.session_count", sessionCount),
		),
	)
	return ctx, &PhaseSpan{span: span, ctx: ctx}
}

// SetCompletedTasks records how many of the phase's tasks completed.
func (ps *PhaseSpan) SetCompletedTasks(count int) {
	ps.span.SetAttributes(attribute.Int("phase.completed_tasks", count))
}

// End ends the phase span with success status.
func (ps *PhaseSpan) End() {
	ps.span.SetStatus(codes.Ok, "phase completed successfully")
	ps.span.End()
}

// EndWithError ends the phase span with error status.
func (ps *PhaseSpan) EndWithError(err error) {
	ps.span.RecordError(err)
	ps.span.SetStatus(codes.Error, err.Error())
	ps.span.End()
}

// MergeSpan represents the sequential session-branch merge sub-operation.
type MergeSpan struct {
	span trace.Span
	ctx  context.Context
}

// StartMergeSpan starts a span for the merge sub-operation.
func (t *Tracer) StartMergeSpan(ctx context.Context, specID, baseBranch string, sessionCount int) (context.Context, *MergeSpan) {
	ctx, span := t.tracer.Start(ctx, "merge.sessions",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("spec.id", specID),
			attribute.String("merge.base_branch", baseBranch),
			attribute.Int("merge.session_count", sessionCount),
		),
	)
	return ctx, &MergeSpan{span: span, ctx: ctx}
}

// SetOverlap records the size of the overlap set discovered during
// pre-merge conflict analysis.
func (ms *MergeSpan) SetOverlap(overlapFiles int) {
	ms.span.SetAttributes(attribute.Int("merge.overlap_files", overlapFiles))
}

// SetFilesChanged records the total number of unique files changed across
// all session branches.
func (ms *MergeSpan) SetFilesChanged(count int) {
	ms.span.SetAttributes(attribute.Int("merge.files_changed", count))
}

// End ends the merge span with success status.
func (ms *MergeSpan) End() {
	ms.span.SetStatus(codes.Ok, "merge completed successfully")
	ms.span.End()
}

// EndWithError ends the merge span with error status.
func (ms *MergeSpan) EndWithError(err error) {
	ms.span.RecordError(err)
	ms.span.SetStatus(codes.Error, err.Error())
	ms.span.End()
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
}

// SetAttribute sets an attribute on the current span.
func SetAttribute(ctx context.Context, key string, value any) {
	span := trace.SpanFromContext(ctx)
	switch v := value.(type) {
	case string:
		span.SetAttributes(attribute.String(key, v))
	case int:
		span.SetAttributes(attribute.Int(key, v))
	case int64:
		span.SetAttributes(attribute.Int64(key, v))
	case float64:
		span.SetAttributes(attribute.Float64(key, v))
	case bool:
		span.SetAttributes(attribute.Bool(key, v))
	}
}
