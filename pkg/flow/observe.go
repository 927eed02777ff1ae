package flow

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ObserveConfig configures the observability decorator.
type ObserveConfig struct {
	// Logger receives invocation lifecycle events. Defaults to a no-op
	// logger.
	Logger *zap.Logger

	// TracerName names the otel tracer. Defaults to "daedalus/flow".
	TracerName string

	// ReportErrors forwards stage failures to Sentry. The Sentry SDK must
	// be initialized by the application.
	ReportErrors bool
}

// observedStage wraps a stage with a span, structured logs, and optional
// error reporting per invocation. Each invocation is tagged with a fresh
// run ID so logs and spans can be correlated.
type observedStage struct {
	inner  Stage
	logger *zap.Logger
	tracer trace.Tracer
	report bool
}

// Observed decorates a stage with tracing, logging, and optional Sentry
// error reporting. The wrapped stage is not modified.
func Observed(inner Stage, cfg ObserveConfig) Stage {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tracerName := cfg.TracerName
	if tracerName == "" {
		tracerName = "daedalus/flow"
	}

	return &observedStage{
		inner:  inner,
		logger: logger,
		tracer: otel.Tracer(tracerName),
		report: cfg.ReportErrors,
	}
}

func (s *observedStage) Name() string { return s.inner.Name() }

func (s *observedStage) Invoke(ctx context.Context, input interface{}, opts ...Option) (interface{}, error) {
	runID := uuid.NewString()
	tags := buildOptions(opts).Tags
	ctx, span := s.tracer.Start(ctx, "stage.invoke", trace.WithAttributes(
		attribute.String("stage.name", s.inner.Name()),
		attribute.String("run.id", runID),
		attribute.StringSlice("tags", tags),
	))
	defer span.End()

	s.logger.Debug("stage invoke started",
		zap.String("stage", s.inner.Name()),
		zap.String("run_id", runID),
		zap.Strings("tags", tags))

	output, err := s.inner.Invoke(ctx, input, opts...)
	if err != nil {
		s.recordFailure(span, runID, err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return output, nil
}

func (s *observedStage) Batch(ctx context.Context, inputs []interface{}, opts ...Option) ([]interface{}, error) {
	runID := uuid.NewString()
	ctx, span := s.tracer.Start(ctx, "stage.batch", trace.WithAttributes(
		attribute.String("stage.name", s.inner.Name()),
		attribute.String("run.id", runID),
		attribute.Int("batch.size", len(inputs)),
		attribute.StringSlice("tags", buildOptions(opts).Tags),
	))
	defer span.End()

	outputs, err := s.inner.Batch(ctx, inputs, opts...)
	if err != nil {
		s.recordFailure(span, runID, err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return outputs, nil
}

func (s *observedStage) Stream(ctx context.Context, input interface{}, opts ...Option) (<-chan StreamEvent, error) {
	runID := uuid.NewString()
	ctx, span := s.tracer.Start(ctx, "stage.stream", trace.WithAttributes(
		attribute.String("stage.name", s.inner.Name()),
		attribute.String("run.id", runID),
	))

	events, err := s.inner.Stream(ctx, input, opts...)
	if err != nil {
		s.recordFailure(span, runID, err)
		span.End()
		return nil, err
	}

	// Relay events so the span closes when the stream does.
	out := make(chan StreamEvent)
	go func() {
		defer span.End()
		defer close(out)

		for event := range events {
			if event.Err != nil {
				s.recordFailure(span, runID, event.Err)
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
		span.SetStatus(codes.Ok, "")
	}()
	return out, nil
}

func (s *observedStage) recordFailure(span trace.Span, runID string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	s.logger.Error("stage failed",
		zap.String("stage", s.inner.Name()),
		zap.String("run_id", runID),
		zap.Error(err))

	if s.report {
		sentry.CaptureException(err)
	}
}
