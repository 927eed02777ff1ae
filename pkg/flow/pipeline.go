package flow

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Pipeline chains stages sequentially: each stage's output becomes the next
// stage's input. A pipeline is immutable once built and safe to share
// across concurrent invocations.
type Pipeline struct {
	name   string
	stages []Stage
}

// NewPipeline creates a pipeline from the given stages.
func NewPipeline(name string, stages ...Stage) *Pipeline {
	copied := make([]Stage, len(stages))
	copy(copied, stages)
	return &Pipeline{name: name, stages: copied}
}

// Then returns a new pipeline with an additional trailing stage. The
// receiver is not modified.
func (p *Pipeline) Then(stage Stage) *Pipeline {
	stages := make([]Stage, len(p.stages), len(p.stages)+1)
	copy(stages, p.stages)
	return &Pipeline{name: p.name, stages: append(stages, stage)}
}

// Len returns the number of stages in the pipeline.
func (p *Pipeline) Len() int { return len(p.stages) }

// Name implements Stage.
func (p *Pipeline) Name() string { return p.name }

// Invoke threads the input through every stage in order. The first failure
// aborts the invocation with an error identifying the failing step; no
// later stages run. Cancellation is observed between steps, never mid-step.
func (p *Pipeline) Invoke(ctx context.Context, input interface{}, opts ...Option) (interface{}, error) {
	options := buildOptions(opts)

	current := input
	for i, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			options.Logger.Debug("pipeline cancelled between steps",
				zap.String("pipeline", p.name),
				zap.Int("step", i))
			return nil, cancelledError(p.name, err)
		}

		output, err := stage.Invoke(ctx, current, opts...)
		if err != nil {
			options.Logger.Debug("pipeline step failed",
				zap.String("pipeline", p.name),
				zap.String("stage", stage.Name()),
				zap.Int("step", i),
				zap.Error(err))
			return nil, &ExecutionError{Stage: stage.Name(), Step: i, Err: err}
		}
		current = output
	}

	return current, nil
}

// Batch applies the whole pipeline independently to each input, itself
// bounded by the invocation's concurrency options. If any of the runs
// fails the batch fails as a whole, reporting every failed input and the
// failed-versus-total count.
func (p *Pipeline) Batch(ctx context.Context, inputs []interface{}, opts ...Option) ([]interface{}, error) {
	options := buildOptions(opts)

	results, err := runCollection(ctx, inputs, func(ctx context.Context, item interface{}, _ int) (interface{}, error) {
		return p.Invoke(ctx, item, opts...)
	}, options)
	if err != nil {
		wrapped := fromExecutorError(p.name, err, len(inputs))
		if agg, ok := wrapped.(*AggregateError); ok {
			options.Logger.Debug("pipeline batch failed",
				zap.String("pipeline", p.name),
				zap.Int("failed", len(agg.Failures)),
				zap.Int("total", agg.Total))
		}
		return nil, wrapped
	}
	return results, nil
}

// Stream threads the input through every stage but the last, then streams
// the last stage. A single-stage pipeline streams that stage directly; an
// empty pipeline yields its input as one event.
func (p *Pipeline) Stream(ctx context.Context, input interface{}, opts ...Option) (<-chan StreamEvent, error) {
	if len(p.stages) == 0 {
		out := make(chan StreamEvent, 1)
		out <- StreamEvent{Value: input}
		close(out)
		return out, nil
	}

	head := &Pipeline{name: p.name, stages: p.stages[:len(p.stages)-1]}
	current, err := head.Invoke(ctx, input, opts...)
	if err != nil {
		return nil, err
	}

	last := p.stages[len(p.stages)-1]
	events, err := last.Stream(ctx, current, opts...)
	if err != nil {
		return nil, &ExecutionError{Stage: last.Name(), Step: len(p.stages) - 1, Err: err}
	}
	return events, nil
}

// String describes the pipeline's step sequence.
func (p *Pipeline) String() string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return fmt.Sprintf("pipeline %q %v", p.name, names)
}
