// Package flow provides a small runtime for building directed pipelines of
// asynchronous stages: sequential pipelines, parallel fan-outs, conditional
// routers, field enrichers, and collection mappers, all under explicit
// concurrency limits with defined ordering, error-aggregation, and
// cooperative cancellation semantics.
package flow

import (
	"context"
	"fmt"
)

// Stage is the unit of asynchronous work every composition primitive and
// leaf implements. Stages exchange dynamically typed values; composites
// never assume whether a stage is stateless or owns private caches.
type Stage interface {
	// Name identifies the stage in errors, logs, and spans.
	Name() string

	// Invoke applies the stage to a single input.
	Invoke(ctx context.Context, input interface{}, opts ...Option) (interface{}, error)

	// Batch applies the stage independently to each input under a
	// concurrency cap, results aligned to input order.
	Batch(ctx context.Context, inputs []interface{}, opts ...Option) ([]interface{}, error)

	// Stream applies the stage to a single input and yields incremental
	// outputs. The returned channel is finite, consumed once, and not
	// restartable while in flight.
	Stream(ctx context.Context, input interface{}, opts ...Option) (<-chan StreamEvent, error)
}

// StreamEvent is one incremental output of a streaming invocation. A
// terminal event carries Err; the channel is closed afterwards.
type StreamEvent struct {
	Value interface{}
	Err   error
}

// funcStage lifts a plain function into a Stage.
type funcStage struct {
	name string
	fn   func(ctx context.Context, input interface{}) (interface{}, error)
}

// Func creates a leaf stage from a function.
func Func(name string, fn func(ctx context.Context, input interface{}) (interface{}, error)) Stage {
	return &funcStage{name: name, fn: fn}
}

func (s *funcStage) Name() string { return s.name }

func (s *funcStage) Invoke(ctx context.Context, input interface{}, _ ...Option) (interface{}, error) {
	if s.fn == nil {
		return nil, newExecutionError(s.name, fmt.Errorf("nil stage function"))
	}

	output, err := s.fn(ctx, input)
	if err != nil {
		return nil, newExecutionError(s.name, err)
	}
	return output, nil
}

func (s *funcStage) Batch(ctx context.Context, inputs []interface{}, opts ...Option) ([]interface{}, error) {
	return batchOverInvoke(ctx, s, inputs, opts)
}

func (s *funcStage) Stream(ctx context.Context, input interface{}, opts ...Option) (<-chan StreamEvent, error) {
	return streamOverInvoke(ctx, s, input, opts)
}

// constantStage always produces the same value, ignoring its input.
type constantStage struct {
	name  string
	value interface{}
}

// Constant creates a leaf stage returning a fixed value.
func Constant(name string, value interface{}) Stage {
	return &constantStage{name: name, value: value}
}

func (s *constantStage) Name() string { return s.name }

func (s *constantStage) Invoke(_ context.Context, _ interface{}, _ ...Option) (interface{}, error) {
	return s.value, nil
}

func (s *constantStage) Batch(_ context.Context, inputs []interface{}, _ ...Option) ([]interface{}, error) {
	results := make([]interface{}, len(inputs))
	for i := range results {
		results[i] = s.value
	}
	return results, nil
}

func (s *constantStage) Stream(ctx context.Context, input interface{}, opts ...Option) (<-chan StreamEvent, error) {
	return streamOverInvoke(ctx, s, input, opts)
}

// batchOverInvoke is the default Batch implementation: apply the stage's
// Invoke independently to each input on the bounded executor.
func batchOverInvoke(ctx context.Context, s Stage, inputs []interface{}, opts []Option) ([]interface{}, error) {
	options := buildOptions(opts)

	results, err := runCollection(ctx, inputs, func(ctx context.Context, item interface{}, _ int) (interface{}, error) {
		return s.Invoke(ctx, item, opts...)
	}, options)
	if err != nil {
		return nil, fromExecutorError(s.Name(), err, len(inputs))
	}
	return results, nil
}

// streamOverInvoke is the default Stream implementation: a single-event
// stream carrying the Invoke result.
func streamOverInvoke(ctx context.Context, s Stage, input interface{}, opts []Option) (<-chan StreamEvent, error) {
	out := make(chan StreamEvent, 1)

	go func() {
		defer close(out)

		output, err := s.Invoke(ctx, input, opts...)
		if err != nil {
			out <- StreamEvent{Err: err}
			return
		}
		out <- StreamEvent{Value: output}
	}()

	return out, nil
}
