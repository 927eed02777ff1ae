package flow

import (
	"context"
	"fmt"

	"github.com/wehubfusion/Daedalus/pkg/executor"
)

// Mapper lifts one element-level stage to the collection level: its input
// is a slice and its output the element results aligned to input order,
// computed with bounded concurrency. Retry and rate-limit decorators derive
// new Mappers without mutating the original.
type Mapper struct {
	name string
	unit executor.UnitFunc
}

// NewMapper creates a mapper applying the given stage to each element.
func NewMapper(name string, element Stage) *Mapper {
	return &Mapper{
		name: name,
		unit: func(ctx context.Context, item interface{}, _ int) (interface{}, error) {
			return element.Invoke(ctx, item)
		},
	}
}

// NewMapperFunc creates a mapper applying a plain function to each element.
func NewMapperFunc(name string, fn func(ctx context.Context, item interface{}) (interface{}, error)) *Mapper {
	return &Mapper{
		name: name,
		unit: func(ctx context.Context, item interface{}, _ int) (interface{}, error) {
			return fn(ctx, item)
		},
	}
}

// WithRetry returns a new mapper whose element invocations are retried with
// exponential backoff. Retry state is per element.
func (m *Mapper) WithRetry(policy executor.RetryPolicy) *Mapper {
	return &Mapper{name: m.name, unit: executor.WithRetry(m.unit, policy)}
}

// WithRateLimit returns a new mapper whose element invocations are spaced
// to at most eventsPerSecond, independent of the concurrency cap.
func (m *Mapper) WithRateLimit(eventsPerSecond float64, burst int) *Mapper {
	return &Mapper{name: m.name, unit: executor.WithRateLimit(m.unit, eventsPerSecond, burst)}
}

// Name implements Stage.
func (m *Mapper) Name() string { return m.name }

// Invoke runs the element unit over the input collection on the bounded
// executor. The input must be a []interface{}; an empty collection returns
// an empty result without acquiring any permit.
func (m *Mapper) Invoke(ctx context.Context, input interface{}, opts ...Option) (interface{}, error) {
	items, err := asCollection(input)
	if err != nil {
		return nil, newExecutionError(m.name, err)
	}

	options := buildOptions(opts)
	results, err := executor.Run(ctx, items, m.unit, options.executorOptions())
	if err != nil {
		return nil, fromExecutorError(m.name, err, len(items))
	}
	return results, nil
}

// Batch maps each input collection independently.
func (m *Mapper) Batch(ctx context.Context, inputs []interface{}, opts ...Option) ([]interface{}, error) {
	return batchOverInvoke(ctx, m, inputs, opts)
}

// Stream runs the element unit over the input collection and yields one
// chunk of element results per event, in chunk order, with the same bounded
// concurrency as Invoke.
func (m *Mapper) Stream(ctx context.Context, input interface{}, opts ...Option) (<-chan StreamEvent, error) {
	items, err := asCollection(input)
	if err != nil {
		return nil, newExecutionError(m.name, err)
	}

	options := buildOptions(opts)
	execOpts := options.executorOptions()
	if !hasBatchSizeOption(opts) {
		// Streaming defaults to smaller chunks for tighter backpressure.
		execOpts.BatchSize = 0
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)

		for chunk := range executor.RunStream(ctx, items, m.unit, execOpts) {
			if chunk.Err != nil {
				out <- StreamEvent{Err: fromExecutorError(m.name, chunk.Err, len(items))}
				return
			}
			select {
			case out <- StreamEvent{Value: chunk.Results}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// asCollection coerces a mapper input to a slice.
func asCollection(input interface{}) ([]interface{}, error) {
	if input == nil {
		return []interface{}{}, nil
	}
	items, ok := input.([]interface{})
	if !ok {
		return nil, fmt.Errorf("mapper input must be a []interface{}, got %T", input)
	}
	return items, nil
}

// hasBatchSizeOption reports whether the caller set an explicit batch size.
func hasBatchSizeOption(opts []Option) bool {
	probe := Options{}
	for _, opt := range opts {
		opt(&probe)
	}
	return probe.BatchSize > 0
}
