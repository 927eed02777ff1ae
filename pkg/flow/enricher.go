package flow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wehubfusion/Daedalus/pkg/concurrency"
)

// ComputeFunc is a pure per-assignment computation over the original input.
type ComputeFunc func(ctx context.Context, input interface{}) (interface{}, error)

// assignment is one named computation: exactly one of stage, fn, or the
// constant flag is set, resolved at registration.
type assignment struct {
	key      string
	stage    Stage
	fn       ComputeFunc
	constant interface{}
	isConst  bool
}

// Enricher runs a set of named computations concurrently against one input
// and merges their outputs as new or overridden fields onto a shallow copy
// of the input. All computations see the original input, never each other's
// results; only the final merge follows declaration order, later keys
// winning ties. Enrichers are immutable once built.
type Enricher struct {
	name        string
	assignments []assignment
}

// NewEnricher creates an enricher with no assignments.
func NewEnricher(name string) *Enricher {
	return &Enricher{name: name}
}

// Assign returns a new enricher that computes key with a stage.
func (e *Enricher) Assign(key string, stage Stage) *Enricher {
	return e.with(assignment{key: key, stage: stage})
}

// AssignFunc returns a new enricher that computes key with a function.
func (e *Enricher) AssignFunc(key string, fn ComputeFunc) *Enricher {
	return e.with(assignment{key: key, fn: fn})
}

// AssignConst returns a new enricher that sets key to a fixed value.
func (e *Enricher) AssignConst(key string, value interface{}) *Enricher {
	return e.with(assignment{key: key, constant: value, isConst: true})
}

func (e *Enricher) with(a assignment) *Enricher {
	assignments := make([]assignment, len(e.assignments), len(e.assignments)+1)
	copy(assignments, e.assignments)
	return &Enricher{name: e.name, assignments: append(assignments, a)}
}

// Name implements Stage.
func (e *Enricher) Name() string { return e.name }

// Invoke computes every assignment concurrently against the original input
// and merges the results onto a shallow copy of it. The input must be a
// map[string]interface{} (or nil, treated as empty). Failures are collected
// across all assignments before reporting.
func (e *Enricher) Invoke(ctx context.Context, input interface{}, opts ...Option) (interface{}, error) {
	options := buildOptions(opts)

	base, err := shallowCopy(input)
	if err != nil {
		return nil, newExecutionError(e.name, err)
	}

	limiter := concurrency.NewLimiter(options.ConcurrencyLimit)

	var wg sync.WaitGroup
	var mu sync.Mutex
	computed := make([]interface{}, len(e.assignments))
	var failures []*ExecutionError

	for i, a := range e.assignments {
		if err := limiter.Acquire(ctx); err != nil {
			mu.Lock()
			failures = append(failures, &ExecutionError{Stage: e.name, Step: -1, Key: a.key, Err: err})
			mu.Unlock()
			break
		}

		wg.Add(1)
		go func(slot int, a assignment) {
			defer wg.Done()
			defer limiter.Release()

			value, err := a.compute(ctx, input, opts)

			mu.Lock()
			if err != nil {
				failures = append(failures, &ExecutionError{Stage: e.name, Step: -1, Key: a.key, Err: err})
			} else {
				computed[slot] = value
			}
			mu.Unlock()
		}(i, a)
	}

	wg.Wait()

	if len(failures) > 0 {
		sort.Slice(failures, func(i, j int) bool { return failures[i].Key < failures[j].Key })
		return nil, &AggregateError{Stage: e.name, Failures: failures, Total: len(e.assignments)}
	}

	// Merge in declaration order so later keys override earlier ones and
	// same-named input fields.
	for i, a := range e.assignments {
		base[a.key] = computed[i]
	}
	return base, nil
}

// compute resolves the assignment's variant.
func (a assignment) compute(ctx context.Context, input interface{}, opts []Option) (interface{}, error) {
	switch {
	case a.isConst:
		return a.constant, nil
	case a.fn != nil:
		return a.fn(ctx, input)
	case a.stage != nil:
		return a.stage.Invoke(ctx, input, opts...)
	default:
		return nil, fmt.Errorf("assignment %q has no computation", a.key)
	}
}

// Batch applies the enricher independently across the inputs.
func (e *Enricher) Batch(ctx context.Context, inputs []interface{}, opts ...Option) ([]interface{}, error) {
	return batchOverInvoke(ctx, e, inputs, opts)
}

// Stream yields the enriched record as a single event.
func (e *Enricher) Stream(ctx context.Context, input interface{}, opts ...Option) (<-chan StreamEvent, error) {
	return streamOverInvoke(ctx, e, input, opts)
}

// shallowCopy copies the top level of a map input. Nil becomes an empty
// record; any other type is rejected.
func shallowCopy(input interface{}) (map[string]interface{}, error) {
	if input == nil {
		return map[string]interface{}{}, nil
	}

	record, ok := input.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("enricher input must be a map[string]interface{}, got %T", input)
	}

	copied := make(map[string]interface{}, len(record))
	for k, v := range record {
		copied[k] = v
	}
	return copied, nil
}
