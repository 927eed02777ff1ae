package flow

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/concurrency"
)

// FanOut runs a fixed set of named stages against one shared input
// concurrently and merges their outputs into a keyed record. A fan-out is
// immutable once built; WithStep returns a new value.
type FanOut struct {
	name         string
	keys         []string // declaration order
	steps        map[string]Stage
	allowPartial bool
}

// NewFanOut creates an empty fan-out.
func NewFanOut(name string) *FanOut {
	return &FanOut{name: name, steps: map[string]Stage{}}
}

// WithStep returns a new fan-out with an additional named step. Re-adding
// an existing key replaces its stage while keeping its declaration order.
func (f *FanOut) WithStep(key string, stage Stage) *FanOut {
	next := f.clone()
	if _, exists := next.steps[key]; !exists {
		next.keys = append(next.keys, key)
	}
	next.steps[key] = stage
	return next
}

// AllowPartial returns a new fan-out that, instead of failing when any step
// fails, returns the successful subset of results. Failed keys are absent
// from the merged record. Intended for diagnostic use; the default is
// fail-on-any-error.
func (f *FanOut) AllowPartial() *FanOut {
	next := f.clone()
	next.allowPartial = true
	return next
}

func (f *FanOut) clone() *FanOut {
	keys := make([]string, len(f.keys))
	copy(keys, f.keys)
	steps := make(map[string]Stage, len(f.steps))
	for k, v := range f.steps {
		steps[k] = v
	}
	return &FanOut{name: f.name, keys: keys, steps: steps, allowPartial: f.allowPartial}
}

// Name implements Stage.
func (f *FanOut) Name() string { return f.name }

// Invoke launches every named stage against the same input, the fan-out
// width bounded by the invocation's concurrency limit, and collects a
// record with exactly the declared key set. By default any step failure
// fails the whole call with every failing key reported.
func (f *FanOut) Invoke(ctx context.Context, input interface{}, opts ...Option) (interface{}, error) {
	options := buildOptions(opts)

	merged, failures := f.run(ctx, input, options, opts)
	if len(failures) > 0 {
		if f.allowPartial {
			options.Logger.Warn("fan-out returning partial results",
				zap.String("fanout", f.name),
				zap.Int("failed", len(failures)),
				zap.Int("total", len(f.keys)))
			return merged, nil
		}
		return nil, &AggregateError{Stage: f.name, Failures: failures, Total: len(f.keys)}
	}

	return merged, nil
}

// run executes all steps and returns the merged record plus the failures,
// ordered by key for deterministic reporting.
func (f *FanOut) run(ctx context.Context, input interface{}, options Options, opts []Option) (map[string]interface{}, []*ExecutionError) {
	limiter := concurrency.NewLimiter(options.ConcurrencyLimit)

	var wg sync.WaitGroup
	var mu sync.Mutex
	merged := make(map[string]interface{}, len(f.keys))
	var failures []*ExecutionError

	for _, key := range f.keys {
		if err := limiter.Acquire(ctx); err != nil {
			mu.Lock()
			failures = append(failures, &ExecutionError{Stage: f.name, Step: -1, Key: key, Err: err})
			mu.Unlock()
			break
		}

		wg.Add(1)
		go func(key string, stage Stage) {
			defer wg.Done()
			defer limiter.Release()

			output, err := stage.Invoke(ctx, input, opts...)

			mu.Lock()
			if err != nil {
				failures = append(failures, &ExecutionError{Stage: f.name, Step: -1, Key: key, Err: err})
			} else {
				merged[key] = output
			}
			mu.Unlock()
		}(key, f.steps[key])
	}

	wg.Wait()

	sort.Slice(failures, func(i, j int) bool { return failures[i].Key < failures[j].Key })
	return merged, failures
}

// Batch applies the fan-out independently across the inputs. The outer
// per-input bound comes from the invocation options; each fan-out run
// bounds its own steps separately.
func (f *FanOut) Batch(ctx context.Context, inputs []interface{}, opts ...Option) ([]interface{}, error) {
	return batchOverInvoke(ctx, f, inputs, opts)
}

// Stream yields the growing partial record each time one more step
// completes: the last event before close holds the full record. The stream
// terminates at the first step failure (unless partial results are
// allowed, in which case failed steps are skipped).
func (f *FanOut) Stream(ctx context.Context, input interface{}, opts ...Option) (<-chan StreamEvent, error) {
	options := buildOptions(opts)
	out := make(chan StreamEvent)

	go func() {
		defer close(out)

		limiter := concurrency.NewLimiter(options.ConcurrencyLimit)

		type stepResult struct {
			key    string
			output interface{}
			err    error
		}
		// Buffered so workers can finish even if the consumer stops early.
		resultCh := make(chan stepResult, len(f.keys))

		var wg sync.WaitGroup
		for _, key := range f.keys {
			if err := limiter.Acquire(ctx); err != nil {
				resultCh <- stepResult{key: key, err: err}
				break
			}

			wg.Add(1)
			go func(key string, stage Stage) {
				defer wg.Done()
				defer limiter.Release()

				output, err := stage.Invoke(ctx, input, opts...)
				resultCh <- stepResult{key: key, output: output, err: err}
			}(key, f.steps[key])
		}

		go func() {
			wg.Wait()
			close(resultCh)
		}()

		merged := make(map[string]interface{}, len(f.keys))
		for res := range resultCh {
			if res.err != nil {
				if f.allowPartial {
					continue
				}
				out <- StreamEvent{Err: &ExecutionError{Stage: f.name, Step: -1, Key: res.key, Err: res.err}}
				return
			}

			merged[res.key] = res.output
			snapshot := make(map[string]interface{}, len(merged))
			for k, v := range merged {
				snapshot[k] = v
			}

			select {
			case out <- StreamEvent{Value: snapshot}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
