// Package executor runs an asynchronous unit function over a collection
// under an explicit concurrency bound. Results are aligned to input order,
// large collections are chunked, and a streaming variant yields chunk
// results incrementally. Retry and rate-limit decorators wrap unit
// functions without affecting sibling scheduling.
package executor

import (
	"context"
	"sync"

	"go.uber.org/multierr"

	"github.com/wehubfusion/Daedalus/pkg/concurrency"
)

// UnitFunc is the per-element function applied by the executor.
type UnitFunc func(ctx context.Context, item interface{}, index int) (interface{}, error)

// Options configures one executor run.
type Options struct {
	// ConcurrencyLimit bounds simultaneous in-flight unit invocations.
	// Zero means DefaultConcurrencyLimit.
	ConcurrencyLimit int

	// BatchSize is the chunk size for collections larger than one chunk.
	// It only affects chunking, never the concurrency bound. Zero means
	// DefaultBatchSize.
	BatchSize int

	// PreserveOrder aligns results to input order. Results are written at
	// the item's original slot either way; unordered mode skips chunking.
	PreserveOrder bool
}

// Defaults applied when an option is left at its zero value.
const (
	DefaultConcurrencyLimit = 10
	DefaultBatchSize        = concurrency.DefaultBatchSize
	DefaultStreamChunkSize  = concurrency.DefaultStreamChunkSize
)

// DefaultOptions returns the executor defaults.
func DefaultOptions() Options {
	return Options{
		ConcurrencyLimit: DefaultConcurrencyLimit,
		BatchSize:        DefaultBatchSize,
		PreserveOrder:    true,
	}
}

func (o Options) normalized() Options {
	if o.ConcurrencyLimit <= 0 {
		o.ConcurrencyLimit = DefaultConcurrencyLimit
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// Run applies unit to every item with limiter-bounded concurrency and
// returns results aligned to input order. Collections larger than the batch
// size are processed as contiguous chunks, re-merged by chunk index. An
// empty collection returns immediately without acquiring any permit.
//
// All item failures are collected before reporting; the returned error
// combines every per-index failure. Cancellation is observed between
// chunks, never mid-chunk.
func Run(ctx context.Context, items []interface{}, unit UnitFunc, opts Options) ([]interface{}, error) {
	if len(items) == 0 {
		return []interface{}{}, nil
	}

	opts = opts.normalized()
	limiter := concurrency.NewLimiter(opts.ConcurrencyLimit)
	results := make([]interface{}, len(items))

	if !opts.PreserveOrder || len(items) <= opts.BatchSize {
		if err := runChunk(ctx, items, 0, unit, limiter, results); err != nil {
			return nil, err
		}
		return results, nil
	}

	// Chunked execution: the same limiter (and so the same cap) applies
	// within each chunk; chunk results land at their original offsets so
	// the merged ordering matches the input exactly. A failed chunk does
	// not stop the later ones; their failures are accumulated so the
	// combined error covers the whole collection.
	var failures error
	for start := 0; start < len(items); start += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + opts.BatchSize
		if end > len(items) {
			end = len(items)
		}
		if err := runChunk(ctx, items[start:end], start, unit, limiter, results[start:end]); err != nil {
			failures = multierr.Append(failures, err)
		}
	}

	if failures != nil {
		return nil, failures
	}
	return results, nil
}

// runChunk invokes unit for every item of one chunk under the limiter.
// results is chunk-local (same length as items); unit and ItemError both see
// the item's global index, offset plus its chunk position. All failures in
// the chunk are collected.
func runChunk(ctx context.Context, items []interface{}, offset int, unit UnitFunc, limiter *concurrency.Limiter, results []interface{}) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures error

	for i, item := range items {
		if err := limiter.Acquire(ctx); err != nil {
			// Acquire only fails on cancellation (or an open breaker);
			// record it for this slot and stop dispatching.
			mu.Lock()
			failures = multierr.Append(failures, &ItemError{Index: offset + i, Err: err})
			mu.Unlock()
			break
		}

		wg.Add(1)
		go func(slot int, item interface{}) {
			defer wg.Done()
			defer limiter.Release()

			output, err := unit(ctx, item, offset+slot)

			mu.Lock()
			if err != nil {
				failures = multierr.Append(failures, &ItemError{Index: offset + slot, Err: err})
			} else {
				results[slot] = output
			}
			mu.Unlock()
		}(i, item)
	}

	wg.Wait()
	return failures
}
