package executor

import (
	"context"

	"github.com/wehubfusion/Daedalus/pkg/concurrency"
)

// Chunk is one incrementally produced slice of results.
type Chunk struct {
	// Index is the chunk's position in the overall run.
	Index int

	// Results holds the chunk's outputs aligned to the chunk's input order.
	Results []interface{}

	// Err is set when any element of the chunk failed; the stream
	// terminates after an errored chunk.
	Err error
}

// RunStream applies unit to every item with the same bounded concurrency as
// Run, but yields one chunk of results at a time on the returned channel.
// The chunk size defaults smaller than the batch default for tighter
// backpressure. The stream is finite and single-pass: the channel is closed
// after the last chunk, after the first failed chunk, or when the context
// is cancelled between chunks.
func RunStream(ctx context.Context, items []interface{}, unit UnitFunc, opts Options) <-chan Chunk {
	out := make(chan Chunk)

	chunkSize := opts.BatchSize
	if chunkSize <= 0 {
		chunkSize = DefaultStreamChunkSize
	}
	opts = opts.normalized()

	go func() {
		defer close(out)

		if len(items) == 0 {
			return
		}

		limiter := concurrency.NewLimiter(opts.ConcurrencyLimit)

		chunkIndex := 0
		for start := 0; start < len(items); start += chunkSize {
			if err := ctx.Err(); err != nil {
				emit(ctx, out, Chunk{Index: chunkIndex, Err: err})
				return
			}

			end := start + chunkSize
			if end > len(items) {
				end = len(items)
			}

			results := make([]interface{}, end-start)
			err := runChunk(ctx, items[start:end], start, unit, limiter, results)
			if err != nil {
				emit(ctx, out, Chunk{Index: chunkIndex, Err: err})
				return
			}

			if !emit(ctx, out, Chunk{Index: chunkIndex, Results: results}) {
				return
			}
			chunkIndex++
		}
	}()

	return out
}

// emit sends a chunk unless the consumer has gone away.
func emit(ctx context.Context, out chan<- Chunk, c Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
