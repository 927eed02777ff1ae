package executor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func identity(_ context.Context, item interface{}, _ int) (interface{}, error) {
	return item, nil
}

func makeItems(n int) []interface{} {
	items := make([]interface{}, n)
	for i := range items {
		items[i] = i
	}
	return items
}

func TestRunPreservesInputOrder(t *testing.T) {
	items := makeItems(50)

	// Random-ish delays so completion order differs from input order.
	unit := func(_ context.Context, item interface{}, index int) (interface{}, error) {
		time.Sleep(time.Duration((index*7)%5) * time.Millisecond)
		return item.(int) * 2, nil
	}

	results, err := Run(context.Background(), items, unit, Options{ConcurrencyLimit: 8, PreserveOrder: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(results))
	}
	for i, r := range results {
		if r.(int) != i*2 {
			t.Fatalf("result %d: expected %d, got %v", i, i*2, r)
		}
	}
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	var active, peak int64

	unit := func(_ context.Context, item interface{}, _ int) (interface{}, error) {
		current := atomic.AddInt64(&active, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if current <= old || atomic.CompareAndSwapInt64(&peak, old, current) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&active, -1)
		return item, nil
	}

	_, err := Run(context.Background(), makeItems(30), unit, Options{ConcurrencyLimit: 3})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := atomic.LoadInt64(&peak); got > 3 {
		t.Fatalf("expected at most 3 simultaneous invocations, observed %d", got)
	}
}

func TestRunChunksLargeCollections(t *testing.T) {
	items := makeItems(25)

	results, err := Run(context.Background(), items, identity, Options{ConcurrencyLimit: 4, BatchSize: 10})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for i, r := range results {
		if r.(int) != i {
			t.Fatalf("chunk merge broke ordering at %d: got %v", i, r)
		}
	}
}

func TestRunEmptyInputAcquiresNothing(t *testing.T) {
	var invoked int64
	unit := func(_ context.Context, item interface{}, _ int) (interface{}, error) {
		atomic.AddInt64(&invoked, 1)
		return item, nil
	}

	results, err := Run(context.Background(), nil, unit, Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty result, got %d entries", len(results))
	}
	if atomic.LoadInt64(&invoked) != 0 {
		t.Fatal("unit must not be invoked for an empty collection")
	}
}

func TestRunCollectsAllFailures(t *testing.T) {
	unit := func(_ context.Context, item interface{}, index int) (interface{}, error) {
		if index%2 == 1 {
			return nil, fmt.Errorf("odd item %d", index)
		}
		return item, nil
	}

	_, err := Run(context.Background(), makeItems(6), unit, Options{ConcurrencyLimit: 6})
	if err == nil {
		t.Fatal("expected an error")
	}

	items := ItemErrors(err)
	if len(items) != 3 {
		t.Fatalf("expected 3 item errors, got %d: %v", len(items), err)
	}
	seen := map[int]bool{}
	for _, item := range items {
		seen[item.Index] = true
	}
	for _, idx := range []int{1, 3, 5} {
		if !seen[idx] {
			t.Fatalf("expected failure for index %d, got %v", idx, err)
		}
	}
}

func TestRunCollectsFailuresAcrossChunks(t *testing.T) {
	unit := func(_ context.Context, item interface{}, index int) (interface{}, error) {
		if index == 2 || index == 17 {
			return nil, fmt.Errorf("boom at %d", index)
		}
		return item, nil
	}

	// 25 items with BatchSize 10: failures land in the first and second
	// chunks, and the third chunk must still run to completion.
	_, err := Run(context.Background(), makeItems(25), unit, Options{ConcurrencyLimit: 4, BatchSize: 10})
	if err == nil {
		t.Fatal("expected an error")
	}

	items := ItemErrors(err)
	if len(items) != 2 {
		t.Fatalf("expected failures from every chunk, got %d: %v", len(items), err)
	}
	seen := map[int]bool{}
	for _, item := range items {
		seen[item.Index] = true
	}
	for _, idx := range []int{2, 17} {
		if !seen[idx] {
			t.Fatalf("expected failure for index %d, got %v", idx, err)
		}
	}
}

func TestRunObservesCancellationBetweenChunks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var invoked [6]int64
	unit := func(_ context.Context, item interface{}, index int) (interface{}, error) {
		atomic.AddInt64(&invoked[index], 1)
		if index == 1 {
			cancel()
		}
		return item, nil
	}

	_, err := Run(ctx, makeItems(6), unit, Options{ConcurrencyLimit: 2, BatchSize: 3})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	for index := 3; index < 6; index++ {
		if atomic.LoadInt64(&invoked[index]) != 0 {
			t.Fatalf("item %d ran after cancellation at the chunk boundary", index)
		}
	}
}

func TestRunUnorderedStillAddressableBySlot(t *testing.T) {
	items := makeItems(20)

	results, err := Run(context.Background(), items, identity, Options{ConcurrencyLimit: 5, PreserveOrder: false})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for i, r := range results {
		if r.(int) != i {
			t.Fatalf("slot %d holds %v", i, r)
		}
	}
}

func TestRunStreamYieldsChunksInOrder(t *testing.T) {
	items := makeItems(10)

	var chunks [][]interface{}
	for chunk := range RunStream(context.Background(), items, identity, Options{ConcurrencyLimit: 4, BatchSize: 4}) {
		if chunk.Err != nil {
			t.Fatalf("chunk %d failed: %v", chunk.Index, chunk.Err)
		}
		if chunk.Index != len(chunks) {
			t.Fatalf("expected chunk %d, got %d", len(chunks), chunk.Index)
		}
		chunks = append(chunks, chunk.Results)
	}

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	next := 0
	for _, chunk := range chunks {
		for _, r := range chunk {
			if r.(int) != next {
				t.Fatalf("expected %d, got %v", next, r)
			}
			next++
		}
	}
	if next != len(items) {
		t.Fatalf("stream yielded %d results, want %d", next, len(items))
	}
}

func TestRunStreamTerminatesOnFirstFailedChunk(t *testing.T) {
	unit := func(_ context.Context, item interface{}, index int) (interface{}, error) {
		if index == 3 {
			return nil, errors.New("boom")
		}
		return item, nil
	}

	var events int
	var lastErr error
	for chunk := range RunStream(context.Background(), makeItems(9), unit, Options{ConcurrencyLimit: 2, BatchSize: 3}) {
		events++
		lastErr = chunk.Err
	}

	if lastErr == nil {
		t.Fatal("expected the final chunk to carry an error")
	}
	if events != 2 {
		t.Fatalf("expected one good chunk and one errored chunk, got %d events", events)
	}
}

func TestRunStreamEmptyInput(t *testing.T) {
	count := 0
	for range RunStream(context.Background(), nil, identity, Options{}) {
		count++
	}
	if count != 0 {
		t.Fatalf("expected no chunks for empty input, got %d", count)
	}
}
