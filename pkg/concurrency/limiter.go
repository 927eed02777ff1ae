package concurrency

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks limiter performance counters
type Metrics struct {
	TotalAcquired   int64
	TotalReleased   int64
	PeakConcurrent  int64
	TotalWaitTimeNs int64
}

// Limiter is a counting semaphore bounding the number of in-flight
// operations. Waiters are woken in FIFO order: under sustained load the
// oldest blocked Acquire always receives the next released permit, so no
// caller can be starved by later arrivals.
type Limiter struct {
	mu      sync.Mutex
	permits int
	waiters *list.List // of chan struct{}, oldest at front

	active         int64
	totalAcquired  int64
	totalReleased  int64
	peakConcurrent int64
	totalWaitNs    int64

	circuitBreaker *CircuitBreaker
}

// NewLimiter creates a limiter with the specified maximum number of
// concurrent operations.
func NewLimiter(maxConcurrent int) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	return &Limiter{
		permits:        maxConcurrent,
		waiters:        list.New(),
		circuitBreaker: NewCircuitBreaker(100, 30*time.Second), // 100 failures in 30s opens circuit
	}
}

// NewLimiterWithCircuitBreaker creates a limiter with custom circuit breaker settings
func NewLimiterWithCircuitBreaker(maxConcurrent int, cb *CircuitBreaker) *Limiter {
	l := NewLimiter(maxConcurrent)
	l.circuitBreaker = cb
	return l
}

// Acquire takes a permit, blocking until one is available or the context is
// cancelled. Returns an error if the context is done or the circuit breaker
// is open.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.circuitBreaker != nil && l.circuitBreaker.IsOpen() {
		return fmt.Errorf("circuit breaker is open")
	}

	start := time.Now()

	l.mu.Lock()
	if l.permits > 0 && l.waiters.Len() == 0 {
		l.permits--
		l.mu.Unlock()
		l.recordAcquire(start)
		return nil
	}

	// No permit free (or older waiters exist): join the back of the queue.
	ready := make(chan struct{})
	elem := l.waiters.PushBack(ready)
	l.mu.Unlock()

	select {
	case <-ready:
		l.recordAcquire(start)
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		select {
		case <-ready:
			// Release raced with cancellation and handed us the permit;
			// pass it on rather than leak it.
			if front := l.waiters.Front(); front != nil {
				next := l.waiters.Remove(front).(chan struct{})
				close(next)
			} else {
				l.permits++
			}
			l.mu.Unlock()
		default:
			l.waiters.Remove(elem)
			l.mu.Unlock()
		}
		return ctx.Err()
	}
}

// TryAcquire takes a permit without blocking. It fails when no permit is
// free or when older waiters are queued (preserving FIFO order).
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.permits == 0 || l.waiters.Len() > 0 {
		return false
	}
	l.permits--

	atomic.AddInt64(&l.totalAcquired, 1)
	current := atomic.AddInt64(&l.active, 1)
	l.updatePeak(current)
	return true
}

// Release returns a permit, handing it directly to the oldest waiter if any.
func (l *Limiter) Release() {
	l.mu.Lock()
	if front := l.waiters.Front(); front != nil {
		ready := l.waiters.Remove(front).(chan struct{})
		close(ready)
	} else {
		l.permits++
	}
	l.mu.Unlock()

	atomic.AddInt64(&l.active, -1)
	atomic.AddInt64(&l.totalReleased, 1)
}

// Go executes a function in a goroutine once a permit is acquired.
func (l *Limiter) Go(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}

	go func() {
		defer l.Release()

		if err := fn(); err != nil {
			l.circuitBreaker.RecordFailure()
		} else {
			l.circuitBreaker.RecordSuccess()
		}
	}()

	return nil
}

// GoSync executes a function synchronously under a permit.
// Useful when the caller needs the result before continuing.
func (l *Limiter) GoSync(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}

	defer l.Release()

	if err := fn(); err != nil {
		l.circuitBreaker.RecordFailure()
		return err
	}

	l.circuitBreaker.RecordSuccess()
	return nil
}

// CurrentActive returns the current number of held permits.
func (l *Limiter) CurrentActive() int64 {
	return atomic.LoadInt64(&l.active)
}

// Waiting returns the number of callers blocked in Acquire.
func (l *Limiter) Waiting() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waiters.Len()
}

// GetMetrics returns a copy of the current metrics.
func (l *Limiter) GetMetrics() Metrics {
	return Metrics{
		TotalAcquired:   atomic.LoadInt64(&l.totalAcquired),
		TotalReleased:   atomic.LoadInt64(&l.totalReleased),
		PeakConcurrent:  atomic.LoadInt64(&l.peakConcurrent),
		TotalWaitTimeNs: atomic.LoadInt64(&l.totalWaitNs),
	}
}

// GetAverageWaitTime calculates the average wait time for acquiring a permit.
func (l *Limiter) GetAverageWaitTime() time.Duration {
	metrics := l.GetMetrics()
	if metrics.TotalAcquired == 0 {
		return 0
	}

	avgNs := metrics.TotalWaitTimeNs / metrics.TotalAcquired
	return time.Duration(avgNs)
}

// Reset resets the metrics (useful for testing or periodic resets)
func (l *Limiter) Reset() {
	atomic.StoreInt64(&l.totalAcquired, 0)
	atomic.StoreInt64(&l.totalReleased, 0)
	atomic.StoreInt64(&l.peakConcurrent, 0)
	atomic.StoreInt64(&l.totalWaitNs, 0)
}

// GetCircuitBreakerState returns the current state of the circuit breaker
func (l *Limiter) GetCircuitBreakerState() string {
	if l.circuitBreaker.IsOpen() {
		return "open"
	}
	return "closed"
}

func (l *Limiter) recordAcquire(start time.Time) {
	atomic.AddInt64(&l.totalWaitNs, time.Since(start).Nanoseconds())
	atomic.AddInt64(&l.totalAcquired, 1)

	current := atomic.AddInt64(&l.active, 1)
	l.updatePeak(current)
}

// updatePeak updates the peak concurrent count if current is higher
func (l *Limiter) updatePeak(current int64) {
	for {
		peak := atomic.LoadInt64(&l.peakConcurrent)
		if current <= peak {
			break
		}
		if atomic.CompareAndSwapInt64(&l.peakConcurrent, peak, current) {
			break
		}
	}
}
