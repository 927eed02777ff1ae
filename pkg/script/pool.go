package script

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dop251/goja"
)

// vmPool manages reusable goja runtimes, each with the compiled program
// already loaded. goja runtimes are not safe for concurrent use, so every
// invocation checks one out for its duration.
type vmPool struct {
	idle    chan *goja.Runtime
	program *goja.Program
	entry   string
	maxSize int32
	created int32
}

func newVMPool(program *goja.Program, entry string, maxSize int) *vmPool {
	if maxSize <= 0 {
		maxSize = defaultMaxPoolSize
	}
	return &vmPool{
		idle:    make(chan *goja.Runtime, maxSize),
		program: program,
		entry:   entry,
		maxSize: int32(maxSize),
	}
}

// acquire returns an idle runtime, creating one if the pool is below its
// cap, or waits for a release.
func (p *vmPool) acquire(ctx context.Context) (*goja.Runtime, error) {
	select {
	case vm := <-p.idle:
		return vm, nil
	default:
	}

	if atomic.AddInt32(&p.created, 1) <= p.maxSize {
		return p.createVM()
	}
	atomic.AddInt32(&p.created, -1)

	select {
	case vm := <-p.idle:
		return vm, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// release returns a runtime to the pool. A runtime that was interrupted is
// discarded; its slot is freed for a fresh one.
func (p *vmPool) release(vm *goja.Runtime, healthy bool) {
	if !healthy {
		atomic.AddInt32(&p.created, -1)
		return
	}

	select {
	case p.idle <- vm:
	default:
		atomic.AddInt32(&p.created, -1)
	}
}

// createVM builds a runtime and loads the compiled program into it.
func (p *vmPool) createVM() (*goja.Runtime, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	if _, err := vm.RunProgram(p.program); err != nil {
		atomic.AddInt32(&p.created, -1)
		return nil, fmt.Errorf("failed to load script: %w", err)
	}

	entry := vm.Get(p.entry)
	if entry == nil {
		atomic.AddInt32(&p.created, -1)
		return nil, fmt.Errorf("script does not define function %q", p.entry)
	}
	if _, ok := goja.AssertFunction(entry); !ok {
		atomic.AddInt32(&p.created, -1)
		return nil, fmt.Errorf("script global %q is not a function", p.entry)
	}

	return vm, nil
}

// call runs the entry function on a pooled runtime, interrupting it if the
// context is cancelled mid-execution.
func (p *vmPool) call(ctx context.Context, input interface{}) (goja.Value, error) {
	vm, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}

	healthy := true
	defer func() { p.release(vm, healthy) }()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	fn, _ := goja.AssertFunction(vm.Get(p.entry))
	result, err := fn(goja.Undefined(), vm.ToValue(input))
	if err != nil {
		if _, interrupted := err.(*goja.InterruptedError); interrupted {
			healthy = false
			vm.ClearInterrupt()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
		}
		return nil, fmt.Errorf("script execution failed: %w", err)
	}

	return result, nil
}
