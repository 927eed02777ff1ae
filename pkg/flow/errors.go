package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wehubfusion/Daedalus/pkg/executor"
)

var (
	// ErrNoMatchingBranch is returned when a router finds no satisfied
	// condition and has no default target.
	ErrNoMatchingBranch = errors.New("no matching branch")

	// ErrCancelled is returned when an invocation stops at a stage
	// boundary because of an observed cancellation. Callers can use it to
	// avoid retrying.
	ErrCancelled = errors.New("invocation cancelled")
)

// ExecutionError reports the failure of one stage. For pipelines Step
// identifies the failing step (0-based); for fan-outs and enrichers Key
// names the failing entry.
type ExecutionError struct {
	// Stage is the name of the failing stage.
	Stage string

	// Step is the pipeline step index, or -1 when not applicable.
	Step int

	// Key is the fan-out or enricher entry name, empty when not applicable.
	Key string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	switch {
	case e.Step >= 0:
		return fmt.Sprintf("stage %q (step %d): %v", e.Stage, e.Step, e.Err)
	case e.Key != "":
		return fmt.Sprintf("stage %q (key %q): %v", e.Stage, e.Key, e.Err)
	default:
		return fmt.Sprintf("stage %q: %v", e.Stage, e.Err)
	}
}

// Unwrap returns the underlying cause.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// newExecutionError wraps a cause for a named stage without positional context.
func newExecutionError(stage string, err error) *ExecutionError {
	return &ExecutionError{Stage: stage, Step: -1, Err: err}
}

// AggregateError reports multiple independent failures from one invocation.
// Every failing branch is listed, not just the first.
type AggregateError struct {
	// Stage is the name of the composite that collected the failures.
	Stage string

	// Failures holds every branch failure.
	Failures []*ExecutionError

	// Total is the number of branches attempted.
	Total int
}

// Error implements the error interface.
func (e *AggregateError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("stage %q: %d/%d failed: %s", e.Stage, len(e.Failures), e.Total, strings.Join(parts, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// cancelledError wraps a context error as an ErrCancelled at a stage boundary.
func cancelledError(stage string, cause error) error {
	return newExecutionError(stage, fmt.Errorf("%w: %v", ErrCancelled, cause))
}

// IsCancelled reports whether an invocation stopped due to cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// fromExecutorError converts a collection-run failure into flow terms:
// cancellation surfaces as ErrCancelled, item failures become an
// AggregateError keyed by input index.
func fromExecutorError(stage string, err error, total int) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return cancelledError(stage, err)
	}

	items := executor.ItemErrors(err)
	if len(items) == 0 {
		return newExecutionError(stage, err)
	}

	failures := make([]*ExecutionError, len(items))
	for i, item := range items {
		failures[i] = &ExecutionError{Stage: stage, Step: item.Index, Err: item.Err}
	}
	return &AggregateError{Stage: stage, Failures: failures, Total: total}
}
