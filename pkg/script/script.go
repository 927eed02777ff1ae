// Package script builds stages and router conditions from JavaScript
// sources, executed on a pool of reusable goja runtimes. A stage script
// must define a global handler function that receives the input value and
// returns the output; a condition script's handler returns a truthy value
// when the condition matches.
package script

import (
	"context"
	"fmt"

	"github.com/dop251/goja"

	"github.com/wehubfusion/Daedalus/pkg/condition"
	"github.com/wehubfusion/Daedalus/pkg/flow"
)

const (
	// defaultEntry is the global function a script must define.
	defaultEntry = "handler"

	// defaultMaxPoolSize caps the number of pooled runtimes per script.
	defaultMaxPoolSize = 8
)

// Config configures script execution.
type Config struct {
	// Entry is the global function name to call. Defaults to "handler".
	Entry string

	// MaxPoolSize caps pooled runtimes for this script. Defaults to 8.
	MaxPoolSize int
}

func (c Config) normalized() Config {
	if c.Entry == "" {
		c.Entry = defaultEntry
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = defaultMaxPoolSize
	}
	return c
}

// New compiles a JavaScript source into a stage. The script is compiled
// once; each invocation checks a runtime out of the pool, so the stage is
// safe for concurrent use.
func New(name, source string, cfg Config) (flow.Stage, error) {
	pool, err := compile(name, source, cfg)
	if err != nil {
		return nil, err
	}

	return flow.Func(name, func(ctx context.Context, input interface{}) (interface{}, error) {
		result, err := pool.call(ctx, input)
		if err != nil {
			return nil, err
		}
		return result.Export(), nil
	}), nil
}

// NewCondition compiles a JavaScript source into a router condition. The
// handler's return value is coerced to a boolean with JavaScript truthiness
// rules; script failures count as non-match.
func NewCondition(source string, cfg Config) (condition.Condition, error) {
	pool, err := compile("condition", source, cfg)
	if err != nil {
		return condition.Condition{}, err
	}

	return condition.Func(func(ctx context.Context, input interface{}) (bool, error) {
		result, err := pool.call(ctx, input)
		if err != nil {
			return false, err
		}
		return result.ToBoolean(), nil
	}), nil
}

// compile parses the source and prepares a runtime pool for it.
func compile(name, source string, cfg Config) (*vmPool, error) {
	cfg = cfg.normalized()

	program, err := goja.Compile(name, source, true)
	if err != nil {
		return nil, fmt.Errorf("failed to compile script %q: %w", name, err)
	}

	return newVMPool(program, cfg.Entry, cfg.MaxPoolSize), nil
}
