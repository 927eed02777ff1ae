package flow

import (
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/executor"
)

// Options configures one invocation of a stage.
type Options struct {
	// ConcurrencyLimit bounds simultaneous in-flight child invocations.
	ConcurrencyLimit int

	// BatchSize is the chunk size for collection-level execution.
	BatchSize int

	// PreserveOrder aligns batch results to input order.
	PreserveOrder bool

	// Tags are free-form labels attached to logs and spans.
	Tags []string

	// Logger receives per-invocation events. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Option mutates invocation options.
type Option func(*Options)

// WithConcurrencyLimit bounds simultaneous in-flight child invocations.
func WithConcurrencyLimit(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.ConcurrencyLimit = n
		}
	}
}

// WithBatchSize sets the chunk size for collection-level execution.
func WithBatchSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.BatchSize = n
		}
	}
}

// WithPreserveOrder controls whether batch results align to input order.
func WithPreserveOrder(preserve bool) Option {
	return func(o *Options) {
		o.PreserveOrder = preserve
	}
}

// WithTags attaches free-form labels to the invocation.
func WithTags(tags ...string) Option {
	return func(o *Options) {
		o.Tags = append(o.Tags, tags...)
	}
}

// WithLogger sets the logger for the invocation.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// buildOptions resolves option setters against the defaults.
func buildOptions(opts []Option) Options {
	resolved := Options{
		ConcurrencyLimit: executor.DefaultConcurrencyLimit,
		BatchSize:        executor.DefaultBatchSize,
		PreserveOrder:    true,
		Logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&resolved)
	}
	return resolved
}

// executorOptions converts invocation options to executor options.
func (o Options) executorOptions() executor.Options {
	return executor.Options{
		ConcurrencyLimit: o.ConcurrencyLimit,
		BatchSize:        o.BatchSize,
		PreserveOrder:    o.PreserveOrder,
	}
}
