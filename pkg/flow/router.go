package flow

import (
	"context"

	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/condition"
)

// Branch pairs a condition with its target stage.
type Branch struct {
	// Name labels the branch in logs; optional.
	Name string

	// Condition gates the branch.
	Condition condition.Condition

	// Target receives the input when the condition matches.
	Target Stage
}

// Router dispatches an input to the first branch whose condition matches,
// in registration order, or to a default target. Branches are immutable
// once registered on a given instance: AddBranch and WithDefault return new
// Router values, so routers are safe to share across concurrent
// invocations.
type Router struct {
	name          string
	branches      []Branch
	defaultTarget Stage
}

// NewRouter creates a router with no branches.
func NewRouter(name string) *Router {
	return &Router{name: name}
}

// AddBranch returns a new router with an additional branch appended.
func (r *Router) AddBranch(cond condition.Condition, target Stage) *Router {
	return r.AddNamedBranch("", cond, target)
}

// AddNamedBranch returns a new router with an additional labeled branch.
func (r *Router) AddNamedBranch(name string, cond condition.Condition, target Stage) *Router {
	branches := make([]Branch, len(r.branches), len(r.branches)+1)
	copy(branches, r.branches)
	branches = append(branches, Branch{Name: name, Condition: cond, Target: target})
	return &Router{name: r.name, branches: branches, defaultTarget: r.defaultTarget}
}

// WithDefault returns a new router using the given stage when no branch
// condition matches.
func (r *Router) WithDefault(target Stage) *Router {
	branches := make([]Branch, len(r.branches))
	copy(branches, r.branches)
	return &Router{name: r.name, branches: branches, defaultTarget: target}
}

// Name implements Stage.
func (r *Router) Name() string { return r.name }

// route returns the stage for the first branch whose condition matches the
// input, falling back to the default target.
func (r *Router) route(ctx context.Context, input interface{}, logger *zap.Logger) (Stage, bool) {
	for i, branch := range r.branches {
		if branch.Condition.Evaluate(ctx, input) {
			logger.Debug("router matched branch",
				zap.String("router", r.name),
				zap.Int("branch", i),
				zap.String("branch_name", branch.Name),
				zap.String("target", branch.Target.Name()))
			return branch.Target, true
		}
	}

	if r.defaultTarget != nil {
		logger.Debug("router using default target",
			zap.String("router", r.name),
			zap.String("target", r.defaultTarget.Name()))
		return r.defaultTarget, true
	}
	return nil, false
}

// Invoke evaluates branch conditions in registration order and delegates to
// the first satisfied branch's target. With no match and no default the
// invocation fails with ErrNoMatchingBranch.
func (r *Router) Invoke(ctx context.Context, input interface{}, opts ...Option) (interface{}, error) {
	options := buildOptions(opts)

	target, ok := r.route(ctx, input, options.Logger)
	if !ok {
		return nil, newExecutionError(r.name, ErrNoMatchingBranch)
	}

	output, err := target.Invoke(ctx, input, opts...)
	if err != nil {
		return nil, newExecutionError(r.name, err)
	}
	return output, nil
}

// Batch applies per-input routing independently and concurrently across the
// collection.
func (r *Router) Batch(ctx context.Context, inputs []interface{}, opts ...Option) ([]interface{}, error) {
	return batchOverInvoke(ctx, r, inputs, opts)
}

// Stream routes the input, then delegates streaming to the selected target.
func (r *Router) Stream(ctx context.Context, input interface{}, opts ...Option) (<-chan StreamEvent, error) {
	options := buildOptions(opts)

	target, ok := r.route(ctx, input, options.Logger)
	if !ok {
		return nil, newExecutionError(r.name, ErrNoMatchingBranch)
	}

	events, err := target.Stream(ctx, input, opts...)
	if err != nil {
		return nil, newExecutionError(r.name, err)
	}
	return events, nil
}
