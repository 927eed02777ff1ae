// Package condition provides the branch-condition sublanguage used by the
// flow router. A Condition is built once from a predicate function, a path
// expression, or a pattern, and evaluated against arbitrary inputs.
// Evaluation never fails: a condition that cannot be evaluated does not match.
package condition

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Predicate is a caller-supplied boolean function over the input.
type Predicate func(ctx context.Context, input interface{}) (bool, error)

// evalFunc is the resolved evaluation function for one condition variant.
// The variant is dispatched once at construction, not on every call.
type evalFunc func(ctx context.Context, input interface{}) (bool, error)

// Condition is an immutable, side-effect-free test over an input value.
type Condition struct {
	eval evalFunc
	desc string
}

// Evaluate reports whether the condition matches the input. Internal
// evaluation errors (bad paths, type mismatches, marshaling failures)
// are treated as non-match.
func (c Condition) Evaluate(ctx context.Context, input interface{}) bool {
	if c.eval == nil {
		return false
	}

	matched, err := safeEval(c.eval, ctx, input)
	if err != nil {
		return false
	}
	return matched
}

// String returns a human-readable description of the condition.
func (c Condition) String() string {
	return c.desc
}

// safeEval runs an evaluation function, converting panics into errors so a
// misbehaving predicate cannot take down the router.
func safeEval(eval evalFunc, ctx context.Context, input interface{}) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			err = fmt.Errorf("condition evaluation panicked: %v", r)
		}
	}()
	return eval(ctx, input)
}

// Func creates a condition from a predicate function.
func Func(fn Predicate) Condition {
	if fn == nil {
		return Condition{desc: "func(nil)"}
	}
	return Condition{
		eval: evalFunc(fn),
		desc: "func",
	}
}

// Expr creates a condition from a path expression.
// "a.b" tests the truthiness of the nested field at that path;
// "a.b=value" tests string equality between the resolved field and the
// literal after the first "=".
func Expr(expr string) Condition {
	if idx := strings.Index(expr, "="); idx >= 0 {
		path := expr[:idx]
		expected := expr[idx+1:]
		return Condition{
			eval: func(_ context.Context, input interface{}) (bool, error) {
				value, found := resolvePath(input, path)
				if !found {
					return false, nil
				}
				return toString(value) == expected, nil
			},
			desc: fmt.Sprintf("expr(%s)", expr),
		}
	}

	path := expr
	return Condition{
		eval: func(_ context.Context, input interface{}) (bool, error) {
			value, found := resolvePath(input, path)
			if !found {
				return false, nil
			}
			return !isEmptyValue(value), nil
		},
		desc: fmt.Sprintf("expr(%s)", expr),
	}
}

// Pattern creates a condition that matches a regular expression against the
// stringified input. An invalid pattern never matches.
func Pattern(pattern string) Condition {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Condition{desc: fmt.Sprintf("pattern(invalid %q)", pattern)}
	}
	return Condition{
		eval: func(_ context.Context, input interface{}) (bool, error) {
			return re.MatchString(toString(input)), nil
		},
		desc: fmt.Sprintf("pattern(%s)", pattern),
	}
}

// And combines conditions so all must match. Evaluation short-circuits at
// the first non-match.
func And(conditions ...Condition) Condition {
	return Condition{
		eval: func(ctx context.Context, input interface{}) (bool, error) {
			for _, c := range conditions {
				if !c.Evaluate(ctx, input) {
					return false, nil
				}
			}
			return true, nil
		},
		desc: combineDesc("and", conditions),
	}
}

// Or combines conditions so at least one must match. Evaluation
// short-circuits at the first match.
func Or(conditions ...Condition) Condition {
	return Condition{
		eval: func(ctx context.Context, input interface{}) (bool, error) {
			for _, c := range conditions {
				if c.Evaluate(ctx, input) {
					return true, nil
				}
			}
			return false, nil
		},
		desc: combineDesc("or", conditions),
	}
}

// Not inverts a condition.
func Not(inner Condition) Condition {
	return Condition{
		eval: func(ctx context.Context, input interface{}) (bool, error) {
			return !inner.Evaluate(ctx, input), nil
		},
		desc: fmt.Sprintf("not(%s)", inner.desc),
	}
}

// Equals matches when the field at path equals the expected value.
// Numeric values compare numerically, everything else as strings.
func Equals(path string, expected interface{}) Condition {
	return Condition{
		eval: func(_ context.Context, input interface{}) (bool, error) {
			value, found := resolvePath(input, path)
			if !found {
				return false, nil
			}
			return valuesEqual(value, expected), nil
		},
		desc: fmt.Sprintf("equals(%s, %v)", path, expected),
	}
}

// Contains matches when the field at path contains the expected value: a
// substring for strings, an element for collections.
func Contains(path string, expected interface{}) Condition {
	return Condition{
		eval: func(_ context.Context, input interface{}) (bool, error) {
			value, found := resolvePath(input, path)
			if !found {
				return false, nil
			}

			if items, err := toSlice(value); err == nil {
				for _, item := range items {
					if valuesEqual(item, expected) {
						return true, nil
					}
				}
				return false, nil
			}

			return strings.Contains(toString(value), toString(expected)), nil
		},
		desc: fmt.Sprintf("contains(%s, %v)", path, expected),
	}
}

// InRange matches when the numeric field at path satisfies min <= value <= max.
func InRange(path string, min, max float64) Condition {
	return Condition{
		eval: func(_ context.Context, input interface{}) (bool, error) {
			value, found := resolvePath(input, path)
			if !found {
				return false, nil
			}
			n, err := toFloat64(value)
			if err != nil {
				return false, err
			}
			return n >= min && n <= max, nil
		},
		desc: fmt.Sprintf("inRange(%s, %g, %g)", path, min, max),
	}
}

func combineDesc(op string, conditions []Condition) string {
	parts := make([]string, len(conditions))
	for i, c := range conditions {
		parts[i] = c.desc
	}
	return fmt.Sprintf("%s(%s)", op, strings.Join(parts, ", "))
}
