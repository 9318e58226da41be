// Package traits implements the declarative modifiers attachable to test
// nodes: gating conditions, tags, time limits, serialization and custom
// execution wrapping. Traits are constructed at declaration time and
// resolved per node by merging ancestor and node-level traits.
package traits

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrGatePanic wraps a panic recovered from a gating predicate so callers
// can classify it separately from an ordinary gate error.
var ErrGatePanic = errors.New("gate panicked")

// Tag is an opaque comparable label attached to a node through a trait.
type Tag string

// Verdict is the outcome of a gating predicate.
type Verdict struct {
	Enabled bool
	// Reason justifies a disabled verdict and becomes the skip reason.
	Reason string
}

// Enabled is the affirmative gate verdict.
func Enabled() Verdict { return Verdict{Enabled: true} }

// Disabled is a negative gate verdict with a justification.
func Disabled(reason string) Verdict { return Verdict{Enabled: false, Reason: reason} }

// GateContext describes the node a gate is being evaluated for.
type GateContext struct {
	Test string
}

// GateFunc is a gating predicate, evaluated once per node at plan time.
// It may block; the context is the plan builder's. A returned error is
// recorded as a framework issue on the node's step, never a crash.
type GateFunc func(ctx context.Context, gc GateContext) (Verdict, error)

// WrapFunc wraps the rest of a test case's execution. Implementations run
// setup before invoking next and teardown after it returns, and must
// propagate next's error.
type WrapFunc func(ctx context.Context, next func(context.Context) error) error

// Trait is a value with optional capabilities. Nil/zero fields contribute
// nothing: in particular a trait without Wrap adds no nesting frame around
// the test body, so call depth grows only with traits that actually
// customize execution.
type Trait struct {
	Gate       GateFunc
	Tags       []Tag
	TimeLimit  *time.Duration
	Wrap       WrapFunc
	Serialized bool
	Comments   []string
}

// DisabledTrait unconditionally disables the node it is attached to.
func DisabledTrait(reason string) Trait {
	return Trait{Gate: func(context.Context, GateContext) (Verdict, error) {
		return Disabled(reason), nil
	}}
}

// EnabledIf gates the node on a predicate evaluated at plan time.
func EnabledIf(cond func(ctx context.Context) (bool, error), reason string) Trait {
	return Trait{Gate: func(ctx context.Context, _ GateContext) (Verdict, error) {
		ok, err := cond(ctx)
		if err != nil {
			return Verdict{}, err
		}
		if !ok {
			return Disabled(reason), nil
		}
		return Enabled(), nil
	}}
}

// WithTags attaches tags to a node.
func WithTags(tags ...Tag) Trait {
	return Trait{Tags: tags}
}

// WithTimeLimit bounds the node's test bodies to d.
func WithTimeLimit(d time.Duration) Trait {
	return Trait{TimeLimit: &d}
}

// Serialized makes the node ineligible for concurrent execution with its
// siblings, and its cases ineligible for concurrent execution with each
// other. The trait is inherited by descendants through resolution.
func Serialized() Trait {
	return Trait{Serialized: true}
}

// WithWrapper attaches a custom execution wrapper to a node.
func WithWrapper(wrap WrapFunc) Trait {
	return Trait{Wrap: wrap}
}

// Comment attaches free-text annotations to a node.
func Comment(comments ...string) Trait {
	return Trait{Comments: comments}
}

// Resolve merges the trait chains of a node's ancestors (outermost first)
// with the node's own traits appended last, so ancestor gates and limits
// are considered before descendant ones.
func Resolve(nodeTraits []Trait, ancestorChains ...[]Trait) []Trait {
	n := len(nodeTraits)
	for _, chain := range ancestorChains {
		n += len(chain)
	}
	merged := make([]Trait, 0, n)
	for _, chain := range ancestorChains {
		merged = append(merged, chain...)
	}
	return append(merged, nodeTraits...)
}

// EvaluateGates runs the gating predicates of a trait chain in order,
// short-circuiting at the first disabled verdict: once an ancestor
// disables a node, the remaining gates are not evaluated. A panicking
// gate is reported as an error rather than unwinding the plan builder.
func EvaluateGates(ctx context.Context, chain []Trait, gc GateContext) (verdict Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: gate for %q: %v", ErrGatePanic, gc.Test, r)
		}
	}()

	for _, t := range chain {
		if t.Gate == nil {
			continue
		}
		v, gerr := t.Gate(ctx, gc)
		if gerr != nil {
			return Verdict{}, fmt.Errorf("gate for %q: %w", gc.Test, gerr)
		}
		if !v.Enabled {
			return v, nil
		}
	}
	return Enabled(), nil
}

// EffectiveTimeLimit returns the most restrictive time limit in the chain,
// considering an optional configuration-wide ceiling. It returns nil when
// nothing in the chain bounds execution.
func EffectiveTimeLimit(chain []Trait, ceiling *time.Duration) *time.Duration {
	limit := ceiling
	for _, t := range chain {
		if t.TimeLimit == nil {
			continue
		}
		if limit == nil || *t.TimeLimit < *limit {
			d := *t.TimeLimit
			limit = &d
		}
	}
	return limit
}

// CombinedTags returns the union of all tags in the chain, preserving
// first-seen order.
func CombinedTags(chain []Trait) []Tag {
	var tags []Tag
	seen := make(map[Tag]bool)
	for _, t := range chain {
		for _, tag := range t.Tags {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

// IsSerialized reports whether any trait in the chain forbids concurrent
// execution. Serialization is inherited: a serialized ancestor makes every
// descendant ineligible.
func IsSerialized(chain []Trait) bool {
	for _, t := range chain {
		if t.Serialized {
			return true
		}
	}
	return false
}

// WrapAll nests the chain's execution wrappers around body in
// ancestor-to-descendant order: the first wrapper's setup runs first and
// its teardown last. Traits without a wrapper contribute no frame.
func WrapAll(chain []Trait, body func(context.Context) error) func(context.Context) error {
	wrapped := body
	for i := len(chain) - 1; i >= 0; i-- {
		wrap := chain[i].Wrap
		if wrap == nil {
			continue
		}
		next := wrapped
		wrapped = func(ctx context.Context) error {
			return wrap(ctx, next)
		}
	}
	return wrapped
}
