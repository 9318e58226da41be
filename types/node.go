package types

import (
	"context"
	"fmt"
	"iter"

	"github.com/planrun/planrun/traits"
)

// Kind distinguishes suite nodes (grouping containers) from function nodes
// (leaves, optionally parameterized).
type Kind string

const (
	KindSuite    Kind = "suite"
	KindFunction Kind = "function"
)

// Arguments is one argument set for a parameterized test function.
type Arguments []any

// Describe renders the argument set for display and case identity.
func (a Arguments) Describe() string {
	if len(a) == 0 {
		return ""
	}
	s := ""
	for i, arg := range a {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%v", arg)
	}
	return s
}

// Body is a test function body. The context carries the current
// configuration, test and case identity, plus the cancellation signal for
// time limits; bodies must observe ctx at suspension points since
// cancellation is cooperative. A non-nil return is recorded as an
// error-caught issue unless known-issue matching reclassifies it.
type Body func(ctx context.Context, args Arguments) error

// ParameterSource yields the argument sets of a parameterized function.
// The sequence must be finite and restartable: Cases may be ranged over
// more than once, producing the same sets each time.
type ParameterSource interface {
	Cases() iter.Seq[Arguments]
}

// Counted is optionally implemented by parameter sources that know their
// length without iterating.
type Counted interface {
	Len() int
}

type sliceSource struct {
	sets []Arguments
}

func (s sliceSource) Cases() iter.Seq[Arguments] {
	return func(yield func(Arguments) bool) {
		for _, set := range s.sets {
			if !yield(set) {
				return
			}
		}
	}
}

func (s sliceSource) Len() int { return len(s.sets) }

// Parameters builds a ParameterSource from explicit argument sets.
func Parameters(sets ...Arguments) ParameterSource {
	return sliceSource{sets: sets}
}

// ExitStatus is the observed result of an isolated subprocess test.
type ExitStatus struct {
	Code   int
	Signal int
}

// Success reports whether the process exited cleanly.
func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Signal == 0
}

func (s ExitStatus) String() string {
	if s.Signal != 0 {
		return fmt.Sprintf("signal %d", s.Signal)
	}
	return fmt.Sprintf("exit code %d", s.Code)
}

// ExitCondition marks a function node for isolated subprocess execution
// and states the exit status the test expects to observe.
type ExitCondition struct {
	Expected ExitStatus
}

// Node is one discovered test declaration: a suite or a function. Nodes are
// immutable after discovery; the test graph is reconstructed from Parent
// references at plan-build time and never mutated during a run.
type Node struct {
	ID     TestID
	Kind   Kind
	Parent TestID // empty for top-level nodes

	// Traits attached directly to this node, excluding inherited ones.
	Traits []traits.Trait

	// Body and Params apply to function nodes only. A function without
	// Params runs as a single implicit case.
	Body   Body
	Params ParameterSource

	// Exit requests isolated subprocess execution for a function node.
	Exit *ExitCondition

	// Order is the source-declaration index, used to keep sibling
	// ordering stable in the plan.
	Order int
}

// IsSuite reports whether the node is a grouping container.
func (n Node) IsSuite() bool { return n.Kind == KindSuite }

// Case is one concrete invocation unit of a function node: one element of
// its parameter sequence, or the single synthesized case for
// non-parameterized functions and suites.
type Case struct {
	Test  TestID
	Index int
	// ArgumentsDescription is a display snapshot of the argument set,
	// empty for the implicit case.
	ArgumentsDescription string
}

func (c Case) String() string {
	if c.ArgumentsDescription == "" {
		return fmt.Sprintf("%s#%d", c.Test, c.Index)
	}
	return fmt.Sprintf("%s#%d(%s)", c.Test, c.Index, c.ArgumentsDescription)
}
