// Package plan turns the discovered test graph and a configuration into an
// immutable, ordered execution plan: one step per included node, each
// carrying a resolved action and the node's merged trait chain.
package plan

import (
	"time"

	"github.com/planrun/planrun/events"
	"github.com/planrun/planrun/traits"
	"github.com/planrun/planrun/types"
)

// ActionKind says what the scheduler should do with a step.
type ActionKind string

const (
	// ActionRun executes the node's cases (or, for suites, its children).
	ActionRun ActionKind = "run"
	// ActionSkip reports the node as skipped with a reason; nothing runs.
	ActionSkip ActionKind = "skip"
	// ActionRecordIssue reports a structural problem with the node, such
	// as a duplicate identity, in place of running it.
	ActionRecordIssue ActionKind = "record_issue"
)

// Action is the resolved decision for one step.
type Action struct {
	Kind ActionKind
	// SkipReason justifies an ActionSkip, possibly inherited from a
	// disabled ancestor.
	SkipReason string
	// Issue carries the structural problem for ActionRecordIssue.
	Issue *events.Issue
}

// RunAction marks a step for execution.
func RunAction() Action { return Action{Kind: ActionRun} }

// SkipAction marks a step skipped with the given reason.
func SkipAction(reason string) Action {
	return Action{Kind: ActionSkip, SkipReason: reason}
}

// RecordIssueAction attaches a structural issue to the step.
func RecordIssueAction(issue *events.Issue) Action {
	return Action{Kind: ActionRecordIssue, Issue: issue}
}

// Step is one node of the plan tree. Steps are built once per run
// invocation, never mutated afterwards, and consumed read-only by the
// scheduler.
type Step struct {
	Node   types.Node
	Action Action

	// Traits is the node's resolved chain: ancestor traits first
	// (outermost first), node-local traits appended.
	Traits []traits.Trait

	// TimeLimit is the effective ceiling for the node's bodies, the
	// minimum over the chain and the configuration's global limit.
	// Nil means unbounded.
	TimeLimit *time.Duration

	// Serialized reports that the node or an ancestor carries a
	// serialization trait, making it ineligible for concurrent
	// execution with siblings.
	Serialized bool

	// Children are the steps of surviving child nodes, in declaration
	// order. The plan tree is pre-ordered: a step always precedes its
	// descendants.
	Children []*Step
}

// Plan is the resolved execution tree for one run invocation.
type Plan struct {
	// Steps holds the top-level steps in declaration order.
	Steps []*Step

	stepCount int
}

// Len returns the total number of steps in the plan.
func (p *Plan) Len() int { return p.stepCount }

// Walk visits every step in pre-order: each step before its descendants,
// siblings in declaration order.
func (p *Plan) Walk(visit func(*Step)) {
	var walk func(steps []*Step)
	walk = func(steps []*Step) {
		for _, s := range steps {
			visit(s)
			walk(s.Children)
		}
	}
	walk(p.Steps)
}
