package events

import (
	"strings"
	"time"

	"github.com/planrun/planrun/traits"
	"github.com/planrun/planrun/types"
)

// Handler receives every event posted during a run. It is invoked
// synchronously from whichever goroutine posts the event, so it must be
// safe for concurrent callers; the core treats it as append-only and never
// reads anything back. Queuing, if desired, is the handler's concern.
type Handler func(Event)

// Filter selects which discovered nodes a plan includes. The zero value
// matches everything.
type Filter struct {
	// Names are matched against node identities: a pattern hits when it
	// equals the full identity, equals one of its path elements, or is a
	// substring of the identity.
	Names []string
	// IncludeTags, when non-empty, require at least one of the listed
	// tags in the node's resolved trait chain.
	IncludeTags []traits.Tag
	// ExcludeTags drop any node whose resolved chain carries one of the
	// listed tags, regardless of other matches.
	ExcludeTags []traits.Tag
}

// IsZero reports whether the filter matches all nodes.
func (f Filter) IsZero() bool {
	return len(f.Names) == 0 && len(f.IncludeTags) == 0 && len(f.ExcludeTags) == 0
}

// MatchName reports whether the identity satisfies the name patterns.
// An empty pattern list matches every name.
func (f Filter) MatchName(id types.TestID) bool {
	if len(f.Names) == 0 {
		return true
	}
	elements := id.Elements()
	for _, pattern := range f.Names {
		if pattern == string(id) || strings.Contains(string(id), pattern) {
			return true
		}
		for _, e := range elements {
			if pattern == e {
				return true
			}
		}
	}
	return false
}

// MatchTags reports whether a resolved tag set satisfies the include and
// exclude tag constraints.
func (f Filter) MatchTags(tags []traits.Tag) bool {
	for _, excluded := range f.ExcludeTags {
		for _, t := range tags {
			if t == excluded {
				return false
			}
		}
	}
	if len(f.IncludeTags) == 0 {
		return true
	}
	for _, included := range f.IncludeTags {
		for _, t := range tags {
			if t == included {
				return true
			}
		}
	}
	return false
}

// Configuration is the external knob set the core reads and never mutates
// after run start.
type Configuration struct {
	// Filter selects the nodes included in the plan.
	Filter Filter

	// Parallel enables concurrent execution of eligible siblings and
	// parameterized cases. Default is concurrent; setting it false
	// forces serial execution globally.
	Parallel bool

	// MaxWorkers bounds concurrent tasks within one scope when positive.
	// Zero means unbounded.
	MaxWorkers int

	// DeliverExpectationCheckedEvents opts in to per-check events, which
	// are high-frequency and suppressed by default. Failed expectations
	// always produce an issue_recorded event regardless.
	DeliverExpectationCheckedEvents bool

	// TimeLimit is an optional global ceiling participating in effective
	// time limit resolution for every node.
	TimeLimit *time.Duration

	// Handler receives every event of the run.
	Handler Handler
}

// NewConfiguration returns a Configuration with the defaults the runner
// expects: parallel execution enabled and per-check events suppressed.
func NewConfiguration(handler Handler) *Configuration {
	return &Configuration{
		Parallel: true,
		Handler:  handler,
	}
}
