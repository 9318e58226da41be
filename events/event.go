// Package events defines the vocabulary of observable occurrences during a
// test run (the event and issue model), the configuration consumed by the
// planner and scheduler, and the pipeline that delivers events to handlers
// with at-most-once, never-lost semantics.
package events

import (
	"github.com/planrun/planrun/types"
)

// EventKind identifies what an event reports.
type EventKind string

const (
	EventRunStarted         EventKind = "run_started"
	EventPlanStepStarted    EventKind = "plan_step_started"
	EventTestStarted        EventKind = "test_started"
	EventTestCaseStarted    EventKind = "test_case_started"
	EventExpectationChecked EventKind = "expectation_checked"
	EventIssueRecorded      EventKind = "issue_recorded"
	EventValueAttached      EventKind = "value_attached"
	EventTestCaseEnded      EventKind = "test_case_ended"
	EventTestSkipped        EventKind = "test_skipped"
	EventTestEnded          EventKind = "test_ended"
	EventPlanStepEnded      EventKind = "plan_step_ended"
	EventRunEnded           EventKind = "run_ended"
)

// Attachment wraps an opaque byte-producing value captured during a run.
// Encoding is the producer's concern; the core only moves bytes.
type Attachment struct {
	Name string
	// Produce yields the attachment body. Sinks call it at most once.
	Produce func() ([]byte, error)
	Source  *SourceContext
}

// Event is an immutable record of one occurrence. Events are created at
// the moment of occurrence, posted immediately, and not retained by the
// core after delivery; sinks may keep copies.
type Event struct {
	Kind EventKind

	// Test identifies the node the event concerns, when any.
	Test types.TestID
	// Case identifies the concrete invocation, for case-scoped events.
	Case *types.Case

	// Status carries the terminal state on test_ended, test_case_ended
	// and run_ended events.
	Status types.TestStatus
	// SkipReason is set on test_skipped events.
	SkipReason string

	Issue       *Issue
	Expectation *Expectation
	Attachment  *Attachment

	Instant Instant
}
