package events

import (
	"fmt"
	"strings"
	"time"
)

// Expectation captures one expect/require-style check inside a test body.
type Expectation struct {
	// Expression is the source text of the checked condition. It may be
	// empty for tool-originated issues, in which case a synthesized
	// description is used for display.
	Expression string
	Passed     bool
	// Required marks a check that aborts the current case on failure
	// instead of merely recording it.
	Required bool
	// Mismatch optionally describes how the actual value diverged.
	Mismatch string
}

// IssueKind classifies a recorded failure or warning.
type IssueKind string

const (
	IssueUnconditional           IssueKind = "unconditional"
	IssueExpectationFailed       IssueKind = "expectation_failed"
	IssueConfirmationMiscounted  IssueKind = "confirmation_miscounted"
	IssueConfirmationOutOfRange  IssueKind = "confirmation_out_of_range"
	IssueErrorCaught             IssueKind = "error_caught"
	IssueTimeLimitExceeded       IssueKind = "time_limit_exceeded"
	IssueKnownIssueNotRecorded   IssueKind = "known_issue_not_recorded"
	IssueAPIMisused              IssueKind = "api_misused"
	IssueSystem                  IssueKind = "system"
	IssueRecordedByTool          IssueKind = "recorded_by_tool"
)

// ConfirmationBounds is the inclusive expected range of a confirmation.
type ConfirmationBounds struct {
	Min int
	Max int
}

func (b ConfirmationBounds) Contains(n int) bool {
	return n >= b.Min && n <= b.Max
}

func (b ConfirmationBounds) String() string {
	if b.Min == b.Max {
		return fmt.Sprintf("%d", b.Min)
	}
	return fmt.Sprintf("%d...%d", b.Min, b.Max)
}

// Issue describes one failure or warning detected during a run. An issue
// is built when the failure condition is observed, immediately wrapped in
// an issue-recorded event and posted; it is immutable afterwards except
// for the one-time known transition, which must happen strictly before
// posting.
type Issue struct {
	Kind IssueKind

	// Expectation is set for expectation_failed issues.
	Expectation *Expectation
	// Actual and Bounds are set for confirmation issues.
	Actual int
	Bounds *ConfirmationBounds
	// Err is set for error_caught and system issues.
	Err error
	// TimeLimit is set for time_limit_exceeded issues.
	TimeLimit time.Duration
	// ToolMetadata is set for recorded_by_tool issues.
	ToolMetadata map[string]string

	Comments []string
	Source   *SourceContext

	known  bool
	sealed bool
}

// NewIssue builds an unconditional issue with the given comments.
func NewIssue(comments ...string) *Issue {
	return &Issue{Kind: IssueUnconditional, Comments: comments}
}

// ExpectationFailedIssue wraps a failed expectation.
func ExpectationFailedIssue(exp *Expectation) *Issue {
	return &Issue{Kind: IssueExpectationFailed, Expectation: exp}
}

// ConfirmationMiscountIssue reports an exact-count confirmation mismatch.
func ConfirmationMiscountIssue(actual, expected int) *Issue {
	return &Issue{
		Kind:   IssueConfirmationMiscounted,
		Actual: actual,
		Bounds: &ConfirmationBounds{Min: expected, Max: expected},
	}
}

// ConfirmationOutOfRangeIssue reports a ranged confirmation mismatch.
func ConfirmationOutOfRangeIssue(actual int, bounds ConfirmationBounds) *Issue {
	return &Issue{Kind: IssueConfirmationOutOfRange, Actual: actual, Bounds: &bounds}
}

// ErrorCaughtIssue wraps an error returned or panicked by a test body.
func ErrorCaughtIssue(err error) *Issue {
	return &Issue{Kind: IssueErrorCaught, Err: err}
}

// TimeLimitIssue reports that a test body exceeded its effective limit.
func TimeLimitIssue(limit time.Duration) *Issue {
	return &Issue{Kind: IssueTimeLimitExceeded, TimeLimit: limit}
}

// KnownIssueNotRecordedIssue reports that a known-issue scope completed
// without its expected issue ever occurring.
func KnownIssueNotRecordedIssue() *Issue {
	return &Issue{Kind: IssueKnownIssueNotRecorded}
}

// APIMisuseIssue reports incorrect use of the testing API itself.
func APIMisuseIssue(comment string) *Issue {
	return &Issue{Kind: IssueAPIMisused, Comments: []string{comment}}
}

// SystemIssue reports an internal framework failure attributed to a node.
func SystemIssue(err error) *Issue {
	return &Issue{Kind: IssueSystem, Err: err}
}

// ToolIssue reports an issue raised by an external tool with free-form
// metadata.
func ToolIssue(metadata map[string]string, comments ...string) *Issue {
	return &Issue{Kind: IssueRecordedByTool, ToolMetadata: metadata, Comments: comments}
}

// AddComment appends a free-text annotation. Valid only before posting.
func (i *Issue) AddComment(comment string) {
	if i.sealed {
		return
	}
	i.Comments = append(i.Comments, comment)
}

// MarkKnown flags the issue as intentionally expected. It may be called at
// most once, and only before the issue is posted; later calls report false
// and change nothing.
func (i *Issue) MarkKnown() bool {
	if i.known || i.sealed {
		return false
	}
	i.known = true
	return true
}

// IsKnown reports whether known-issue matching reclassified the issue.
func (i *Issue) IsKnown() bool { return i.known }

// seal freezes the issue; called by the pipeline when posting.
func (i *Issue) seal() { i.sealed = true }

// IsFailure reports whether the issue counts against the test outcome.
// Known issues are reported but do not fail the test.
func (i *Issue) IsFailure() bool { return !i.known }

func (i *Issue) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", i.Kind)
	switch i.Kind {
	case IssueExpectationFailed:
		if i.Expectation != nil {
			fmt.Fprintf(&b, " expectation failed: %s", i.Expectation.Expression)
			if i.Expectation.Mismatch != "" {
				fmt.Fprintf(&b, " (%s)", i.Expectation.Mismatch)
			}
		}
	case IssueConfirmationMiscounted, IssueConfirmationOutOfRange:
		fmt.Fprintf(&b, " confirmed %d time(s), expected %s", i.Actual, i.Bounds)
	case IssueErrorCaught, IssueSystem:
		fmt.Fprintf(&b, " %v", i.Err)
	case IssueTimeLimitExceeded:
		fmt.Fprintf(&b, " time limit of %s exceeded", i.TimeLimit)
	}
	for _, c := range i.Comments {
		fmt.Fprintf(&b, "; %s", c)
	}
	if i.known {
		b.WriteString(" (known)")
	}
	return b.String()
}
