package check

import (
	"context"
	"errors"

	"github.com/planrun/planrun/events"
)

// ErrRequirementFailed aborts the current case when a required expectation
// fails. The scheduler recognizes it and does not record a second issue on
// top of the expectation failure.
var ErrRequirementFailed = errors.New("requirement failed")

// Option annotates an expectation check.
type Option func(*checkOptions)

type checkOptions struct {
	expression string
	mismatch   string
	comments   []string
}

// WithExpression attaches the source text of the checked condition.
func WithExpression(expr string) Option {
	return func(o *checkOptions) { o.expression = expr }
}

// WithMismatch describes how the actual value diverged from the expected
// one.
func WithMismatch(description string) Option {
	return func(o *checkOptions) { o.mismatch = description }
}

// WithComment adds a free-text annotation to a failing check's issue.
func WithComment(comment string) Option {
	return func(o *checkOptions) { o.comments = append(o.comments, comment) }
}

func applyOptions(opts []Option) checkOptions {
	var o checkOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Expect records one assertion-style check. A failing check records an
// expectation-failed issue but lets the case continue; the return value
// mirrors condition so callers can guard follow-up work.
func Expect(ctx context.Context, condition bool, opts ...Option) bool {
	o := applyOptions(opts)
	exp := &events.Expectation{
		Expression: o.expression,
		Passed:     condition,
		Mismatch:   o.mismatch,
	}
	// Per-check events are high-frequency; the pipeline suppresses them
	// unless the configuration opted in.
	events.Post(ctx, events.Event{Kind: events.EventExpectationChecked, Expectation: exp})

	if !condition {
		issue := events.ExpectationFailedIssue(exp)
		issue.Comments = o.comments
		issue.Source = events.CaptureSource(1)
		RecordIssue(ctx, issue)
	}
	return condition
}

// Require records one required check. A failure records the issue and
// returns ErrRequirementFailed, which aborts only the current case, not
// sibling cases and not the enclosing suite.
func Require(ctx context.Context, condition bool, opts ...Option) error {
	o := applyOptions(opts)
	exp := &events.Expectation{
		Expression: o.expression,
		Passed:     condition,
		Required:   true,
		Mismatch:   o.mismatch,
	}
	events.Post(ctx, events.Event{Kind: events.EventExpectationChecked, Expectation: exp})

	if condition {
		return nil
	}
	issue := events.ExpectationFailedIssue(exp)
	issue.Comments = o.comments
	issue.Source = events.CaptureSource(1)
	RecordIssue(ctx, issue)
	return ErrRequirementFailed
}
