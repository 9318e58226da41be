// Package check is the API test bodies call while running: expect/require
// style assertions, confirmations of expected occurrence counts,
// known-issue scopes and value attachments. Everything funnels into the
// event pipeline; nothing here fails a run through a side channel.
package check

import (
	"context"
	"fmt"

	"github.com/planrun/planrun/events"
)

// RecordIssue is the single funnel every detected failure goes through.
// The issue is first tested against the context's known-issue matcher
// chain (innermost scope first); a match marks it known so it is reported
// without failing the test. The wrapping event is posted exactly once.
// It reports whether the issue was reclassified as known.
func RecordIssue(ctx context.Context, issue *events.Issue) bool {
	known := matchKnown(ctx, issue)
	if issue.IsFailure() {
		if t := events.FailureTrackerFromContext(ctx); t != nil {
			t.RecordFailure()
		}
	}
	events.Post(ctx, events.Event{Kind: events.EventIssueRecorded, Issue: issue})
	return known
}

// RecordError records err as an error-caught issue attributed to the
// caller. It reports whether known-issue matching absorbed it.
func RecordError(ctx context.Context, err error) bool {
	issue := events.ErrorCaughtIssue(err)
	issue.Source = events.CaptureSource(1)
	return RecordIssue(ctx, issue)
}

// Record posts an unconditional issue with the given comment.
func Record(ctx context.Context, format string, args ...any) {
	issue := events.NewIssue(fmt.Sprintf(format, args...))
	issue.Source = events.CaptureSource(1)
	RecordIssue(ctx, issue)
}
