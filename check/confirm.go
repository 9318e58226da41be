package check

import (
	"context"
	"sync/atomic"

	"github.com/planrun/planrun/events"
)

// Confirmation counts occurrences of an expected event. Call it from the
// code under test (concurrent callers are fine); when the enclosing
// Confirm scope exits, the actual count is compared against expectation.
type Confirmation func()

// Confirm runs body with a fresh confirmation counter and verifies that it
// was invoked exactly expected times. A mismatch records a
// confirmation-miscounted issue at scope exit.
func Confirm(ctx context.Context, expected int, body func(confirm Confirmation)) {
	actual := runConfirmation(body)
	if actual != expected {
		issue := events.ConfirmationMiscountIssue(actual, expected)
		issue.Source = events.CaptureSource(1)
		RecordIssue(ctx, issue)
	}
}

// ConfirmInRange is Confirm for inclusive count ranges.
func ConfirmInRange(ctx context.Context, min, max int, body func(confirm Confirmation)) {
	bounds := events.ConfirmationBounds{Min: min, Max: max}
	if min > max {
		issue := events.APIMisuseIssue("confirmation range minimum exceeds maximum")
		issue.Source = events.CaptureSource(1)
		RecordIssue(ctx, issue)
		return
	}
	actual := runConfirmation(body)
	if !bounds.Contains(actual) {
		issue := events.ConfirmationOutOfRangeIssue(actual, bounds)
		issue.Source = events.CaptureSource(1)
		RecordIssue(ctx, issue)
	}
}

func runConfirmation(body func(confirm Confirmation)) int {
	var count atomic.Int64
	body(func() { count.Add(1) })
	return int(count.Load())
}
