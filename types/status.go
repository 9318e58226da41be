package types

// TestStatus represents the terminal state of a test, case or whole run.
type TestStatus string

const (
	TestStatusPass    TestStatus = "pass"
	TestStatusFail    TestStatus = "fail"
	TestStatusSkip    TestStatus = "skip"
	TestStatusTimeout TestStatus = "timeout"
)

// IsFailure reports whether the status counts against the run outcome.
func (s TestStatus) IsFailure() bool {
	return s == TestStatusFail || s == TestStatusTimeout
}

// CombineStatus folds a child status into an aggregate one: any failure
// wins, a pass outranks skips, and an all-skip set stays skipped.
func CombineStatus(aggregate, child TestStatus) TestStatus {
	switch {
	case aggregate.IsFailure() || child.IsFailure():
		if aggregate == TestStatusTimeout || child == TestStatusTimeout {
			return TestStatusTimeout
		}
		return TestStatusFail
	case aggregate == TestStatusPass || child == TestStatusPass:
		return TestStatusPass
	default:
		return TestStatusSkip
	}
}
