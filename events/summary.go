package events

import (
	"sync"
	"time"

	"github.com/planrun/planrun/types"
)

// Summary aggregates a run's outcome purely from its event stream, so
// consumers never need a side channel to know how a run went. It is safe
// to feed from concurrent posting goroutines.
type Summary struct {
	mu sync.Mutex

	total    int
	passed   int
	failed   int
	skipped  int
	timedOut int

	issues      int
	knownIssues int

	started Instant
	ended   Instant
}

// NewSummary returns an empty summary ready to observe events.
func NewSummary() *Summary {
	return &Summary{}
}

// Observe folds one event into the aggregate. Plug it into a handler chain
// alongside the sinks.
func (s *Summary) Observe(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e.Kind {
	case EventRunStarted:
		s.started = e.Instant
	case EventRunEnded:
		s.ended = e.Instant
	case EventTestSkipped:
		s.total++
		s.skipped++
	case EventTestEnded:
		s.total++
		switch e.Status {
		case types.TestStatusPass:
			s.passed++
		case types.TestStatusTimeout:
			s.timedOut++
			s.failed++
		case types.TestStatusSkip:
			s.skipped++
		default:
			s.failed++
		}
	case EventIssueRecorded:
		s.issues++
		if e.Issue != nil && e.Issue.IsKnown() {
			s.knownIssues++
		}
	}
}

// Counts returns the per-status totals observed so far.
func (s *Summary) Counts() (total, passed, failed, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total, s.passed, s.failed, s.skipped
}

// TimedOut returns how many tests ended by exceeding their time limit.
func (s *Summary) TimedOut() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timedOut
}

// Issues returns the recorded issue totals, split by known reclassification.
func (s *Summary) Issues() (total, known int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issues, s.knownIssues
}

// Duration returns the monotonic span between run start and end, or zero
// while the run is still in flight.
func (s *Summary) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started.IsZero() || s.ended.IsZero() {
		return 0
	}
	return s.ended.Since(s.started)
}

// Status derives the run's overall terminal status.
func (s *Summary) Status() types.TestStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.failed > 0 || s.issues > s.knownIssues:
		return types.TestStatusFail
	case s.passed > 0:
		return types.TestStatusPass
	default:
		return types.TestStatusSkip
	}
}
