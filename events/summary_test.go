package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/planrun/planrun/types"
)

func TestSummaryCounts(t *testing.T) {
	s := NewSummary()
	s.Observe(Event{Kind: EventRunStarted, Instant: Now()})
	s.Observe(Event{Kind: EventTestEnded, Status: types.TestStatusPass})
	s.Observe(Event{Kind: EventTestEnded, Status: types.TestStatusFail})
	s.Observe(Event{Kind: EventTestEnded, Status: types.TestStatusTimeout})
	s.Observe(Event{Kind: EventTestSkipped})
	s.Observe(Event{Kind: EventRunEnded, Instant: Now()})

	total, passed, failed, skipped := s.Counts()
	assert.Equal(t, 4, total)
	assert.Equal(t, 1, passed)
	assert.Equal(t, 2, failed, "a timeout counts as a failure")
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 1, s.TimedOut())
	assert.Equal(t, types.TestStatusFail, s.Status())
}

func TestSummaryStatusDerivation(t *testing.T) {
	t.Run("all passed", func(t *testing.T) {
		s := NewSummary()
		s.Observe(Event{Kind: EventTestEnded, Status: types.TestStatusPass})
		assert.Equal(t, types.TestStatusPass, s.Status())
	})

	t.Run("nothing ran", func(t *testing.T) {
		s := NewSummary()
		s.Observe(Event{Kind: EventTestSkipped})
		assert.Equal(t, types.TestStatusSkip, s.Status())
	})

	t.Run("unknown issue fails the run", func(t *testing.T) {
		s := NewSummary()
		s.Observe(Event{Kind: EventTestEnded, Status: types.TestStatusPass})
		s.Observe(Event{Kind: EventIssueRecorded, Issue: NewIssue("stray")})
		assert.Equal(t, types.TestStatusFail, s.Status())
	})

	t.Run("known issues do not fail the run", func(t *testing.T) {
		s := NewSummary()
		s.Observe(Event{Kind: EventTestEnded, Status: types.TestStatusPass})
		known := NewIssue("expected")
		known.MarkKnown()
		s.Observe(Event{Kind: EventIssueRecorded, Issue: known})

		issues, knownCount := s.Issues()
		assert.Equal(t, 1, issues)
		assert.Equal(t, 1, knownCount)
		assert.Equal(t, types.TestStatusPass, s.Status())
	})
}

func TestSummaryDuration(t *testing.T) {
	s := NewSummary()
	assert.Zero(t, s.Duration())

	start := Now()
	s.Observe(Event{Kind: EventRunStarted, Instant: start})
	assert.Zero(t, s.Duration(), "duration is zero while the run is in flight")

	end := Instant{Wall: start.Wall.Add(time.Second), Offset: start.Offset + time.Second}
	s.Observe(Event{Kind: EventRunEnded, Instant: end})
	assert.Equal(t, time.Second, s.Duration())
}

func TestInstantOrdering(t *testing.T) {
	a := Now()
	b := Instant{Wall: a.Wall.Add(time.Millisecond), Offset: a.Offset + time.Millisecond}
	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.Equal(t, time.Millisecond, b.Since(a))
}
