package events

import "time"

// processEpoch anchors the monotonic clock for every Instant in this
// process so offsets from different events are directly comparable.
var processEpoch = time.Now()

// Instant is a dual-clock timestamp: the wall clock is for display, the
// monotonic offset from the process epoch is for ordering and duration
// math (wall time can jump, the offset cannot).
type Instant struct {
	Wall   time.Time
	Offset time.Duration
}

// Now captures the current instant on both clocks.
func Now() Instant {
	now := time.Now()
	return Instant{Wall: now, Offset: now.Sub(processEpoch)}
}

// IsZero reports whether the instant has not been stamped.
func (i Instant) IsZero() bool {
	return i.Wall.IsZero()
}

// Since returns the monotonic duration elapsed from earlier to i.
func (i Instant) Since(earlier Instant) time.Duration {
	return i.Offset - earlier.Offset
}

// Before reports monotonic ordering between two instants.
func (i Instant) Before(other Instant) bool {
	return i.Offset < other.Offset
}
