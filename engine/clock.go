package engine

import "time"

// Clock returns the current time in seconds. Every scheduler in the engine
// reads the same monotonic clock so their events stay phase-locked; tests
// inject a fake one and advance it by hand.
type Clock func() float64

// SystemClock returns a Clock backed by the process monotonic clock.
func SystemClock() Clock {
	start := time.Now()
	return func() float64 {
		return time.Since(start).Seconds()
	}
}

// Scheduling constants shared by every component.
const (
	// Lookahead is how far into the future each tick schedules events.
	// The poll cadence (TickInterval) is well inside this window, so no
	// event is missed even under scheduling jitter.
	Lookahead = 0.1

	// MaxLateness is the oldest an event may be and still fire. Anything
	// later is dropped rather than released in a burst after a stall.
	MaxLateness = 0.2

	// TickInterval is the nominal poll cadence of the engine loop.
	TickInterval = 25 * time.Millisecond

	// MinEventDuration filters out zero-length artifacts from rapid
	// on/off pairs during recording.
	MinEventDuration = 0.05
)
