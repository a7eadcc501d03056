package engine

import "go-loopstation/debug"

// BeatInfo is emitted once per quarter-note pulse. Beat 1 marks a downbeat.
type BeatInfo struct {
	Beat int // 1..4
	Time float64
}

// BeatClock turns the free-running clock into a steady quarter-note pulse
// using lookahead scheduling. It also runs a sixteenth-note grid (16 ticks
// per measure) for components that want a finer subdivision.
type BeatClock struct {
	now Clock
	bpm float64

	running      bool
	beat         int // last emitted beat 1..4
	nextBeatTime float64

	grid         int // sixteenth index 0..15
	nextGridTime float64

	// OnBeat fires once per quarter note with lookahead, so BeatInfo.Time
	// may be up to Lookahead seconds in the future.
	OnBeat func(BeatInfo)

	// OnSixteenth fires 16 times per measure. gridIndex 0 coincides with
	// the downbeat.
	OnSixteenth func(gridIndex int, t float64)
}

// NewBeatClock creates a stopped clock at the given tempo.
func NewBeatClock(now Clock, bpm float64) *BeatClock {
	return &BeatClock{now: now, bpm: bpm}
}

// Start arms the clock. The first beat is emitted on the next Tick, at the
// moment Start was called.
func (c *BeatClock) Start(bpm float64) {
	if bpm > 0 {
		c.bpm = bpm
	}
	t := c.now()
	c.running = true
	c.beat = 0
	c.nextBeatTime = t
	c.grid = 0
	c.nextGridTime = t
	debug.Log("clock", "start bpm=%.1f t=%.3f", c.bpm, t)
}

// Stop halts the pulse. Beat position and pending times are left alone so
// state is only reset by the next Start.
func (c *BeatClock) Stop() {
	c.running = false
	debug.Log("clock", "stop")
}

// Running reports whether the clock is emitting beats.
func (c *BeatClock) Running() bool { return c.running }

// BPM returns the current tempo.
func (c *BeatClock) BPM() float64 { return c.bpm }

// SecondsPerBeat returns the quarter-note duration at the current tempo.
func (c *BeatClock) SecondsPerBeat() float64 { return 60 / c.bpm }

// SetBPM changes the tempo. Beats already scheduled keep their times; only
// beats scheduled after the change pick up the new interval. The sixteenth
// grid re-phases onto the pending beat so index 0 stays on the downbeat;
// grid ticks left in the current beat are skipped rather than squeezed.
func (c *BeatClock) SetBPM(bpm float64) {
	if bpm <= 0 {
		return
	}
	c.bpm = bpm
	if c.running {
		c.grid = (c.beat % 4) * 4
		c.nextGridTime = c.nextBeatTime
	}
}

// Beat returns the last emitted beat number (1..4, 0 before the first).
func (c *BeatClock) Beat() int { return c.beat }

// Tick schedules every beat and grid pulse that falls inside the lookahead
// window. Call it at least once per Lookahead interval.
func (c *BeatClock) Tick(now float64) {
	if !c.running {
		return
	}
	spb := c.SecondsPerBeat()

	for c.nextBeatTime < now+Lookahead {
		c.beat = c.beat%4 + 1
		if c.OnBeat != nil {
			c.OnBeat(BeatInfo{Beat: c.beat, Time: c.nextBeatTime})
		}
		c.nextBeatTime += spb
	}

	for c.nextGridTime < now+Lookahead {
		if c.OnSixteenth != nil {
			c.OnSixteenth(c.grid, c.nextGridTime)
		}
		c.grid = (c.grid + 1) % 16
		c.nextGridTime += spb / 4
	}
}
