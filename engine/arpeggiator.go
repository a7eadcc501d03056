package engine

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/bep/debounce"

	"go-loopstation/debug"
	"go-loopstation/notes"
)

// ArpDirection orders the derived pattern.
type ArpDirection int

const (
	DirUp ArpDirection = iota
	DirDown
	DirUpDown
	DirRandom
	DirPlayed
)

func (d ArpDirection) String() string {
	switch d {
	case DirUp:
		return "up"
	case DirDown:
		return "down"
	case DirUpDown:
		return "up-down"
	case DirRandom:
		return "random"
	case DirPlayed:
		return "played"
	}
	return "unknown"
}

// ArpRate is the step subdivision relative to a quarter note.
type ArpRate int

const (
	RateQuarter ArpRate = iota
	RateEighth
	RateSixteenth
	RateThirtySecond
)

// Factor is the step length as a fraction of one beat.
func (r ArpRate) Factor() float64 {
	switch r {
	case RateEighth:
		return 0.5
	case RateSixteenth:
		return 0.25
	case RateThirtySecond:
		return 0.125
	}
	return 1
}

func (r ArpRate) String() string {
	switch r {
	case RateEighth:
		return "1/8"
	case RateSixteenth:
		return "1/16"
	case RateThirtySecond:
		return "1/32"
	}
	return "1/4"
}

// ArpSettings is mutated by the host and read by the scheduler.
type ArpSettings struct {
	On        bool
	Latch     bool
	Sync      bool // step on the BeatClock sixteenth grid instead of free-running
	Direction ArpDirection
	Range     int // octaves, 1..3
	Rate      ArpRate
	Gate      float64 // 0..1 fraction of the step the note sounds
}

// DefaultArpSettings are the out-of-the-box arpeggiator settings.
func DefaultArpSettings() ArpSettings {
	return ArpSettings{Direction: DirUp, Range: 1, Rate: RateEighth, Gate: 0.8}
}

// latchDebounce is how long a drop in held-note count may settle before the
// arpeggiator adopts it, so a sloppy simultaneous release doesn't truncate
// a sustained chord.
const latchDebounce = 150 * time.Millisecond

// Arpeggiator derives an ordered pattern from the currently held notes and
// replays it one note per step, free-running or locked to the BeatClock's
// sixteenth grid. The mutex only exists because the latch debounce timer
// fires on its own goroutine; everything else runs on the engine tick.
type Arpeggiator struct {
	now   Clock
	sound SoundEngine

	// SecondsPerBeat supplies the tempo for step durations.
	SecondsPerBeat func() float64

	mu       sync.Mutex
	settings ArpSettings
	held     []string // insertion order, for DirPlayed
	source   []string // pattern source; outlives held when latched
	pattern  []string // committed order, swapped by assignment

	stepIndex    int
	nextStepTime float64
	octaveOffset int // semitone/12 shift applied at emission time

	debounced func(func())
	rng       *rand.Rand
}

// NewArpeggiator creates an arpeggiator with default settings.
func NewArpeggiator(now Clock, sound SoundEngine) *Arpeggiator {
	return &Arpeggiator{
		now:       now,
		sound:     sound,
		settings:  DefaultArpSettings(),
		debounced: debounce.New(latchDebounce),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Settings returns a copy of the current settings.
func (a *Arpeggiator) Settings() ArpSettings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// SetSettings replaces the settings and rebuilds the pattern, since range
// and direction change the derived order.
func (a *Arpeggiator) SetSettings(s ArpSettings) {
	if s.Range < 1 {
		s.Range = 1
	}
	if s.Range > 3 {
		s.Range = 3
	}
	if s.Gate < 0 {
		s.Gate = 0
	}
	if s.Gate > 1 {
		s.Gate = 1
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings = s
	a.pattern = buildPattern(a.source, s)
}

// SetOctaveOffset shifts emitted notes by whole octaves. Applied at
// emission time, so a change is heard on the very next step.
func (a *Arpeggiator) SetOctaveOffset(octaves int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.octaveOffset = octaves
}

// Pattern returns the committed pattern order.
func (a *Arpeggiator) Pattern() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pattern
}

// NoteOn adds a held note. An increase always cancels any pending latch
// adoption and takes effect immediately.
func (a *Arpeggiator) NoteOn(note string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, n := range a.held {
		if n == note {
			return
		}
	}
	a.held = append(a.held, note)
	// Overwrite any pending release adoption with a no-op.
	a.debounced(func() {})
	a.adoptHeldLocked()
}

// NoteOff removes a held note. With latch on, the shrunken set is adopted
// only after the debounce window settles; a fully released set keeps the
// previous pattern until new notes arrive.
func (a *Arpeggiator) NoteOff(note string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	kept := a.held[:0:0]
	found := false
	for _, n := range a.held {
		if n == note {
			found = true
			continue
		}
		kept = append(kept, n)
	}
	if !found {
		return
	}
	a.held = kept
	if !a.settings.Latch {
		a.adoptHeldLocked()
		return
	}
	a.debounced(func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if len(a.held) > 0 {
			a.adoptHeldLocked()
		}
		// All keys up: keep the pre-release pattern indefinitely.
	})
}

// adoptHeldLocked commits the held set as the new pattern source.
func (a *Arpeggiator) adoptHeldLocked() {
	a.source = append([]string(nil), a.held...)
	a.pattern = buildPattern(a.source, a.settings)
	debug.Log("arp", "pattern rebuilt: %d notes", len(a.pattern))
}

// buildPattern derives the step order: pitch-sort (unless random/played),
// duplicate across the octave range, then order per direction.
func buildPattern(source []string, s ArpSettings) []string {
	if len(source) == 0 {
		return nil
	}
	base := append([]string(nil), source...)
	if s.Direction != DirRandom && s.Direction != DirPlayed {
		sort.SliceStable(base, func(i, j int) bool {
			pi, _ := notes.Pitch(base[i])
			pj, _ := notes.Pitch(base[j])
			return pi < pj
		})
	}
	var spread []string
	for oct := 0; oct < s.Range; oct++ {
		for _, n := range base {
			spread = append(spread, notes.Transpose(n, 12*oct))
		}
	}
	switch s.Direction {
	case DirDown:
		reversed := make([]string, len(spread))
		for i, n := range spread {
			reversed[len(spread)-1-i] = n
		}
		return reversed
	case DirUpDown:
		out := append([]string(nil), spread...)
		for i := len(spread) - 2; i >= 1; i-- {
			out = append(out, spread[i])
		}
		return out
	default: // up, played, random (random picks an index per step)
		return spread
	}
}

// Tick runs the free-running scheduler: one note per step, each sounding
// for gate × step duration. Inactive when external sync drives the steps.
func (a *Arpeggiator) Tick(now float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.settings
	if !s.On || s.Sync || len(a.pattern) == 0 || a.SecondsPerBeat == nil {
		a.nextStepTime = 0
		return
	}
	step := a.SecondsPerBeat() * s.Rate.Factor()
	if a.nextStepTime == 0 || a.nextStepTime < now-MaxLateness {
		// First step, or a stall: restart at now instead of bursting.
		a.nextStepTime = now
	}
	for a.nextStepTime < now+Lookahead {
		a.emitLocked(a.nextStepTime, step)
		a.stepIndex++
		a.nextStepTime += step
	}
}

// HandleGridTick steps the pattern from the BeatClock's sixteenth grid when
// external sync is on. Rates coarser than a sixteenth skip grid ticks; 1/32
// fires twice per tick, on-grid and at the tick's midpoint.
func (a *Arpeggiator) HandleGridTick(gridIndex int, t float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.settings
	if !s.On || !s.Sync || len(a.pattern) == 0 || a.SecondsPerBeat == nil {
		return
	}
	sixteenth := a.SecondsPerBeat() / 4
	switch s.Rate {
	case RateQuarter:
		if gridIndex%4 != 0 {
			return
		}
	case RateEighth:
		if gridIndex%2 != 0 {
			return
		}
	case RateThirtySecond:
		a.emitLocked(t, sixteenth/2)
		a.stepIndex++
		a.emitLocked(t+sixteenth/2, sixteenth/2)
		a.stepIndex++
		return
	}
	a.emitLocked(t, a.SecondsPerBeat()*s.Rate.Factor())
	a.stepIndex++
}

// emitLocked plays one pattern step at the given time.
func (a *Arpeggiator) emitLocked(at, stepDuration float64) {
	var note string
	if a.settings.Direction == DirRandom {
		note = a.pattern[a.rng.Intn(len(a.pattern))]
	} else {
		note = a.pattern[a.stepIndex%len(a.pattern)]
	}
	if a.octaveOffset != 0 {
		note = notes.Transpose(note, 12*a.octaveOffset)
	}
	a.sound.PlayNote(note, at, VoiceArp)
	a.sound.StopNote(note, 0, at+stepDuration*a.settings.Gate)
}
