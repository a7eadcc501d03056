package engine

import (
	"math"

	"go-loopstation/debug"
)

// SongMeasure is one measure of a chord sequence. Chords holds 1 slot
// spanning the measure or 2 half-measure slots; "" is an empty slot.
type SongMeasure struct {
	Chords []string
}

// chordGateRatio is how far through a slot a chord sounds before it is cut,
// leaving audible separation between chords instead of a held drone.
const chordGateRatio = 0.95

// SongPlayer walks an ordered measure list on its own internal clock,
// triggering chord on/off at slot boundaries with articulation gating. It
// only knows chord names; the host resolves names to pitches.
type SongPlayer struct {
	now Clock

	// OnPlayChord and OnStopChord fire at slot boundaries (and at the
	// gate cut for stops). OnClick fires once per integer beat crossing
	// when the metronome is enabled.
	OnPlayChord func(name string, t float64)
	OnStopChord func(name string, t float64)
	OnClick     func(downbeat bool, t float64)

	Metronome bool

	measures []SongMeasure
	bpm      float64

	playing      bool
	startTime    float64
	posMeasure   int // -1 while idle
	posSlot      int
	sounding     string // chord currently on, "" if none
	gated        bool   // sounding chord already cut by the gate
	lastClickIdx int
}

// NewSongPlayer creates an idle player with no measures.
func NewSongPlayer(now Clock) *SongPlayer {
	return &SongPlayer{now: now, bpm: 120, posMeasure: -1}
}

// SetSequence replaces the measure list and tempo. Takes effect on the next
// play; measures with no chord slots are skipped by the scheduler.
func (p *SongPlayer) SetSequence(measures []SongMeasure, bpm float64) {
	if p.playing {
		p.Stop()
	}
	p.measures = measures
	if bpm > 0 {
		p.bpm = bpm
	}
}

// Playing reports whether the sequence is running.
func (p *SongPlayer) Playing() bool { return p.playing }

// CurrentMeasureIndex returns the sounding measure, or -1 while idle.
func (p *SongPlayer) CurrentMeasureIndex() int { return p.posMeasure }

// TogglePlay starts the sequence from the top or stops it.
func (p *SongPlayer) TogglePlay() {
	if p.playing {
		p.Stop()
		return
	}
	if len(p.measures) == 0 {
		return
	}
	p.playing = true
	p.startTime = p.now()
	p.posMeasure = -1
	p.posSlot = -1
	p.lastClickIdx = -1
	debug.Log("song", "play: %d measures at %.1f bpm", len(p.measures), p.bpm)
}

// Stop halts the sequence, force-stopping any sounding chord first.
func (p *SongPlayer) Stop() {
	if p.sounding != "" && p.OnStopChord != nil {
		p.OnStopChord(p.sounding, p.now())
	}
	p.sounding = ""
	p.gated = false
	p.playing = false
	p.posMeasure = -1
	p.posSlot = -1
	debug.Log("song", "stop")
}

// Tick derives the current measure/slot from elapsed time and fires chord
// transitions, the gate cut, and the metronome click.
func (p *SongPlayer) Tick(now float64) {
	if !p.playing || len(p.measures) == 0 {
		return
	}
	spb := 60 / p.bpm
	elapsed := now - p.startTime
	totalBeats := 4 * float64(len(p.measures))
	beatInSeq := math.Mod(elapsed/spb, totalBeats)

	measureIdx := int(beatInSeq/4) % len(p.measures)
	beatInMeasure := beatInSeq - 4*float64(int(beatInSeq/4))

	m := p.measures[measureIdx]
	numSlots := len(m.Chords)
	if numSlots == 0 {
		p.tickClick(elapsed, spb, beatInSeq, now)
		return
	}
	beatsPerSlot := 4 / float64(numSlots)
	slotIdx := int(beatInMeasure / beatsPerSlot)
	if slotIdx >= numSlots {
		slotIdx = numSlots - 1
	}

	if measureIdx != p.posMeasure || slotIdx != p.posSlot {
		if p.sounding != "" && p.OnStopChord != nil {
			p.OnStopChord(p.sounding, now)
		}
		p.sounding = ""
		p.gated = false
		p.posMeasure = measureIdx
		p.posSlot = slotIdx

		chord := m.Chords[slotIdx]
		if chord != "" && p.OnPlayChord != nil {
			p.OnPlayChord(chord, now)
			p.sounding = chord
		}
	}

	// Gate: cut the chord near the end of the slot for separation.
	slotProgress := (beatInMeasure - float64(slotIdx)*beatsPerSlot) / beatsPerSlot
	if p.sounding != "" && !p.gated && slotProgress > chordGateRatio {
		if p.OnStopChord != nil {
			p.OnStopChord(p.sounding, now)
		}
		p.sounding = ""
		p.gated = true
	}

	p.tickClick(elapsed, spb, beatInSeq, now)
}

// tickClick fires the metronome once per integer beat crossing, high on
// downbeats and low otherwise, independent of chord timing.
func (p *SongPlayer) tickClick(elapsed, spb, beatInSeq float64, now float64) {
	if !p.Metronome || p.OnClick == nil {
		return
	}
	beatIdx := int(elapsed / spb)
	if beatIdx == p.lastClickIdx {
		return
	}
	p.lastClickIdx = beatIdx
	downbeat := int(beatInSeq)%4 == 0
	p.OnClick(downbeat, now)
}
