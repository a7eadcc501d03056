package engine

import (
	"math"
	"sort"

	"go-loopstation/debug"
)

// LoopState is the looper's phase. Exactly one is active at a time.
type LoopState int

const (
	LoopIdle LoopState = iota
	LoopCountingIn
	LoopRecording
	LoopPlaying
	LoopOverdubbing
)

func (s LoopState) String() string {
	switch s {
	case LoopIdle:
		return "idle"
	case LoopCountingIn:
		return "count-in"
	case LoopRecording:
		return "recording"
	case LoopPlaying:
		return "playing"
	case LoopOverdubbing:
		return "overdubbing"
	}
	return "unknown"
}

// LoopEvent is a committed note within a loop. Start is relative to the
// loop start, always in [0, loopDuration). Immutable once stored in a slot.
type LoopEvent struct {
	Note     string
	Start    float64
	Duration float64
}

// rawEvent is a transient on/off capture during a recording pass, relative
// to the recording start. Negative times are pickup notes struck just
// before the barline.
type rawEvent struct {
	note string
	time float64
	on   bool
}

// SlotNames are the loop slots, in display order.
var SlotNames = []string{"A", "B", "C", "D"}

// Looper records timestamped notes into a fixed-length loop per named slot
// and replays the active slot with lookahead scheduling. Count-in and
// record-start alignment come from BeatClock downbeats fed into HandleBeat.
type Looper struct {
	now   Clock
	sound SoundEngine

	// ClockRunning gates startRecording; recording needs a beat source.
	ClockRunning func() bool
	// SecondsPerBeat supplies the tempo captured at record start.
	SecondsPerBeat func() float64

	// Bars is the loop length in measures for fresh recordings.
	Bars int
	// CountInMeasures is how many downbeat-to-downbeat measures of
	// count-in precede a recording pass (1..2).
	CountInMeasures int

	state  LoopState
	slots  map[string][]LoopEvent
	active string
	queued string // pending slot switch, committed on wrap; "" if none

	countIn    int  // measures remaining in count-in
	wasPlaying bool // playback continues underneath this count-in

	loopDuration float64
	recordStart  float64
	recordStop   float64
	raw          []rawEvent

	anchor       float64 // playback phase anchor; loop start = anchor + k*loopDuration
	lastProgress float64
	nextIdx      int
	events       []LoopEvent // committed slice feeding the scheduler

	sched []scheduledNote // handed to the sound engine, not yet ended
}

// scheduledNote remembers when a loop note was told to start and stop, so
// stopping playback can silence notes already armed inside the lookahead
// window as well as ones currently sounding.
type scheduledNote struct {
	note    string
	on, off float64
}

// pendingNoteCut is how soon after its on a note armed inside the lookahead
// window is cut when playback stops mid-window. The on will fire regardless;
// cutting just after it beats letting it ring out its full duration.
const pendingNoteCut = 0.005

// NewLooper creates an idle looper with empty slots.
func NewLooper(now Clock, sound SoundEngine) *Looper {
	l := &Looper{
		now:             now,
		sound:           sound,
		Bars:            4,
		CountInMeasures: 1,
		state:           LoopIdle,
		slots:           make(map[string][]LoopEvent),
		active:          SlotNames[0],
	}
	for _, name := range SlotNames {
		l.slots[name] = nil
	}
	return l
}

// State returns the current phase.
func (l *Looper) State() LoopState { return l.state }

// ActiveSlot returns the slot feeding the scheduler.
func (l *Looper) ActiveSlot() string { return l.active }

// QueuedSlot returns the pending slot switch, or "" if none.
func (l *Looper) QueuedSlot() string { return l.queued }

// CountInRemaining returns measures left in the count-in.
func (l *Looper) CountInRemaining() int { return l.countIn }

// Slot returns the committed events of a slot. The returned slice is the
// committed value itself; callers must not mutate it.
func (l *Looper) Slot(name string) []LoopEvent { return l.slots[name] }

// LoopDuration returns the loop length in seconds (0 before first record).
func (l *Looper) LoopDuration() float64 { return l.loopDuration }

// Progress returns the position through the current pass 0..1, whether
// recording or playing, or 0 when there is nothing in flight.
func (l *Looper) Progress() float64 {
	if l.loopDuration <= 0 {
		return 0
	}
	switch l.state {
	case LoopRecording:
		p := (l.now() - l.recordStart) / l.loopDuration
		return math.Max(0, math.Min(1, p))
	case LoopPlaying, LoopOverdubbing:
	case LoopCountingIn:
		if !l.wasPlaying {
			return 0
		}
	default:
		return 0
	}
	return math.Mod(l.now()-l.anchor, l.loopDuration) / l.loopDuration
}

// StartRecording begins a count-in toward recording (empty slot) or
// overdubbing (slot with content). Re-invoked during a recording pass it
// acts as an early stop. A no-op when the beat clock isn't running.
func (l *Looper) StartRecording() {
	if l.sound == nil || l.ClockRunning == nil || !l.ClockRunning() {
		return
	}
	switch l.state {
	case LoopRecording, LoopOverdubbing:
		l.finalize()
	case LoopIdle, LoopPlaying:
		l.wasPlaying = l.state == LoopPlaying
		l.countIn = l.CountInMeasures
		l.state = LoopCountingIn
		l.raw = nil
		debug.Log("loop", "count-in %d measures, slot %s", l.countIn, l.active)
	}
}

// HandleBeat consumes BeatClock pulses. Only downbeats matter: each one
// decrements the count-in, and the one that empties it anchors the
// recording pass at its (lookahead) timestamp.
func (l *Looper) HandleBeat(bi BeatInfo) {
	if l.state != LoopCountingIn || bi.Beat != 1 {
		return
	}
	l.countIn--
	if l.countIn > 0 {
		return
	}
	existing := l.slots[l.active]
	spb := 0.5
	if l.SecondsPerBeat != nil {
		spb = l.SecondsPerBeat()
	}
	l.recordStart = bi.Time
	if len(existing) == 0 {
		l.loopDuration = spb * 4 * float64(l.Bars)
		l.state = LoopRecording
		l.events = nil
	} else {
		// Overdub keeps the slot's established length.
		l.state = LoopOverdubbing
		l.events = existing
		if !l.wasPlaying {
			l.anchor = l.recordStart
			l.lastProgress = 0
			l.nextIdx = 0
		}
	}
	l.recordStop = l.recordStart + l.loopDuration
	debug.Log("loop", "%s start=%.3f stop=%.3f dur=%.3f", l.state, l.recordStart, l.recordStop, l.loopDuration)
}

// NoteOn captures a note start during a recording pass.
func (l *Looper) NoteOn(note string) {
	if l.state != LoopRecording && l.state != LoopOverdubbing {
		return
	}
	l.raw = append(l.raw, rawEvent{note: note, time: l.now() - l.recordStart, on: true})
}

// NoteOff captures a note end during a recording pass.
func (l *Looper) NoteOff(note string) {
	if l.state != LoopRecording && l.state != LoopOverdubbing {
		return
	}
	l.raw = append(l.raw, rawEvent{note: note, time: l.now() - l.recordStart, on: false})
}

// TogglePlayback starts the active slot from the top, or stops playback
// and silences every loop-originated note.
func (l *Looper) TogglePlayback() {
	if l.sound == nil {
		return
	}
	switch l.state {
	case LoopPlaying, LoopOverdubbing:
		l.stopPlayback()
	case LoopIdle:
		events := l.slots[l.active]
		if len(events) == 0 || l.loopDuration <= 0 {
			return
		}
		l.events = events
		l.anchor = l.now()
		l.lastProgress = 0
		l.nextIdx = 0
		l.state = LoopPlaying
		debug.Log("loop", "play slot %s, %d events", l.active, len(events))
	}
}

// ClearLoop empties the active slot and returns to Idle from any state.
func (l *Looper) ClearLoop() {
	l.slots[l.active] = nil
	l.raw = nil
	l.stopPlayback()
	debug.Log("loop", "cleared slot %s", l.active)
}

// SwitchSlot selects another slot. While playing or overdubbing the switch
// is queued and committed at the next loop-boundary wrap so it is audible
// only at the bar line; otherwise it is immediate.
func (l *Looper) SwitchSlot(name string) {
	if _, ok := l.slots[name]; !ok {
		return
	}
	switch l.state {
	case LoopPlaying, LoopOverdubbing:
		if name == l.active {
			l.queued = ""
			return
		}
		l.queued = name
		debug.Log("loop", "queued switch %s -> %s", l.active, name)
	default:
		l.active = name
		l.queued = ""
	}
}

// Tick advances the looper: it ends a recording pass whose window has
// closed and schedules playback events inside the lookahead window.
func (l *Looper) Tick(now float64) {
	if (l.state == LoopRecording || l.state == LoopOverdubbing) && now >= l.recordStop {
		l.finalize()
	}
	if l.schedulerActive() {
		l.schedule(now)
	}
}

func (l *Looper) schedulerActive() bool {
	switch l.state {
	case LoopPlaying, LoopOverdubbing:
		return true
	case LoopCountingIn:
		return l.wasPlaying
	}
	return false
}

// schedule walks committed events in start order and hands every one that
// falls inside the lookahead window to the sound engine at its absolute
// time. A progress decrease means the loop wrapped: the event index resets
// and a queued slot switch commits exactly at the boundary.
func (l *Looper) schedule(now float64) {
	if l.loopDuration <= 0 {
		return
	}
	progress := math.Mod(now-l.anchor, l.loopDuration)
	if progress < l.lastProgress {
		l.nextIdx = 0
		if l.queued != "" {
			l.active = l.queued
			l.queued = ""
			l.events = l.slots[l.active]
			debug.Log("loop", "switched to slot %s at wrap", l.active)
		}
	}
	l.lastProgress = progress

	passStart := now - progress
	for l.nextIdx < len(l.events) {
		ev := l.events[l.nextIdx]
		at := passStart + ev.Start
		if at >= now+Lookahead {
			break
		}
		l.nextIdx++
		if at < now-MaxLateness {
			// Stall recovery: never fire a burst of stale events.
			debug.Log("loop", "dropped late event %s at=%.3f now=%.3f", ev.Note, at, now)
			continue
		}
		l.sound.PlayNote(ev.Note, at, VoiceLoop)
		l.sound.StopNote(ev.Note, 0, at+ev.Duration)
		l.sched = append(l.sched, scheduledNote{note: ev.Note, on: at, off: at + ev.Duration})
	}

	// Drop entries that have already ended.
	kept := l.sched[:0]
	for _, sn := range l.sched {
		if sn.off > now {
			kept = append(kept, sn)
		}
	}
	l.sched = kept
}

// finalize folds the raw on/off capture into committed LoopEvents, merges
// them with the slot's prior contents when overdubbing, and rolls into
// playback anchored at the original recording start so phase never jumps.
func (l *Looper) finalize() {
	fresh := l.state == LoopRecording
	committed := pairRawEvents(l.raw, l.loopDuration)
	l.raw = nil

	if fresh && len(committed) == 0 {
		// Nothing captured: no ghost loop.
		l.state = LoopIdle
		l.wasPlaying = false
		debug.Log("loop", "empty recording discarded")
		return
	}

	merged := committed
	if !fresh {
		if l.wasPlaying {
			// Playback kept its own anchor through this pass, so the
			// capture frame (recordStart) and the playback frame
			// (anchor) can differ by a fraction of the loop. Shift the
			// new events into the playback frame so they replay at the
			// phase they were heard.
			delta := math.Mod(l.recordStart-l.anchor, l.loopDuration)
			if delta < 0 {
				delta += l.loopDuration
			}
			for i := range committed {
				committed[i].Start = math.Mod(committed[i].Start+delta, l.loopDuration)
			}
		}
		merged = make([]LoopEvent, 0, len(l.events)+len(committed))
		merged = append(merged, l.events...)
		merged = append(merged, committed...)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Start < merged[j].Start })

	// Swap in the new slice; the old one may still be read by this tick.
	l.slots[l.active] = merged
	l.events = merged

	if fresh || !l.wasPlaying {
		l.anchor = l.recordStart
	}
	l.state = LoopPlaying
	l.wasPlaying = false

	// Resync the scheduler index to the current phase so events already
	// behind us this pass don't re-fire.
	progress := math.Mod(l.now()-l.anchor, l.loopDuration)
	l.lastProgress = progress
	l.nextIdx = 0
	for l.nextIdx < len(merged) && merged[l.nextIdx].Start < progress {
		l.nextIdx++
	}
	debug.Log("loop", "finalized slot %s: %d events, dur=%.3f", l.active, len(merged), l.loopDuration)
}

// pairRawEvents matches note-ons to note-offs per note in time order.
// Unmatched opens close at the loop boundary, unmatched closes are dropped,
// sub-MinEventDuration artifacts are filtered, and negative pickup times
// wrap to the loop's tail.
func pairRawEvents(raw []rawEvent, loopDuration float64) []LoopEvent {
	if loopDuration <= 0 {
		return nil
	}
	sorted := make([]rawEvent, len(raw))
	copy(sorted, raw)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].time < sorted[j].time })

	open := make(map[string]float64)
	var out []LoopEvent
	commit := func(note string, start, end float64) {
		dur := end - start
		if dur < MinEventDuration {
			return
		}
		if dur > loopDuration {
			dur = loopDuration
		}
		// Wrap pickups and boundary spill into [0, loopDuration).
		start = math.Mod(start, loopDuration)
		if start < 0 {
			start += loopDuration
		}
		out = append(out, LoopEvent{Note: note, Start: start, Duration: dur})
	}

	for _, ev := range sorted {
		if ev.on {
			if _, held := open[ev.note]; held {
				// Retrigger without an off: close the first at the retrigger.
				commit(ev.note, open[ev.note], ev.time)
			}
			open[ev.note] = ev.time
		} else {
			start, held := open[ev.note]
			if !held {
				continue // off without on: dropped
			}
			delete(open, ev.note)
			commit(ev.note, start, ev.time)
		}
	}
	for note, start := range open {
		commit(note, start, loopDuration)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// stopPlayback silences everything the loop has handed to the sound engine
// and returns to Idle. The sound engine has no notion of which notes are
// ours, so each one is stopped explicitly; notes whose ons are already
// armed in the lookahead window get cut right after they fire.
func (l *Looper) stopPlayback() {
	now := l.now()
	for _, sn := range l.sched {
		if sn.off <= now {
			continue
		}
		cut := now
		if sn.on > now {
			cut = sn.on + pendingNoteCut
		}
		l.sound.StopNote(sn.note, 0, cut)
	}
	l.sched = nil
	l.state = LoopIdle
	l.wasPlaying = false
	l.queued = ""
}
