package engine

import (
	"sync"
	"time"

	"go-loopstation/debug"
	"go-loopstation/notes"
)

// Click notes fed to the SoundEngine for count-in and metronome pulses.
const (
	clickHigh = "G6"
	clickLow  = "C6"
	clickLen  = 0.05
)

// Engine owns one of each scheduler, phase-locks them to a single clock,
// and runs the poll loop that drives their ticks. All host-facing methods
// are safe to call from the UI goroutine.
type Engine struct {
	mu    sync.Mutex
	now   Clock
	sound SoundEngine

	Clock  *BeatClock
	Looper *Looper
	Arp    *Arpeggiator
	Song   *SongPlayer

	octave    int  // live keyboard octave offset
	metronome bool // audible BeatClock click

	liveNotes map[string]string // pressed note -> transposed note actually sounding

	stopChan chan struct{}

	// UpdateChan gets a non-blocking poke whenever UI-visible state may
	// have changed.
	UpdateChan chan struct{}
}

// New wires the four schedulers to one clock and sound engine.
func New(now Clock, sound SoundEngine) *Engine {
	if sound == nil {
		sound = NopSound{}
	}
	e := &Engine{
		now:        now,
		sound:      sound,
		liveNotes:  make(map[string]string),
		UpdateChan: make(chan struct{}, 1),
	}
	e.Clock = NewBeatClock(now, 120)
	e.Looper = NewLooper(now, sound)
	e.Arp = NewArpeggiator(now, sound)
	e.Song = NewSongPlayer(now)

	e.Looper.ClockRunning = e.Clock.Running
	e.Looper.SecondsPerBeat = e.Clock.SecondsPerBeat
	e.Arp.SecondsPerBeat = e.Clock.SecondsPerBeat

	e.Clock.OnBeat = e.handleBeat
	e.Clock.OnSixteenth = e.Arp.HandleGridTick
	e.Song.OnClick = e.handleSongClick

	return e
}

// handleBeat feeds the looper's count-in and sounds the count-in click.
// Runs inside the engine tick, under the engine lock.
func (e *Engine) handleBeat(bi BeatInfo) {
	e.Looper.HandleBeat(bi)
	if e.metronome || e.Looper.State() == LoopCountingIn {
		note := clickLow
		if bi.Beat == 1 {
			note = clickHigh
		}
		e.sound.PlayNote(note, bi.Time, VoiceClick)
		e.sound.StopNote(note, 0, bi.Time+clickLen)
	}
}

// handleSongClick sounds the song player's own metronome.
func (e *Engine) handleSongClick(downbeat bool, t float64) {
	note := clickLow
	if downbeat {
		note = clickHigh
	}
	e.sound.PlayNote(note, t, VoiceClick)
	e.sound.StopNote(note, 0, t+clickLen)
}

// Run starts the scheduling loop (blocking - run in goroutine). One ticker
// drives the schedulers at the poll cadence; a slower one pokes the UI.
func (e *Engine) Run() {
	e.mu.Lock()
	if e.stopChan != nil {
		e.mu.Unlock()
		return
	}
	e.stopChan = make(chan struct{})
	stop := e.stopChan
	e.mu.Unlock()

	ticker := time.NewTicker(TickInterval)
	uiTicker := time.NewTicker(time.Second / 30)
	defer ticker.Stop()
	defer uiTicker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.tick()
		case <-uiTicker.C:
			e.notifyUpdate()
		}
	}
}

// Shutdown stops the loop and silences everything.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.stopChan != nil {
		close(e.stopChan)
		e.stopChan = nil
	}
	e.Song.Stop()
	e.Clock.Stop()
	e.mu.Unlock()
	e.sound.StopAllNotes()
}

// tick advances every scheduler by one bounded poll.
func (e *Engine) tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	e.Clock.Tick(now)
	e.Looper.Tick(now)
	e.Arp.Tick(now)
	e.Song.Tick(now)
}

func (e *Engine) notifyUpdate() {
	select {
	case e.UpdateChan <- struct{}{}:
	default:
	}
}

// NoteOn handles a live key press: immediate echo, then into the looper's
// recording pass and the arpeggiator's held set. The octave offset applies
// to what sounds and what records, not to the arp's pattern source.
func (e *Engine) NoteOn(note string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Arp.NoteOn(note)
	if e.Arp.Settings().On {
		// The arp is the voice now; don't double-sound the key.
		return
	}
	played := e.transpose(note)
	e.liveNotes[note] = played
	e.sound.PlayNote(played, e.now(), VoiceLive)
	e.Looper.NoteOn(played)
}

// NoteOff releases a live key.
func (e *Engine) NoteOff(note string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Arp.NoteOff(note)
	played, ok := e.liveNotes[note]
	if !ok {
		return
	}
	delete(e.liveNotes, note)
	e.sound.StopNote(played, 0, e.now())
	e.Looper.NoteOff(played)
}

func (e *Engine) transpose(note string) string {
	if e.octave == 0 {
		return note
	}
	return notes.Transpose(note, 12*e.octave)
}

// StartClock starts the beat clock at the current tempo.
func (e *Engine) StartClock() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Clock.Start(e.Clock.BPM())
}

// StopClock stops the beat clock. A recording pass in flight is abandoned.
func (e *Engine) StopClock() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Clock.Stop()
}

// SetTempo clamps and applies a new tempo.
func (e *Engine) SetTempo(bpm float64) {
	if bpm < 20 {
		bpm = 20
	}
	if bpm > 300 {
		bpm = 300
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Clock.SetBPM(bpm)
	debug.Log("engine", "tempo=%.1f", bpm)
}

// Tempo returns the current tempo.
func (e *Engine) Tempo() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Clock.BPM()
}

// SetOctave sets the live octave offset (applied on the next note and the
// arp's next step).
func (e *Engine) SetOctave(octaves int) {
	if octaves < -3 {
		octaves = -3
	}
	if octaves > 3 {
		octaves = 3
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.octave = octaves
	e.Arp.SetOctaveOffset(octaves)
}

// Octave returns the live octave offset.
func (e *Engine) Octave() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.octave
}

// SetMetronome toggles the audible beat-clock click.
func (e *Engine) SetMetronome(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metronome = on
}

// Metronome reports whether the beat-clock click is audible.
func (e *Engine) Metronome() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metronome
}

// StartRecording forwards to the looper under the engine lock.
func (e *Engine) StartRecording() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Looper.StartRecording()
}

// TogglePlayback forwards to the looper under the engine lock.
func (e *Engine) TogglePlayback() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Looper.TogglePlayback()
}

// ClearLoop forwards to the looper under the engine lock.
func (e *Engine) ClearLoop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Looper.ClearLoop()
}

// SwitchSlot forwards to the looper under the engine lock.
func (e *Engine) SwitchSlot(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Looper.SwitchSlot(name)
}

// ToggleSong starts or stops the chord sequence.
func (e *Engine) ToggleSong() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Song.TogglePlay()
}

// LoadSong installs a measure list and tempo into the song player.
func (e *Engine) LoadSong(measures []SongMeasure, bpm float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Song.SetSequence(measures, bpm)
}

// Snapshot is a read-only view of engine state for the UI.
type Snapshot struct {
	ClockRunning bool
	Beat         int
	Tempo        float64
	Octave       int
	Metronome    bool

	LoopState    LoopState
	LoopProgress float64
	CountIn      int
	ActiveSlot   string
	QueuedSlot   string
	SlotCounts   map[string]int

	Arp        ArpSettings
	ArpPattern []string

	SongPlaying bool
	SongMeasure int
}

// Snapshot captures the state the UI renders, in one lock acquisition.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	counts := make(map[string]int, len(SlotNames))
	for _, name := range SlotNames {
		counts[name] = len(e.Looper.Slot(name))
	}
	return Snapshot{
		ClockRunning: e.Clock.Running(),
		Beat:         e.Clock.Beat(),
		Tempo:        e.Clock.BPM(),
		Octave:       e.octave,
		Metronome:    e.metronome,
		LoopState:    e.Looper.State(),
		LoopProgress: e.Looper.Progress(),
		CountIn:      e.Looper.CountInRemaining(),
		ActiveSlot:   e.Looper.ActiveSlot(),
		QueuedSlot:   e.Looper.QueuedSlot(),
		SlotCounts:   counts,
		Arp:          e.Arp.Settings(),
		ArpPattern:   e.Arp.Pattern(),
		SongPlaying:  e.Song.Playing(),
		SongMeasure:  e.Song.CurrentMeasureIndex(),
	}
}
