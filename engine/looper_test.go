package engine

import (
	"math"
	"testing"
)

// newTestLooper returns a looper at 120 BPM with a 4-bar loop (8s) and a
// one-measure count-in, with the clock always "running".
func newTestLooper(fc *fakeClock, fs *fakeSound) *Looper {
	l := NewLooper(fc.now, fs)
	l.Bars = 4
	l.CountInMeasures = 1
	l.ClockRunning = func() bool { return true }
	l.SecondsPerBeat = func() float64 { return 0.5 }
	return l
}

// recordOnePass walks the looper through count-in and a full recording
// window, playing the given (note, onAt, offAt) tuples at absolute times.
// The downbeat lands at downbeat; the pass finalizes at downbeat+8s.
func recordOnePass(l *Looper, fc *fakeClock, downbeat float64, notes [][3]interface{}) {
	l.StartRecording()
	l.HandleBeat(BeatInfo{Beat: 1, Time: downbeat})
	for _, n := range notes {
		fc.t = n[1].(float64)
		l.NoteOn(n[0].(string))
		fc.t = n[2].(float64)
		l.NoteOff(n[0].(string))
	}
	fc.t = downbeat + 8.01
	l.Tick(fc.t)
}

func TestRecordPlaybackRoundTrip(t *testing.T) {
	fc := &fakeClock{t: 1.0}
	fs := &fakeSound{}
	l := newTestLooper(fc, fs)

	l.StartRecording()
	if l.State() != LoopCountingIn {
		t.Fatalf("state after StartRecording: %s", l.State())
	}

	l.HandleBeat(BeatInfo{Beat: 1, Time: 2.0})
	if l.State() != LoopRecording {
		t.Fatalf("state after count-in: %s", l.State())
	}
	if !closeTo(l.LoopDuration(), 8.0) {
		t.Fatalf("loop duration: got %f, want 8", l.LoopDuration())
	}

	fc.t = 2.5
	l.NoteOn("C4")
	fc.t = 3.0
	l.NoteOff("C4")

	fc.t = 10.01
	l.Tick(fc.t)
	if l.State() != LoopPlaying {
		t.Fatalf("state after window closed: %s", l.State())
	}

	events := l.Slot("A")
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Note != "C4" || !closeTo(ev.Start, 0.5) || !closeTo(ev.Duration, 0.5) {
		t.Fatalf("got event %+v, want C4 start=0.5 duration=0.5", ev)
	}
}

func TestLoopEventBounds(t *testing.T) {
	fc := &fakeClock{t: 1.0}
	fs := &fakeSound{}
	l := newTestLooper(fc, fs)

	// Includes a pickup note just before the barline (the downbeat
	// callback fires with lookahead, so the state flips early) and a
	// note held past the loop boundary.
	l.StartRecording()
	l.HandleBeat(BeatInfo{Beat: 1, Time: 2.0})
	fc.t = 1.95
	l.NoteOn("G3") // pickup, raw time -0.05
	fc.t = 2.3
	l.NoteOff("G3")
	fc.t = 9.5
	l.NoteOn("B3") // still open when the window closes
	fc.t = 10.02
	l.Tick(fc.t)

	events := l.Slot("A")
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Start < 0 || ev.Start >= l.LoopDuration() {
			t.Fatalf("event %+v start outside [0, %f)", ev, l.LoopDuration())
		}
		if ev.Duration <= 0 {
			t.Fatalf("event %+v has non-positive duration", ev)
		}
	}
}

func TestOverdubMerge(t *testing.T) {
	fc := &fakeClock{t: 1.0}
	fs := &fakeSound{}
	l := newTestLooper(fc, fs)

	recordOnePass(l, fc, 2.0, [][3]interface{}{{"C4", 2.0, 2.6}})
	if got := len(l.Slot("A")); got != 1 {
		t.Fatalf("first pass: %d events", got)
	}

	// Overdub a second note. The downbeat aligns with the loop wrap.
	l.StartRecording()
	if l.State() != LoopCountingIn {
		t.Fatalf("state: %s", l.State())
	}
	l.HandleBeat(BeatInfo{Beat: 1, Time: 10.0})
	if l.State() != LoopOverdubbing {
		t.Fatalf("state after count-in over non-empty slot: %s", l.State())
	}

	fc.t = 12.0
	l.NoteOn("E4")
	fc.t = 12.5
	l.NoteOff("E4")
	fc.t = 18.01
	l.Tick(fc.t)

	events := l.Slot("A")
	if len(events) != 2 {
		t.Fatalf("expected merged slot of 2 events, got %d", len(events))
	}
	if events[0].Note != "C4" || !closeTo(events[0].Start, 0) {
		t.Fatalf("original event overwritten: %+v", events[0])
	}
	if events[1].Note != "E4" || !closeTo(events[1].Start, 2.0) {
		t.Fatalf("overdubbed event wrong: %+v", events[1])
	}
}

func TestOverdubOntoToggledPlayback(t *testing.T) {
	fc := &fakeClock{t: 1.0}
	fs := &fakeSound{}
	l := newTestLooper(fc, fs)

	recordOnePass(l, fc, 2.0, [][3]interface{}{{"C4", 2.5, 3.0}})

	// Stop, then restart playback away from any beat boundary.
	fc.t = 12.0
	l.TogglePlayback()
	fc.t = 20.3
	l.TogglePlayback()
	if l.State() != LoopPlaying {
		t.Fatalf("state after restart: %s", l.State())
	}

	// Overdub on top: count-in downbeat at 22.0, E4 struck at 24.0. The
	// player hears E4 at loop phase 3.7 against the 20.3 anchor.
	fc.t = 20.5
	l.StartRecording()
	l.HandleBeat(BeatInfo{Beat: 1, Time: 22.0})
	if l.State() != LoopOverdubbing {
		t.Fatalf("state after count-in: %s", l.State())
	}
	fc.t = 24.0
	l.NoteOn("E4")
	fc.t = 24.5
	l.NoteOff("E4")
	fc.t = 30.01
	l.Tick(fc.t)

	events := l.Slot("A")
	if len(events) != 2 {
		t.Fatalf("expected merged slot of 2 events, got %d", len(events))
	}
	var e4 *LoopEvent
	for i := range events {
		if events[i].Note == "E4" {
			e4 = &events[i]
		}
	}
	if e4 == nil || !closeTo(e4.Start, 3.7) || !closeTo(e4.Duration, 0.5) {
		t.Fatalf("overdubbed event not in the playback frame: %+v", events)
	}

	// The next pass starts at 28.3, so E4 replays at the phase it was
	// heard: 32.0.
	fs.reset()
	for now := 30.02; now < 32.2; now += 0.025 {
		fc.t = now
		l.Tick(now)
	}
	ons := fs.ons("E4")
	if len(ons) != 1 || !closeTo(ons[0].at, 32.0) {
		t.Fatalf("replay firings %+v, want one at 32.0", ons)
	}
}

func TestWrapIdempotence(t *testing.T) {
	fc := &fakeClock{t: 1.0}
	fs := &fakeSound{}
	l := newTestLooper(fc, fs)

	recordOnePass(l, fc, 2.0, [][3]interface{}{
		{"C4", 2.5, 3.0},
		{"E4", 3.0, 3.5},
	})
	fs.reset()

	// Play for exactly three loop cycles.
	for now := 10.01; now < 34.0; now += 0.025 {
		fc.t = now
		l.Tick(now)
	}

	for _, note := range []string{"C4", "E4"} {
		ons := fs.ons(note)
		if len(ons) != 3 {
			t.Fatalf("%s fired %d times over 3 cycles, want 3", note, len(ons))
		}
		for i := 1; i < len(ons); i++ {
			if ons[i].at <= ons[i-1].at {
				t.Fatalf("%s firings out of order: %+v", note, ons)
			}
			if !closeTo(ons[i].at-ons[i-1].at, 8.0) {
				t.Fatalf("%s firing interval: got %f, want 8", note, ons[i].at-ons[i-1].at)
			}
		}
	}
}

func TestSlotSwitchCommitsAtWrap(t *testing.T) {
	fc := &fakeClock{t: 1.0}
	fs := &fakeSound{}
	l := newTestLooper(fc, fs)

	recordOnePass(l, fc, 2.0, [][3]interface{}{{"C4", 2.5, 3.0}})
	fs.reset()

	l.SwitchSlot("B")
	if l.ActiveSlot() != "A" || l.QueuedSlot() != "B" {
		t.Fatalf("switch not queued: active=%s queued=%s", l.ActiveSlot(), l.QueuedSlot())
	}

	// The rest of the current cycle still plays slot A.
	for now := 10.01; now < 18.0; now += 0.025 {
		fc.t = now
		l.Tick(now)
	}
	if len(fs.ons("C4")) != 1 {
		t.Fatalf("slot A stopped early: %d firings", len(fs.ons("C4")))
	}
	if l.ActiveSlot() != "A" {
		t.Fatalf("switch committed before wrap: active=%s", l.ActiveSlot())
	}

	// Cross the boundary: B (empty) takes over exactly at progress 0.
	fc.t = 18.02
	l.Tick(fc.t)
	if l.ActiveSlot() != "B" || l.QueuedSlot() != "" {
		t.Fatalf("switch not committed at wrap: active=%s queued=%s", l.ActiveSlot(), l.QueuedSlot())
	}

	fs.reset()
	for now := 18.05; now < 26.0; now += 0.025 {
		fc.t = now
		l.Tick(now)
	}
	if len(fs.ons("")) != 0 {
		t.Fatalf("empty slot B produced notes: %+v", fs.ons(""))
	}
}

func TestSlotSwitchWhileIdleIsImmediate(t *testing.T) {
	fc := &fakeClock{}
	fs := &fakeSound{}
	l := newTestLooper(fc, fs)

	l.SwitchSlot("C")
	if l.ActiveSlot() != "C" || l.QueuedSlot() != "" {
		t.Fatalf("idle switch not immediate: active=%s queued=%s", l.ActiveSlot(), l.QueuedSlot())
	}
	l.SwitchSlot("nope")
	if l.ActiveSlot() != "C" {
		t.Fatalf("unknown slot accepted: %s", l.ActiveSlot())
	}
}

func TestEmptyRecordingRevertsToIdle(t *testing.T) {
	fc := &fakeClock{t: 1.0}
	fs := &fakeSound{}
	l := newTestLooper(fc, fs)

	l.StartRecording()
	l.HandleBeat(BeatInfo{Beat: 1, Time: 2.0})
	fc.t = 10.01
	l.Tick(fc.t)

	if l.State() != LoopIdle {
		t.Fatalf("empty recording produced state %s, want idle", l.State())
	}
	if len(l.Slot("A")) != 0 {
		t.Fatalf("ghost loop committed: %d events", len(l.Slot("A")))
	}
}

func TestMinimumDurationFiltersArtifacts(t *testing.T) {
	fc := &fakeClock{t: 1.0}
	fs := &fakeSound{}
	l := newTestLooper(fc, fs)

	l.StartRecording()
	l.HandleBeat(BeatInfo{Beat: 1, Time: 2.0})
	fc.t = 3.0
	l.NoteOn("C4")
	fc.t = 3.02 // 20ms blip
	l.NoteOff("C4")
	fc.t = 4.0
	l.NoteOn("D4")
	fc.t = 4.5
	l.NoteOff("D4")
	fc.t = 10.01
	l.Tick(fc.t)

	events := l.Slot("A")
	if len(events) != 1 || events[0].Note != "D4" {
		t.Fatalf("artifact survived the minimum-duration filter: %+v", events)
	}
}

func TestUnmatchedCloseDropped(t *testing.T) {
	fc := &fakeClock{t: 1.0}
	fs := &fakeSound{}
	l := newTestLooper(fc, fs)

	l.StartRecording()
	l.HandleBeat(BeatInfo{Beat: 1, Time: 2.0})
	fc.t = 3.0
	l.NoteOff("C4") // off with no preceding on
	fc.t = 4.0
	l.NoteOn("D4")
	fc.t = 4.5
	l.NoteOff("D4")
	fc.t = 10.01
	l.Tick(fc.t)

	events := l.Slot("A")
	if len(events) != 1 || events[0].Note != "D4" {
		t.Fatalf("unmatched close not dropped: %+v", events)
	}
}

func TestEarlyStopViaStartRecording(t *testing.T) {
	fc := &fakeClock{t: 1.0}
	fs := &fakeSound{}
	l := newTestLooper(fc, fs)

	l.StartRecording()
	l.HandleBeat(BeatInfo{Beat: 1, Time: 2.0})
	fc.t = 2.5
	l.NoteOn("C4")
	fc.t = 3.0
	l.NoteOff("C4")

	fc.t = 4.0
	l.StartRecording() // early stop mid-window
	if l.State() != LoopPlaying {
		t.Fatalf("early stop left state %s, want playing", l.State())
	}
	if len(l.Slot("A")) != 1 {
		t.Fatalf("early stop lost the captured events: %d", len(l.Slot("A")))
	}
}

func TestTogglePlaybackSilencesLoopNotes(t *testing.T) {
	fc := &fakeClock{t: 1.0}
	fs := &fakeSound{}
	l := newTestLooper(fc, fs)

	recordOnePass(l, fc, 2.0, [][3]interface{}{{"C4", 2.5, 4.5}})
	fs.reset()

	// Schedule the event's next firing, then stop while it sounds.
	fc.t = 10.45
	l.Tick(fc.t)
	if len(fs.ons("C4")) != 1 {
		t.Fatalf("expected one scheduled firing, got %d", len(fs.ons("C4")))
	}

	fc.t = 11.0 // inside the note's 2s duration
	l.TogglePlayback()
	if l.State() != LoopIdle {
		t.Fatalf("state after stop: %s", l.State())
	}
	offs := fs.offs("C4")
	if len(offs) == 0 || !closeTo(offs[len(offs)-1].at, 11.0) {
		t.Fatalf("loop note not silenced on stop: %+v", offs)
	}
}

func TestTogglePlaybackCutsPendingNotes(t *testing.T) {
	fc := &fakeClock{t: 1.0}
	fs := &fakeSound{}
	l := newTestLooper(fc, fs)

	recordOnePass(l, fc, 2.0, [][3]interface{}{{"C4", 2.5, 3.0}})
	fs.reset()

	// Arm the note inside the lookahead window, then stop before it fires.
	fc.t = 10.45
	l.Tick(fc.t)
	ons := fs.ons("C4")
	if len(ons) != 1 || !closeTo(ons[0].at, 10.5) {
		t.Fatalf("expected C4 armed at 10.5, got %+v", ons)
	}

	fc.t = 10.47
	l.TogglePlayback()
	offs := fs.offs("C4")
	if len(offs) == 0 {
		t.Fatal("no off scheduled for the pending note")
	}
	last := offs[len(offs)-1]
	if last.at <= 10.5 || last.at > 10.5+2*pendingNoteCut {
		t.Fatalf("pending note cut at %f, want just after its on at 10.5", last.at)
	}
}

func TestLateEventsDroppedAfterStall(t *testing.T) {
	fc := &fakeClock{t: 1.0}
	fs := &fakeSound{}
	l := newTestLooper(fc, fs)

	recordOnePass(l, fc, 2.0, [][3]interface{}{{"C4", 2.5, 3.0}})
	fs.reset()

	// First tick right after finalize, then a stall that skips most of
	// the next pass: the missed firing is dropped, not burst.
	fc.t = 10.01
	l.Tick(fc.t)
	fc.t = 17.0 // C4 at 10.5 is now 6.5s late
	l.Tick(fc.t)

	if n := len(fs.ons("C4")); n != 0 {
		t.Fatalf("stale event fired after stall: %d firings", n)
	}

	// The following pass fires normally.
	for now := 17.0; now < 26.0; now += 0.025 {
		fc.t = now
		l.Tick(now)
	}
	if n := len(fs.ons("C4")); n != 1 {
		t.Fatalf("next pass firings: got %d, want 1", n)
	}
}

func TestProgressWrapsInUnitRange(t *testing.T) {
	fc := &fakeClock{t: 1.0}
	fs := &fakeSound{}
	l := newTestLooper(fc, fs)

	recordOnePass(l, fc, 2.0, [][3]interface{}{{"C4", 2.5, 3.0}})

	for now := 10.01; now < 30.0; now += 0.7 {
		fc.t = now
		l.Tick(now)
		p := l.Progress()
		if p < 0 || p >= 1 {
			t.Fatalf("progress %f outside [0,1) at t=%f", p, now)
		}
		if want := math.Mod(now-2.0, 8.0) / 8.0; !closeTo(p, want) {
			t.Fatalf("progress at t=%f: got %f, want %f", now, p, want)
		}
	}
}
