package engine

import "testing"

func TestBeatClockEmitsQuarterNotes(t *testing.T) {
	fc := &fakeClock{}
	c := NewBeatClock(fc.now, 120) // spb = 0.5s

	var beats []BeatInfo
	c.OnBeat = func(bi BeatInfo) { beats = append(beats, bi) }

	fc.t = 1.0
	c.Start(120)

	// Poll every 25ms for two simulated seconds.
	for ; fc.t < 3.0; fc.t += 0.025 {
		c.Tick(fc.t)
	}

	if len(beats) < 4 {
		t.Fatalf("expected at least 4 beats, got %d", len(beats))
	}
	wantBeat := 1
	for i, bi := range beats {
		if bi.Beat != wantBeat {
			t.Fatalf("beat %d: got number %d, want %d", i, bi.Beat, wantBeat)
		}
		if want := 1.0 + 0.5*float64(i); !closeTo(bi.Time, want) {
			t.Fatalf("beat %d: got time %f, want %f", i, bi.Time, want)
		}
		wantBeat = wantBeat%4 + 1
	}
}

func TestBeatClockNoBeatMissedUnderJitter(t *testing.T) {
	fc := &fakeClock{}
	c := NewBeatClock(fc.now, 240) // spb = 0.25s

	count := 0
	c.OnBeat = func(BeatInfo) { count++ }

	c.Start(240)
	// Irregular polls, all shorter than the lookahead window.
	for _, dt := range []float64{0.01, 0.09, 0.04, 0.08, 0.02, 0.09, 0.07, 0.06, 0.05, 0.09} {
		fc.t += dt
		c.Tick(fc.t)
	}

	// 0.6s elapsed plus the 0.1s lookahead covers beats at 0, .25, .5.
	if count < 3 {
		t.Fatalf("missed beats: got %d, want at least 3", count)
	}
}

func TestBeatClockSetBPMAffectsLaterBeatsOnly(t *testing.T) {
	fc := &fakeClock{}
	c := NewBeatClock(fc.now, 120)

	var times []float64
	c.OnBeat = func(bi BeatInfo) { times = append(times, bi.Time) }

	c.Start(120)
	c.Tick(0) // emits beat at 0, next scheduled at 0.5

	c.SetBPM(60)
	for ; fc.t < 1.8; fc.t += 0.025 {
		c.Tick(fc.t)
	}

	if len(times) < 3 {
		t.Fatalf("expected 3 beats, got %d", len(times))
	}
	if !closeTo(times[1], 0.5) {
		t.Fatalf("already-scheduled beat moved: got %f, want 0.5", times[1])
	}
	if !closeTo(times[2], 1.5) {
		t.Fatalf("beat after tempo change: got %f, want 1.5", times[2])
	}
}

func TestBeatClockGridRealignsAfterTempoChange(t *testing.T) {
	fc := &fakeClock{}
	c := NewBeatClock(fc.now, 120)

	var beats []BeatInfo
	var gridIdxs []int
	var gridTimes []float64
	c.OnBeat = func(bi BeatInfo) { beats = append(beats, bi) }
	c.OnSixteenth = func(i int, at float64) {
		gridIdxs = append(gridIdxs, i)
		gridTimes = append(gridTimes, at)
	}

	c.Start(120)
	fc.t = 0.05
	c.Tick(fc.t) // beat 1 at 0, grid indices 0 and 1 emitted

	c.SetBPM(60) // mid-beat tempo change

	for ; fc.t < 2.0; fc.t += 0.025 {
		c.Tick(fc.t)
	}

	// Every beat still coincides with grid index (beat-1)*4; in
	// particular index 0 stays on the downbeat.
	for _, bi := range beats {
		found := false
		for i, idx := range gridIdxs {
			if idx == (bi.Beat-1)*4 && closeTo(gridTimes[i], bi.Time) {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("beat %d at %f has no matching grid tick", bi.Beat, bi.Time)
		}
	}

	// The leftover sub-beat ticks of the interrupted beat are skipped,
	// not squeezed in before the pending beat.
	for i := 1; i < len(gridIdxs); i++ {
		if gridIdxs[i-1] == 1 && gridIdxs[i] != 4 {
			t.Fatalf("grid continued %d -> %d across the tempo change, want 1 -> 4",
				gridIdxs[i-1], gridIdxs[i])
		}
	}
}

func TestBeatClockStopHalts(t *testing.T) {
	fc := &fakeClock{}
	c := NewBeatClock(fc.now, 120)

	count := 0
	c.OnBeat = func(BeatInfo) { count++ }

	c.Start(120)
	c.Tick(0)
	c.Stop()

	before := count
	for ; fc.t < 2.0; fc.t += 0.025 {
		c.Tick(fc.t)
	}
	if count != before {
		t.Fatalf("beats emitted while stopped: %d -> %d", before, count)
	}
	if c.Running() {
		t.Fatal("clock still reports running after Stop")
	}
}

func TestBeatClockSixteenthGrid(t *testing.T) {
	fc := &fakeClock{}
	c := NewBeatClock(fc.now, 120) // sixteenth = 0.125s

	var idxs []int
	var times []float64
	c.OnSixteenth = func(i int, at float64) {
		idxs = append(idxs, i)
		times = append(times, at)
	}

	c.Start(120)
	for ; fc.t < 2.0; fc.t += 0.025 {
		c.Tick(fc.t)
	}

	if len(idxs) < 17 {
		t.Fatalf("expected a full measure of grid ticks, got %d", len(idxs))
	}
	for i := 0; i < 17; i++ {
		if idxs[i] != i%16 {
			t.Fatalf("grid index %d: got %d, want %d", i, idxs[i], i%16)
		}
		if want := 0.125 * float64(i); !closeTo(times[i], want) {
			t.Fatalf("grid time %d: got %f, want %f", i, times[i], want)
		}
	}
}
