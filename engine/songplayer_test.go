package engine

import "testing"

type chordCall struct {
	name string
	at   float64
}

// newTestSong wires a player at 120 BPM with recording callbacks.
func newTestSong(fc *fakeClock, measures []SongMeasure) (*SongPlayer, *[]chordCall, *[]chordCall) {
	p := NewSongPlayer(fc.now)
	p.SetSequence(measures, 120)
	plays := &[]chordCall{}
	stops := &[]chordCall{}
	p.OnPlayChord = func(name string, t float64) { *plays = append(*plays, chordCall{name, t}) }
	p.OnStopChord = func(name string, t float64) { *stops = append(*stops, chordCall{name, t}) }
	return p, plays, stops
}

func runSong(p *SongPlayer, fc *fakeClock, from, to float64) {
	for now := from; now < to; now += 0.025 {
		fc.t = now
		p.Tick(now)
	}
}

func TestSequencerGateStopsChordEarly(t *testing.T) {
	fc := &fakeClock{t: 10.0}
	p, plays, stops := newTestSong(fc, []SongMeasure{{Chords: []string{"C"}}})

	p.TogglePlay()
	runSong(p, fc, 10.0, 12.0)

	if len(*plays) != 1 || (*plays)[0].name != "C" {
		t.Fatalf("plays: %+v", *plays)
	}
	if len(*stops) != 1 {
		t.Fatalf("stops: %+v", *stops)
	}
	// One measure at 120 BPM is 2s; the gate cuts at 0.95 of it.
	cut := (*stops)[0].at - 10.0
	if cut < 1.9 || cut > 1.96 {
		t.Fatalf("gate cut at %f into the measure, want ~1.9", cut)
	}
}

func TestTwoSlotMeasureSplitsAtHalf(t *testing.T) {
	fc := &fakeClock{t: 0}
	p, plays, _ := newTestSong(fc, []SongMeasure{{Chords: []string{"C", "G"}}})

	p.TogglePlay()
	runSong(p, fc, 0, 1.99)

	if len(*plays) != 2 {
		t.Fatalf("plays: %+v", *plays)
	}
	if (*plays)[0].name != "C" || !closeTo((*plays)[0].at, 0) {
		t.Fatalf("first slot: %+v", (*plays)[0])
	}
	if (*plays)[1].name != "G" {
		t.Fatalf("second slot: %+v", (*plays)[1])
	}
	// The half-measure boundary at 120 BPM is 1s in.
	if at := (*plays)[1].at; at < 1.0 || at > 1.05 {
		t.Fatalf("second slot fired at %f, want ~1.0", at)
	}
}

func TestEmptySlotIsSilent(t *testing.T) {
	fc := &fakeClock{t: 0}
	p, plays, _ := newTestSong(fc, []SongMeasure{
		{Chords: []string{"C"}},
		{Chords: []string{""}},
	})

	p.TogglePlay()
	runSong(p, fc, 0, 3.9)

	if len(*plays) != 1 || (*plays)[0].name != "C" {
		t.Fatalf("empty slot produced a chord: %+v", *plays)
	}
	if p.CurrentMeasureIndex() != 1 {
		t.Fatalf("measure index: got %d, want 1", p.CurrentMeasureIndex())
	}
}

func TestSequenceWrapsAround(t *testing.T) {
	fc := &fakeClock{t: 0}
	p, plays, _ := newTestSong(fc, []SongMeasure{
		{Chords: []string{"C"}},
		{Chords: []string{"F"}},
	})

	p.TogglePlay()
	// Two measures are 4s; run one and a half cycles.
	runSong(p, fc, 0, 6.1)

	want := []string{"C", "F", "C", "F"}
	if len(*plays) != len(want) {
		t.Fatalf("plays over 1.5 cycles: %+v", *plays)
	}
	for i, w := range want {
		if (*plays)[i].name != w {
			t.Fatalf("play %d: got %s, want %s", i, (*plays)[i].name, w)
		}
	}
}

func TestStopForceStopsSoundingChord(t *testing.T) {
	fc := &fakeClock{t: 0}
	p, _, stops := newTestSong(fc, []SongMeasure{{Chords: []string{"Am"}}})

	p.TogglePlay()
	fc.t = 0.1
	p.Tick(0.1)

	fc.t = 0.5
	p.Stop()
	if len(*stops) != 1 || (*stops)[0].name != "Am" {
		t.Fatalf("stop did not silence the chord: %+v", *stops)
	}
	if p.Playing() || p.CurrentMeasureIndex() != -1 {
		t.Fatalf("stop left playing=%v measure=%d", p.Playing(), p.CurrentMeasureIndex())
	}
}

func TestMetronomeClicksEveryBeat(t *testing.T) {
	fc := &fakeClock{t: 0}
	p, _, _ := newTestSong(fc, []SongMeasure{{Chords: []string{"C"}}})
	p.Metronome = true

	type click struct {
		downbeat bool
	}
	var clicks []click
	p.OnClick = func(downbeat bool, t float64) { clicks = append(clicks, click{downbeat}) }

	p.TogglePlay()
	runSong(p, fc, 0, 1.99)

	if len(clicks) != 4 {
		t.Fatalf("clicks per measure: got %d, want 4", len(clicks))
	}
	for i, c := range clicks {
		if want := i == 0; c.downbeat != want {
			t.Fatalf("click %d downbeat=%v", i, c.downbeat)
		}
	}
}
