package engine

import "sync"

// fakeClock is advanced by hand.
type fakeClock struct {
	t float64
}

func (f *fakeClock) now() float64 { return f.t }

type soundCall struct {
	kind  string // "on" or "off"
	note  string
	at    float64
	voice string
}

// fakeSound records every scheduled event.
type fakeSound struct {
	mu      sync.Mutex
	calls   []soundCall
	stopAll int
}

func (f *fakeSound) PlayNote(note string, at float64, voice string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, soundCall{kind: "on", note: note, at: at, voice: voice})
}

func (f *fakeSound) StopNote(note string, release float64, at float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, soundCall{kind: "off", note: note, at: at})
}

func (f *fakeSound) StopAllNotes() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopAll++
}

func (f *fakeSound) ons(note string) []soundCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []soundCall
	for _, c := range f.calls {
		if c.kind == "on" && (note == "" || c.note == note) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeSound) offs(note string) []soundCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []soundCall
	for _, c := range f.calls {
		if c.kind == "off" && (note == "" || c.note == note) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeSound) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
	f.stopAll = 0
}

const eps = 1e-6

func closeTo(a, b float64) bool {
	d := a - b
	return d < eps && d > -eps
}
