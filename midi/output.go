package midi

import (
	"fmt"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-loopstation/debug"
	"go-loopstation/engine"
	"go-loopstation/notes"
)

// Output sends timestamped note events to a MIDI port. Each scheduled event
// carries an absolute clock time; the output arms a timer per event so the
// wire order follows the timestamps, not the call order.
type Output struct {
	clock engine.Clock
	send  func(gomidi.Message) error

	baseChannel uint8 // 0-based

	mu       sync.Mutex
	timers   map[*time.Timer]struct{}
	sounding map[soundingKey]int // live note-on count per (channel, pitch)
	closed   bool
}

type soundingKey struct {
	channel uint8
	pitch   uint8
}

// Voice-to-channel offsets from the configured base channel, so a DAW or
// synth can patch each source separately. Click lands on the GM percussion
// channel.
var voiceOffsets = map[string]uint8{
	engine.VoiceLive:  0,
	engine.VoiceLoop:  0,
	engine.VoiceArp:   1,
	engine.VoiceChord: 2,
}

const clickChannel = 9 // GM percussion, 0-based

// OpenOutput finds a MIDI out port whose name contains portName (the first
// port when portName is empty) and returns an Output on the given 1-based
// channel.
func OpenOutput(portName string, channel uint8, clock engine.Clock) (*Output, error) {
	port, err := findOutPort(portName)
	if err != nil {
		return nil, err
	}
	send, err := gomidi.SendTo(port)
	if err != nil {
		return nil, fmt.Errorf("open output %q: %w", port.String(), err)
	}
	debug.Log("midi", "output open: %s", port.String())
	if channel < 1 || channel > 16 {
		channel = 1
	}
	return &Output{
		clock:       clock,
		send:        send,
		baseChannel: channel - 1,
		timers:      make(map[*time.Timer]struct{}),
		sounding:    make(map[soundingKey]int),
	}, nil
}

func findOutPort(name string) (drivers.Out, error) {
	ports := gomidi.GetOutPorts()
	if len(ports) == 0 {
		return nil, fmt.Errorf("no MIDI output ports")
	}
	if name == "" {
		return ports[0], nil
	}
	lower := strings.ToLower(name)
	for _, p := range ports {
		if strings.Contains(strings.ToLower(p.String()), lower) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no MIDI output port matching %q", name)
}

func (o *Output) channelFor(voice string) uint8 {
	if voice == engine.VoiceClick {
		return clickChannel
	}
	ch := o.baseChannel + voiceOffsets[voice]
	if ch > 15 {
		ch = 15
	}
	return ch
}

// PlayNote schedules a note-on at the given clock time. Notes that don't
// parse are skipped, never fatal.
func (o *Output) PlayNote(note string, at float64, voice string) {
	pitch, ok := notePitch(note)
	if !ok {
		return
	}
	ch := o.channelFor(voice)
	o.at(at, func() {
		o.mu.Lock()
		o.sounding[soundingKey{ch, pitch}]++
		o.mu.Unlock()
		o.send(gomidi.NoteOn(ch, pitch, 100))
	})
}

// offBias nudges scheduled offs a millisecond early. At a gate of 1.0 the
// off of one step and the on of the next share a deadline; the off must win
// or it kills the note that just started.
const offBias = 0.001

// StopNote schedules a note-off at the given clock time. The release hint
// has no MIDI representation and is ignored.
func (o *Output) StopNote(note string, release float64, at float64) {
	// Stops carry no voice hint; try every channel the note is live on.
	pitch, ok := notePitch(note)
	if !ok {
		return
	}
	o.at(at-offBias, func() {
		o.mu.Lock()
		var channels []uint8
		for key, n := range o.sounding {
			if key.pitch == pitch && n > 0 {
				channels = append(channels, key.channel)
				o.sounding[key] = n - 1
			}
		}
		o.mu.Unlock()
		if len(channels) == 0 {
			channels = []uint8{o.baseChannel}
		}
		for _, ch := range channels {
			o.send(gomidi.NoteOff(ch, pitch))
		}
	})
}

// StopAllNotes silences every channel immediately, including notes whose
// timers haven't fired yet.
func (o *Output) StopAllNotes() {
	o.mu.Lock()
	for t := range o.timers {
		t.Stop()
	}
	o.timers = make(map[*time.Timer]struct{})
	o.sounding = make(map[soundingKey]int)
	o.mu.Unlock()
	for ch := uint8(0); ch < 16; ch++ {
		o.send(gomidi.ControlChange(ch, 123, 0)) // all notes off
	}
}

// Close stops pending timers and silences the port.
func (o *Output) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.StopAllNotes()
}

// at arms a timer that fires fn at the given clock time (immediately if the
// time has already passed).
func (o *Output) at(when float64, fn func()) {
	delay := time.Duration((when - o.clock()) * float64(time.Second))
	if delay < 0 {
		delay = 0
	}
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		o.mu.Lock()
		delete(o.timers, t)
		closed := o.closed
		o.mu.Unlock()
		if !closed {
			fn()
		}
	})
	o.timers[t] = struct{}{}
	o.mu.Unlock()
}

func notePitch(note string) (uint8, bool) {
	pitch, ok := notes.Pitch(note)
	if !ok {
		debug.Log("midi", "unparseable note %q skipped", note)
	}
	return pitch, ok
}
