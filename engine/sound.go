package engine

// Voice hints passed to the SoundEngine so an implementation can route
// different sources to different channels or patches.
const (
	VoiceLive  = "live"
	VoiceLoop  = "loop"
	VoiceArp   = "arp"
	VoiceChord = "chord"
	VoiceClick = "click"
)

// SoundEngine is the downstream consumer of timestamped note events. The
// engine honors the timestamp rather than sounding the note on arrival;
// callers may therefore emit events out of wall-clock order as long as the
// timestamps are right.
type SoundEngine interface {
	// PlayNote starts a note at the given clock time.
	PlayNote(note string, at float64, voice string)

	// StopNote ends a note at the given clock time. release is a hint
	// for the note's release envelope in seconds.
	StopNote(note string, release float64, at float64)

	// StopAllNotes immediately silences everything, including notes
	// whose timestamps have not come up yet.
	StopAllNotes()
}

// NopSound is a SoundEngine that discards everything. Used when no MIDI
// output is available so the schedulers can still run.
type NopSound struct{}

func (NopSound) PlayNote(string, float64, string)  {}
func (NopSound) StopNote(string, float64, float64) {}
func (NopSound) StopAllNotes()                     {}
