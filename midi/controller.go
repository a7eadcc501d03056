package midi

// NoteEvent is sent when a key goes down or up on a keyboard.
type NoteEvent struct {
	Note     uint8
	Velocity uint8
	Channel  uint8
	On       bool
}

// Controller is the interface for MIDI input devices.
type Controller interface {
	ID() string

	// NoteEvents streams key presses and releases.
	NoteEvents() <-chan NoteEvent

	Close() error
}
