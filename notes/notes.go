package notes

import (
	"fmt"
	"strconv"
	"strings"
)

// Semitone offsets within an octave, by pitch-class name.
var semitones = map[string]int{
	"C": 0, "C#": 1, "Db": 1,
	"D": 2, "D#": 3, "Eb": 3,
	"E": 4, "Fb": 4, "E#": 5,
	"F": 5, "F#": 6, "Gb": 6,
	"G": 7, "G#": 8, "Ab": 8,
	"A": 9, "A#": 10, "Bb": 10,
	"B": 11, "Cb": 11, "B#": 0,
}

// Preferred spellings when going from pitch number back to a name.
var names = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Pitch converts a scientific pitch name ("C4", "F#3", "Bb-1") to a MIDI
// note number (C4 = 60). Returns false for anything it can't parse.
func Pitch(name string) (uint8, bool) {
	pc, rest := splitPitchClass(name)
	if pc == "" {
		return 0, false
	}
	semi, ok := semitones[pc]
	if !ok {
		return 0, false
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	n := (octave+1)*12 + semi
	if n < 0 || n > 127 {
		return 0, false
	}
	return uint8(n), true
}

// Name converts a MIDI note number back to a sharp-spelled pitch name.
func Name(pitch uint8) string {
	return fmt.Sprintf("%s%d", names[pitch%12], int(pitch)/12-1)
}

// Transpose shifts a note name by the given number of semitones. Unparseable
// names and out-of-range results come back unchanged so a bad note stays
// bad instead of turning into a different pitch.
func Transpose(name string, delta int) string {
	p, ok := Pitch(name)
	if !ok {
		return name
	}
	n := int(p) + delta
	if n < 0 || n > 127 {
		return name
	}
	return Name(uint8(n))
}

// PitchClass returns the semitone 0..11 for a bare pitch-class name ("C#").
func PitchClass(name string) (int, bool) {
	semi, ok := semitones[name]
	return semi, ok
}

// splitPitchClass splits "F#3" into ("F#", "3"). The octave part may be
// negative ("Bb-1").
func splitPitchClass(name string) (string, string) {
	if name == "" {
		return "", ""
	}
	i := 1
	if len(name) > 1 && (name[1] == '#' || name[1] == 'b') {
		i = 2
	}
	pc := strings.ToUpper(name[:1]) + name[1:i]
	return pc, name[i:]
}
