// Package chord resolves chord names ("Am", "G7", "F#maj7") into pitched
// note lists the sound engine can play. The schedulers never see pitches;
// they pass chord names to host glue built on this package.
package chord

import (
	"fmt"
	"strings"

	"go-loopstation/notes"
)

// Interval tables per quality, in semitones above the root.
var qualities = map[string][]int{
	"":      {0, 4, 7},
	"maj":   {0, 4, 7},
	"m":     {0, 3, 7},
	"min":   {0, 3, 7},
	"dim":   {0, 3, 6},
	"aug":   {0, 4, 8},
	"sus2":  {0, 2, 7},
	"sus4":  {0, 5, 7},
	"6":     {0, 4, 7, 9},
	"m6":    {0, 3, 7, 9},
	"7":     {0, 4, 7, 10},
	"maj7":  {0, 4, 7, 11},
	"m7":    {0, 3, 7, 10},
	"min7":  {0, 3, 7, 10},
	"m7b5":  {0, 3, 6, 10},
	"dim7":  {0, 3, 6, 9},
	"9":     {0, 4, 7, 10, 14},
	"maj9":  {0, 4, 7, 11, 14},
	"m9":    {0, 3, 7, 10, 14},
	"add9":  {0, 4, 7, 14},
	"7sus4": {0, 5, 7, 10},
}

// Notes resolves a chord name into note names rooted in the given octave.
// Unknown names return an error so the caller can skip the one event and
// keep the scheduler running.
func Notes(name string, octave int) ([]string, error) {
	root, quality, err := parse(name)
	if err != nil {
		return nil, err
	}
	intervals, ok := qualities[quality]
	if !ok {
		return nil, fmt.Errorf("unknown chord quality %q in %q", quality, name)
	}
	rootNote := fmt.Sprintf("%s%d", root, octave)
	if _, ok := notes.Pitch(rootNote); !ok {
		return nil, fmt.Errorf("unplayable chord root %q", rootNote)
	}
	out := make([]string, len(intervals))
	for i, semi := range intervals {
		out[i] = notes.Transpose(rootNote, semi)
	}
	return out, nil
}

// parse splits "F#m7" into root "F#" and quality "m7".
func parse(name string) (root, quality string, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", fmt.Errorf("empty chord name")
	}
	i := 1
	if len(name) > 1 && (name[1] == '#' || name[1] == 'b') {
		i = 2
	}
	root = strings.ToUpper(name[:1]) + name[1:i]
	if _, ok := notes.PitchClass(root); !ok {
		return "", "", fmt.Errorf("unknown chord root in %q", name)
	}
	return root, name[i:], nil
}
