// Package song loads YAML song sheets: a name, tempo, and an ordered list
// of measures holding one whole-measure chord or two half-measure chords.
package song

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"go-loopstation/engine"
)

// File is a song sheet on disk.
//
//	name: Autumn Loop
//	tempo: 96
//	measures:
//	  - [Am]
//	  - [Dm, E7]
//	  - [Am, ""]
type File struct {
	Name     string     `yaml:"name"`
	Tempo    float64    `yaml:"tempo"`
	Measures [][]string `yaml:"measures"`
}

// Load reads and validates a song sheet.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read song: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse song %s: %w", filepath.Base(path), err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("song %s: %w", filepath.Base(path), err)
	}
	return &f, nil
}

func (f *File) validate() error {
	if len(f.Measures) == 0 {
		return fmt.Errorf("no measures")
	}
	for i, m := range f.Measures {
		if len(m) < 1 || len(m) > 2 {
			return fmt.Errorf("measure %d has %d chord slots, want 1 or 2", i+1, len(m))
		}
	}
	if f.Tempo != 0 && (f.Tempo < 20 || f.Tempo > 300) {
		return fmt.Errorf("tempo %.1f out of range", f.Tempo)
	}
	return nil
}

// EngineMeasures converts the sheet into the song player's measure list.
func (f *File) EngineMeasures() []engine.SongMeasure {
	out := make([]engine.SongMeasure, len(f.Measures))
	for i, m := range f.Measures {
		out[i] = engine.SongMeasure{Chords: append([]string(nil), m...)}
	}
	return out
}

// List returns the song sheets in a directory, sorted by name.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
