package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"go-loopstation/chord"
	"go-loopstation/config"
	"go-loopstation/debug"
	"go-loopstation/engine"
	"go-loopstation/midi"
	"go-loopstation/notes"
	"go-loopstation/song"
	"go-loopstation/tui"
)

// chordOctave is where resolved chords are voiced.
const chordOctave = 3

var playCmd = &cobra.Command{
	Use:   "play [song.yaml]",
	Short: "Run the instrument (optionally preloading a song sheet)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	clock := engine.SystemClock()

	// No MIDI output is not fatal: the schedulers run against a silent
	// engine so the UI and state machine still work.
	var sound engine.SoundEngine
	out, err := midi.OpenOutput(cfg.MIDI.OutPort, cfg.MIDI.Channel, clock)
	if err != nil {
		fmt.Println("no MIDI output:", err)
		sound = engine.NopSound{}
	} else {
		sound = out
		defer out.Close()
	}

	eng := engine.New(clock, sound)
	applyConfig(eng, cfg)

	// Host glue: the song player deals in chord names; resolve them to
	// pitches here and feed the sound engine.
	wireChords(eng, sound)

	songs := findSongs(cfg)
	var loadedName string
	if len(args) == 1 {
		loadedName, err = loadSong(eng, args[0])
		if err != nil {
			return err
		}
	}

	go eng.Run()
	defer eng.Shutdown()

	deviceMgr := midi.NewDeviceManager(cfg.MIDI.InPort)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go deviceMgr.Run(ctx)
	go routeKeyboards(deviceMgr, eng)

	m := tui.NewModel(eng, deviceMgr, songs)
	m.LoadSong = func(path string) (string, error) {
		return loadSong(eng, path)
	}
	m.SetSongName(loadedName)

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}

// applyConfig pushes startup settings into the engine.
func applyConfig(eng *engine.Engine, cfg *config.Config) {
	eng.SetTempo(cfg.Tempo)
	eng.Looper.Bars = cfg.LoopBars
	eng.Looper.CountInMeasures = cfg.CountInMeasures

	s := engine.DefaultArpSettings()
	s.Latch = cfg.Arp.Latch
	s.Range = cfg.Arp.Range
	s.Gate = cfg.Arp.Gate
	switch cfg.Arp.Direction {
	case "down":
		s.Direction = engine.DirDown
	case "up-down":
		s.Direction = engine.DirUpDown
	case "random":
		s.Direction = engine.DirRandom
	case "played":
		s.Direction = engine.DirPlayed
	}
	switch cfg.Arp.Rate {
	case "1/4":
		s.Rate = engine.RateQuarter
	case "1/16":
		s.Rate = engine.RateSixteenth
	case "1/32":
		s.Rate = engine.RateThirtySecond
	}
	eng.Arp.SetSettings(s)
}

// wireChords turns chord-name callbacks into note events. A name that
// doesn't resolve skips that one chord; the sequence keeps going.
func wireChords(eng *engine.Engine, sound engine.SoundEngine) {
	eng.Song.OnPlayChord = func(name string, t float64) {
		voiced, err := chord.Notes(name, chordOctave)
		if err != nil {
			debug.Log("song", "skipping chord: %v", err)
			return
		}
		for _, n := range voiced {
			sound.PlayNote(n, t, engine.VoiceChord)
		}
	}
	eng.Song.OnStopChord = func(name string, t float64) {
		voiced, err := chord.Notes(name, chordOctave)
		if err != nil {
			return
		}
		for _, n := range voiced {
			sound.StopNote(n, 0, t)
		}
	}
}

// routeKeyboards fans MIDI keyboard events from every connected controller
// into the engine.
func routeKeyboards(dm *midi.DeviceManager, eng *engine.Engine) {
	for ev := range dm.Events() {
		if ev.Type != midi.DeviceConnected {
			continue
		}
		go func(c midi.Controller) {
			for ev := range c.NoteEvents() {
				name := notes.Name(ev.Note)
				if ev.On {
					eng.NoteOn(name)
				} else {
					eng.NoteOff(name)
				}
			}
		}(ev.Controller)
	}
}

func loadSong(eng *engine.Engine, path string) (string, error) {
	f, err := song.Load(path)
	if err != nil {
		return "", err
	}
	bpm := f.Tempo
	if bpm == 0 {
		bpm = eng.Tempo()
	}
	eng.LoadSong(f.EngineMeasures(), bpm)
	return f.Name, nil
}

func findSongs(cfg *config.Config) []string {
	if cfg.SongsDir == "" {
		return nil
	}
	songs, err := song.List(cfg.SongsDir)
	if err != nil {
		debug.Log("song", "list %s: %v", cfg.SongsDir, err)
		return nil
	}
	return songs
}
