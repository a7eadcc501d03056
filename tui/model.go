package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-loopstation/engine"
	"go-loopstation/midi"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	activeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("84"))
	recStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	queueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// noteKeys maps the top keyboard rows to semitones above C in the current
// octave, DAW style: q=C, 2=C#, w=D ... i = C an octave up.
var noteKeys = map[string]int{
	"q": 0, "2": 1, "w": 2, "3": 3, "e": 4, "r": 5, "5": 6,
	"t": 7, "6": 8, "y": 9, "7": 10, "u": 11, "i": 12,
}

// tapLength is how long a computer-keyboard note sounds; terminals don't
// report key releases, so taps substitute for held keys.
const tapLength = 250 * time.Millisecond

type Model struct {
	Engine    *engine.Engine
	DeviceMgr *midi.DeviceManager

	// LoadSong is host glue: load the sheet at path into the engine and
	// return its display name.
	LoadSong func(path string) (string, error)

	songNames []string
	songIdx   int
	songName  string
	status    string
	quitting  bool
}

type UpdateMsg struct{}

// NewModel builds the performance UI around a running engine. songNames
// are the loadable song sheets, cycled with "o".
func NewModel(eng *engine.Engine, deviceMgr *midi.DeviceManager, songNames []string) Model {
	return Model{
		Engine:    eng,
		DeviceMgr: deviceMgr,
		songNames: songNames,
		songIdx:   -1,
	}
}

// SetSongName records the loaded song for display.
func (m *Model) SetSongName(name string) { m.songName = name }

// LoadSongMsg asks the host to load the song sheet at Path.
type LoadSongMsg struct{ Path string }

func ListenForUpdates(eng *engine.Engine) tea.Cmd {
	return func() tea.Msg {
		<-eng.UpdateChan
		return UpdateMsg{}
	}
}

func (m Model) Init() tea.Cmd {
	return ListenForUpdates(m.Engine)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case UpdateMsg:
		return m, ListenForUpdates(m.Engine)

	case LoadSongMsg:
		if m.LoadSong != nil {
			name, err := m.LoadSong(msg.Path)
			if err != nil {
				m.status = err.Error()
			} else {
				m.songName = name
				m.status = ""
			}
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if semis, ok := noteKeys[key]; ok {
		note := noteName(semis)
		m.Engine.NoteOn(note)
		eng := m.Engine
		time.AfterFunc(tapLength, func() { eng.NoteOff(note) })
		return m, nil
	}

	switch key {
	case "ctrl+c", "esc":
		m.quitting = true
		m.Engine.Shutdown()
		return m, tea.Quit

	case " ":
		if m.Engine.Snapshot().ClockRunning {
			m.Engine.StopClock()
		} else {
			m.Engine.StartClock()
		}

	case "R", "f2":
		m.Engine.StartRecording()
	case "P", "f3":
		m.Engine.TogglePlayback()
	case "backspace", "delete":
		m.Engine.ClearLoop()
	case "1", "4", "8", "9":
		m.Engine.SwitchSlot(slotForKey(key))

	case "a":
		s := m.Engine.Arp.Settings()
		s.On = !s.On
		m.Engine.Arp.SetSettings(s)
	case "l":
		s := m.Engine.Arp.Settings()
		s.Latch = !s.Latch
		m.Engine.Arp.SetSettings(s)
	case "k":
		s := m.Engine.Arp.Settings()
		s.Sync = !s.Sync
		m.Engine.Arp.SetSettings(s)
	case "d":
		s := m.Engine.Arp.Settings()
		s.Direction = (s.Direction + 1) % 5
		m.Engine.Arp.SetSettings(s)
	case "f":
		s := m.Engine.Arp.Settings()
		s.Rate = (s.Rate + 1) % 4
		m.Engine.Arp.SetSettings(s)
	case "g":
		s := m.Engine.Arp.Settings()
		s.Range = s.Range%3 + 1
		m.Engine.Arp.SetSettings(s)
	case "[":
		s := m.Engine.Arp.Settings()
		s.Gate -= 0.05
		m.Engine.Arp.SetSettings(s)
	case "]":
		s := m.Engine.Arp.Settings()
		s.Gate += 0.05
		m.Engine.Arp.SetSettings(s)

	case "s":
		m.Engine.ToggleSong()
	case "n":
		m.Engine.SetMetronome(!m.Engine.Metronome())
	case "o":
		if len(m.songNames) > 0 {
			m.songIdx = (m.songIdx + 1) % len(m.songNames)
			return m, func() tea.Msg { return LoadSongMsg{Path: m.songNames[m.songIdx]} }
		}

	case "+", "=":
		m.Engine.SetTempo(m.Engine.Tempo() + 5)
	case "-", "_":
		m.Engine.SetTempo(m.Engine.Tempo() - 5)
	case "z":
		m.Engine.SetOctave(m.Engine.Octave() - 1)
	case "x":
		m.Engine.SetOctave(m.Engine.Octave() + 1)
	}
	return m, nil
}

// slotForKey maps the four slot keys onto slot names.
func slotForKey(key string) string {
	switch key {
	case "1":
		return "A"
	case "4":
		return "B"
	case "8":
		return "C"
	default:
		return "D"
	}
}

// noteName builds the note for a tapped key in octave 4 before the live
// octave offset (the engine applies the offset itself).
func noteName(semis int) string {
	names := [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
	octave := 4 + semis/12
	return fmt.Sprintf("%s%d", names[semis%12], octave)
}

func (m Model) View() string {
	if m.quitting {
		return "bye\n"
	}
	snap := m.Engine.Snapshot()

	var b strings.Builder
	b.WriteString(titleStyle.Render("go-loopstation"))
	b.WriteString("\n\n")

	// Clock line
	clock := "stopped"
	if snap.ClockRunning {
		marks := []string{"·", "·", "·", "·"}
		if snap.Beat >= 1 && snap.Beat <= 4 {
			marks[snap.Beat-1] = "●"
		}
		clock = strings.Join(marks, " ")
	}
	fmt.Fprintf(&b, "%s %s   %s %.0f bpm   %s %+d\n",
		labelStyle.Render("clock"), clock,
		labelStyle.Render("tempo"), snap.Tempo,
		labelStyle.Render("octave"), snap.Octave)

	// Loop line
	state := snap.LoopState.String()
	switch snap.LoopState {
	case engine.LoopRecording, engine.LoopOverdubbing:
		state = recStyle.Render(state)
	case engine.LoopPlaying:
		state = activeStyle.Render(state)
	case engine.LoopCountingIn:
		state = queueStyle.Render(fmt.Sprintf("%s %d", state, snap.CountIn))
	}
	fmt.Fprintf(&b, "%s  %s  %s\n", labelStyle.Render("loop"), state, progressBar(snap.LoopProgress, 24))

	// Slots: ▶ playing, ◆ queued, · has content
	b.WriteString(labelStyle.Render("slots"))
	for _, name := range engine.SlotNames {
		mark := " "
		if snap.SlotCounts[name] > 0 {
			mark = "·"
		}
		cell := fmt.Sprintf("%s%s", name, mark)
		switch name {
		case snap.ActiveSlot:
			cell = activeStyle.Render("▶" + cell)
		case snap.QueuedSlot:
			cell = queueStyle.Render("◆" + cell)
		default:
			cell = " " + cell
		}
		b.WriteString(" " + cell)
	}
	b.WriteString("\n")

	// Arp line
	arpOn := "off"
	if snap.Arp.On {
		arpOn = activeStyle.Render("on")
	}
	sync := "free"
	if snap.Arp.Sync {
		sync = "sync"
	}
	latch := ""
	if snap.Arp.Latch {
		latch = " latch"
	}
	fmt.Fprintf(&b, "%s   %s %s %s %s gate %.2f range %d%s (%d notes)\n",
		labelStyle.Render("arp"), arpOn, snap.Arp.Direction, snap.Arp.Rate, sync,
		snap.Arp.Gate, snap.Arp.Range, latch, len(snap.ArpPattern))

	// Song line
	songState := "stopped"
	if snap.SongPlaying {
		songState = activeStyle.Render(fmt.Sprintf("measure %d", snap.SongMeasure+1))
	}
	name := m.songName
	if name == "" {
		name = "(no song)"
	}
	metro := ""
	if snap.Metronome {
		metro = "  click"
	}
	fmt.Fprintf(&b, "%s  %s  %s%s\n", labelStyle.Render("song"), name, songState, metro)

	if m.DeviceMgr != nil {
		fmt.Fprintf(&b, "%s  %d connected\n", labelStyle.Render("keys"), len(m.DeviceMgr.Controllers()))
	}

	if m.status != "" {
		fmt.Fprintf(&b, "\n%s\n", labelStyle.Render(m.status))
	}

	b.WriteString("\n" + helpStyle.Render(
		"space clock  R rec  P play  bksp clear  1/4/8/9 slots  a arp  d dir  f rate  g range\n"+
			"l latch  k sync  [ ] gate  s song  o next song  n click  +/- tempo  z/x octave  esc quit\n"+
			"notes: q2w3er5t6y7ui"))
	b.WriteString("\n")
	return b.String()
}

// progressBar renders 0..1 as a fixed-width bar.
func progressBar(p float64, width int) string {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	filled := int(p * float64(width))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}
