package tui

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/opengrid-io/fleetkit/discovery"
)

// ErrAborted is returned when the operator quits the picker without
// choosing a device.
var ErrAborted = errors.New("device selection aborted")

// PickerModel is a Bubble Tea model that lets the operator choose one
// device from discovery sightings.
type PickerModel struct {
	candidates []discovery.Sighting
	cursor     int
	chosen     string
	aborted    bool
	width      int
	height     int
}

// NewPickerModel creates a picker over the given sightings.
func NewPickerModel(candidates []discovery.Sighting) PickerModel {
	return PickerModel{candidates: candidates}
}

// Chosen returns the selected device identifier, empty when none.
func (m PickerModel) Chosen() string {
	return m.chosen
}

// Aborted reports whether the operator quit without choosing.
func (m PickerModel) Aborted() bool {
	return m.aborted
}

// Init implements tea.Model.
func (m PickerModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil

		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.candidates)-1 {
				m.cursor++
			}
			return m, nil

		case key.Matches(msg, keys.Choose):
			if len(m.candidates) > 0 {
				m.chosen = m.candidates[m.cursor].Device
			}
			return m, tea.Quit

		case key.Matches(msg, keys.Quit):
			m.aborted = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m PickerModel) View() string {
	if m.chosen != "" || m.aborted {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Select a device"))
	b.WriteString("\n\n")

	for i, s := range m.candidates {
		marker := "  "
		line := fmt.Sprintf("%s  first seen %s", s.Device, s.FirstSeen.Format(time.TimeOnly))
		if i == m.cursor {
			marker = "> "
			line = SelectedStyle.Render(line)
		} else {
			line = ValueStyle.Render(line)
		}
		b.WriteString(marker + line + "\n")
	}

	help := HelpStyle.Render("up/down: move   enter: choose   q: abort")
	return BoxStyle.Render(b.String()) + "\n" + help
}

// keyMap defines key bindings.
type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Choose key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("up/k", "move up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("down/j", "move down"),
	),
	Choose: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "choose"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "abort"),
	),
}

// RunPicker presents the interactive picker and returns the chosen
// device. Satisfies discovery.PromptFunc.
func RunPicker(candidates []discovery.Sighting) (string, error) {
	model := NewPickerModel(candidates)
	p := tea.NewProgram(model, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return "", err
	}

	m, ok := final.(PickerModel)
	if !ok {
		return "", errors.New("picker returned unexpected model")
	}
	if m.Aborted() || m.Chosen() == "" {
		return "", ErrAborted
	}
	return m.Chosen(), nil
}

// StaticList renders the candidates without interaction, for sessions
// where the picker cannot run.
func StaticList(candidates []discovery.Sighting) string {
	var b strings.Builder
	b.WriteString("Discovered devices:\n")
	for i, s := range candidates {
		b.WriteString(fmt.Sprintf("  %d. %s (first seen %s)\n",
			i+1, s.Device, s.FirstSeen.Format(time.TimeOnly)))
	}
	return b.String()
}

// IsInteractive reports whether stdin and stdout are both terminals,
// which the picker needs to run.
func IsInteractive() bool {
	return isTTY(os.Stdin) && isTTY(os.Stdout)
}

func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
