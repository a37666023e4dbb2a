package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"loopseq/debug"
	"loopseq/midi"
	"loopseq/sequencer"
	"loopseq/theme"
	"loopseq/widgets"
)

// Live trigger from the computer keyboard
const (
	triggerPitch    = 60
	triggerVelocity = 0.8
	triggerLength   = 0.25 // seconds
)

var keyHelp = []widgets.KeyBinding{
	{Key: "p", Desc: "play/stop"},
	{Key: "n", Desc: "next cycle"},
	{Key: "1-8", Desc: "track"},
	{Key: "m", Desc: "mute"},
	{Key: "[/]", Desc: "length"},
	{Key: "+/-", Desc: "tempo"},
	{Key: "space", Desc: "trigger"},
	{Key: "q", Desc: "quit"},
}

type Model struct {
	Manager      *sequencer.Manager
	DeviceMgr    *midi.DeviceManager // may be nil (no live input)
	Theme        *theme.Theme
	InputChannel int

	quitting   bool
	status     string
	controller midi.Controller // current keyboard (may be nil)
}

type UpdateMsg struct{}

type DeviceEventMsg midi.DeviceEvent

// deviceClosedMsg is sent once the device manager has shut down
type deviceClosedMsg struct{}

func NewModel(manager *sequencer.Manager, deviceMgr *midi.DeviceManager, th *theme.Theme) Model {
	return Model{
		Manager:   manager,
		DeviceMgr: deviceMgr,
		Theme:     th,
	}
}

func ListenForUpdates(manager *sequencer.Manager) tea.Cmd {
	return func() tea.Msg {
		<-manager.UpdateChan
		return UpdateMsg{}
	}
}

func ListenForDevices(deviceMgr *midi.DeviceManager) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-deviceMgr.Events()
		if !ok {
			return deviceClosedMsg{}
		}
		return DeviceEventMsg(event)
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{ListenForUpdates(m.Manager)}
	if m.DeviceMgr != nil {
		cmds = append(cmds, ListenForDevices(m.DeviceMgr))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case UpdateMsg:
		return m, ListenForUpdates(m.Manager)

	case DeviceEventMsg:
		event := midi.DeviceEvent(msg)
		switch event.Type {
		case midi.DeviceConnected:
			if m.controller == nil && event.Controller.Type() == midi.ControllerKeyboard {
				m.controller = event.Controller
				m.Manager.SetMIDIInput(event.Controller, m.InputChannel)
			}
			m.status = "connected " + event.ID
		case midi.DeviceDisconnected:
			if m.controller != nil && m.controller.ID() == event.ID {
				m.controller = nil
			}
			m.status = "disconnected " + event.ID
		}
		return m, ListenForDevices(m.DeviceMgr)
	}

	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	focused := m.Manager.Focused()
	var err error

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		m.Manager.Stop()
		return m, tea.Quit

	case "p":
		if m.Manager.Playing() {
			m.Manager.Stop()
		} else {
			m.Manager.Play()
		}

	case "n":
		m.Manager.PlayOnNextCycle()

	case "+", "=":
		m.Manager.SetTempo(m.Manager.Tempo() + 5)

	case "-", "_":
		m.Manager.SetTempo(m.Manager.Tempo() - 5)

	case "[", "]":
		err = m.stepLength(focused, key == "]")

	case "m":
		var t *sequencer.Track
		if t, err = m.Manager.Track(focused); err == nil {
			err = m.Manager.SetMuted(focused, !t.Muted)
		}

	case " ":
		err = m.Manager.TriggerNote(focused, triggerPitch, triggerVelocity, triggerLength)

	case "1", "2", "3", "4", "5", "6", "7", "8":
		err = m.Manager.SetFocused(int(key[0] - '1'))
	}

	m.status = ""
	if err != nil {
		m.status = err.Error()
		debug.Log("tui", "key %q: %v", key, err)
	}
	return m, nil
}

// stepLength grows or shrinks a track's loop by one beat
func (m Model) stepLength(idx int, grow bool) error {
	t, err := m.Manager.Track(idx)
	if err != nil {
		return err
	}
	length := t.Engine().LoopLength()
	if grow {
		length += 4
	} else {
		length -= 4
	}
	return m.Manager.SetLoopLength(idx, length)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	s := m.Manager.Snapshot()

	// Styles
	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	fgStyle := lipgloss.NewStyle().Foreground(m.Theme.FG())
	focusStyle := lipgloss.NewStyle().Foreground(m.Theme.Cursor()).Bold(true)
	warnStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())

	playState := "STOP"
	switch {
	case s.Pending:
		playState = "CUED"
	case s.Waiting():
		playState = "WAIT"
	case s.Playing:
		playState = "PLAY"
	}

	deviceStatus := ""
	if m.controller != nil {
		deviceStatus = "  in:" + m.controller.ID()
	}

	header := headerStyle.Render(fmt.Sprintf("loopseq  %s  %5.1fbpm%s", playState, s.Tempo, deviceStatus))

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")

	for i, t := range s.Tracks {
		nameStyle := fgStyle
		marker := "  "
		if i == s.Focused {
			nameStyle = focusStyle
			marker = "> "
		}
		flag := " "
		switch {
		case t.Muted:
			flag = string(m.Theme.Symbols.Muted)
		case t.Waiting:
			flag = string(m.Theme.Symbols.Waiting)
		}

		out.WriteString(nameStyle.Render(fmt.Sprintf("%s%d %-8s ch%-2d", marker, i+1, t.Name, t.Channel)))
		out.WriteString(" " + flag + " ")
		out.WriteString(widgets.RenderLane(m.Theme, t.Notes, t.Length, t.Sixteenth, t.Muted))
		out.WriteString(dimStyle.Render(fmt.Sprintf("  %3d/%d", int(t.Sixteenth)+1, t.Length)))
		if held := widgets.HeldText(t.Held); held != "" {
			out.WriteString("  " + headerStyle.Render(held))
		}
		if t.Dangling > 0 {
			out.WriteString(warnStyle.Render(fmt.Sprintf("  %d hidden", t.Dangling)))
		}
		out.WriteString("\n")
		if i == s.Focused {
			out.WriteString(strings.Repeat(" ", 22))
			out.WriteString(widgets.RenderPosition(m.Theme, t.Length, t.Sixteenth))
			out.WriteString("\n")
		}
	}

	out.WriteString("\n")
	out.WriteString(dimStyle.Render(widgets.RenderKeyLine(keyHelp)))
	if m.status != "" {
		out.WriteString("\n")
		out.WriteString(warnStyle.Render(m.status))
	}

	return out.String()
}
