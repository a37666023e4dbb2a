package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"loopseq/clock"
	"loopseq/sequencer"
	"loopseq/theme"
)

type nopBackend struct{ stops int }

func (b *nopBackend) StartNow(uint8, float64)                         {}
func (b *nopBackend) StartScheduled(uint8, float64, float64, float64) {}
func (b *nopBackend) StopNow(uint8)                                   {}
func (b *nopBackend) StopAll()                                        { b.stops++ }

func newTestModel(t *testing.T) (Model, *nopBackend) {
	t.Helper()
	mgr := sequencer.NewManager(clock.NewManual(0), 120)
	b := &nopBackend{}
	if _, err := mgr.AddTrack("Lead", 1, 16, b); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if _, err := mgr.AddNote(0, 60, 1, 0, 4); err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	return NewModel(mgr, nil, theme.New(theme.Default())), b
}

func press(m Model, key string) Model {
	var msg tea.KeyMsg
	if key == " " {
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	} else {
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestModelTransportKeys(t *testing.T) {
	m, b := newTestModel(t)
	if !strings.Contains(m.View(), "STOP") {
		t.Fatalf("expected STOP in header")
	}
	m = press(m, "p")
	if !m.Manager.Playing() || !strings.Contains(m.View(), "PLAY") {
		t.Fatalf("p should start playback")
	}
	m = press(m, "p")
	if m.Manager.Playing() || b.stops != 1 {
		t.Fatalf("second p should stop and silence")
	}
}

func TestModelTempoAndLength(t *testing.T) {
	m, _ := newTestModel(t)
	m = press(m, "+")
	if m.Manager.Tempo() != 125 {
		t.Fatalf("tempo %v, want 125", m.Manager.Tempo())
	}
	m = press(m, "]")
	tr, _ := m.Manager.Track(0)
	if tr.Engine().LoopLength() != 20 {
		t.Fatalf("length %d, want 20", tr.Engine().LoopLength())
	}
}

func TestModelReportsErrors(t *testing.T) {
	m, _ := newTestModel(t)
	m = press(m, "5")
	if m.status == "" || m.Manager.Focused() != 0 {
		t.Fatalf("focusing a missing track should report an error and keep focus")
	}
	m = press(m, "m")
	if !strings.Contains(m.View(), string(m.Theme.Symbols.Muted)) {
		t.Fatalf("muted flag not shown")
	}
}
