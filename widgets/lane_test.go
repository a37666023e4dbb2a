package widgets

import (
	"testing"

	"loopseq/grid"
)

func TestLaneCells(t *testing.T) {
	notes := []grid.Note{
		{Pitch: 60, Start: 0, End: 2},
		{Pitch: 64, Start: 2.5, End: 3.25},
		{Pitch: 67, Start: 6, End: 9},  // wraps onto cell 0
		{Pitch: 72, Start: 9, End: 10}, // dangling
	}
	got := LaneCells(notes, 8)
	want := []CellKind{CellHead, CellTail, CellHead, CellTail, CellEmpty, CellEmpty, CellHead, CellTail}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("cell %d = %d, want %d (all %v)", i, got[i], want[i], got)
		}
	}
}

func TestHeldText(t *testing.T) {
	got := HeldText(map[uint8]int{64: 2, 60: 1})
	if got != "C4 E4x2" {
		t.Fatalf("HeldText = %q", got)
	}
	if HeldText(nil) != "" {
		t.Fatalf("empty map should render empty")
	}
}

func TestRenderKeyLine(t *testing.T) {
	got := RenderKeyLine([]KeyBinding{{"p", "play"}, {"q", "quit"}})
	if got != "p:play  q:quit" {
		t.Fatalf("RenderKeyLine = %q", got)
	}
}
