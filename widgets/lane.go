package widgets

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"loopseq/grid"
	"loopseq/theme"
)

// CellKind is what one sixteenth of a lane shows
type CellKind int

const (
	CellEmpty CellKind = iota
	CellTail
	CellHead
)

// LaneCells folds every pitch of a grid into one row of length cells. A note
// ringing past the loop end wraps its tail onto the start of the row.
// Dangling notes are left out.
func LaneCells(notes []grid.Note, length int) []CellKind {
	cells := make([]CellKind, length)
	if length <= 0 {
		return cells
	}
	for _, n := range notes {
		if n.Start >= float64(length) {
			continue
		}
		head := int(n.Start)
		end := int(n.End)
		if float64(end) < n.End {
			end++ // partial cell still shows the tail
		}
		if end > head+length {
			end = head + length
		}
		for i := head + 1; i < end; i++ {
			if c := i % length; cells[c] == CellEmpty {
				cells[c] = CellTail
			}
		}
		cells[head] = CellHead
	}
	return cells
}

// RenderLane draws a track lane with the playhead cell highlighted
func RenderLane(th *theme.Theme, notes []grid.Note, length int, sixteenth float64, muted bool) string {
	cells := LaneCells(notes, length)
	noteStyle := lipgloss.NewStyle().Foreground(th.Accent())
	if muted {
		noteStyle = noteStyle.Foreground(th.Muted())
	}
	dimStyle := lipgloss.NewStyle().Foreground(th.Muted())
	headStyle := lipgloss.NewStyle().Foreground(th.BG()).Background(th.Success())

	playhead := int(sixteenth)
	var out strings.Builder
	for i, c := range cells {
		var r rune
		style := noteStyle
		switch c {
		case CellHead:
			r = th.Symbols.NoteHead
		case CellTail:
			r = th.Symbols.NoteTail
		default:
			r = th.Symbols.Empty
			if i%4 == 0 {
				r = th.Symbols.Beat
			}
			style = dimStyle
		}
		if i == playhead {
			style = headStyle
		}
		out.WriteString(style.Render(string(r)))
	}
	return out.String()
}

// RenderPosition draws a position bar of length cells with a marker over
// the current sixteenth
func RenderPosition(th *theme.Theme, length int, sixteenth float64) string {
	doneStyle := lipgloss.NewStyle().Foreground(th.Active())
	restStyle := lipgloss.NewStyle().Foreground(th.Muted())
	headStyle := lipgloss.NewStyle().Foreground(th.Success())

	playhead := int(sixteenth)
	var out strings.Builder
	for i := 0; i < length; i++ {
		switch {
		case i < playhead:
			out.WriteString(doneStyle.Render(string(th.Symbols.Bar)))
		case i == playhead:
			out.WriteString(headStyle.Render(string(th.Symbols.Playhead)))
		default:
			out.WriteString(restStyle.Render(string(th.Symbols.Rest)))
		}
	}
	return out.String()
}

// HeldText lists live-held pitches in order, with the holder count when a
// pitch is held more than once: "C4 E4x2"
func HeldText(held map[uint8]int) string {
	pitches := make([]int, 0, len(held))
	for p := range held {
		pitches = append(pitches, int(p))
	}
	sort.Ints(pitches)

	parts := make([]string, len(pitches))
	for i, p := range pitches {
		parts[i] = grid.PitchName(uint8(p))
		if n := held[uint8(p)]; n > 1 {
			parts[i] += fmt.Sprintf("x%d", n)
		}
	}
	return strings.Join(parts, " ")
}
