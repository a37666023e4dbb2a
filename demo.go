package main

import (
	"fmt"

	"loopseq/sequencer"
)

type demoNote struct {
	pitch      uint8
	velocity   float64
	start, end float64
}

// demoPatterns are filled into the tracks in order. Notes starting past a
// track's loop length are skipped.
var demoPatterns = [][]demoNote{
	// lead: arpeggio with a note ringing over the loop boundary
	{
		{60, 0.9, 0, 1}, {64, 0.7, 2, 3}, {67, 0.7, 4, 5}, {72, 0.8, 6, 8},
		{67, 0.6, 10, 11}, {64, 0.6, 12, 13}, {62, 0.7, 15, 17},
	},
	// bass: two bars
	{
		{36, 1, 0, 3}, {36, 0.8, 6, 7}, {43, 0.9, 8, 11},
		{41, 1, 16, 19}, {41, 0.8, 22, 23}, {43, 0.9, 24, 30},
	},
	// drums: kick, snare, hats
	{
		{36, 1, 0, 0.5}, {36, 1, 8, 8.5}, {38, 0.9, 4, 4.5}, {38, 0.9, 12, 12.5},
		{42, 0.5, 0, 0.25}, {42, 0.5, 2, 2.25}, {42, 0.5, 4, 4.25}, {42, 0.5, 6, 6.25},
		{42, 0.5, 8, 8.25}, {42, 0.5, 10, 10.25}, {42, 0.5, 12, 12.25}, {42, 0.5, 14, 14.25},
	},
}

func loadDemo(m *sequencer.Manager) error {
	for i, t := range m.Tracks() {
		if i >= len(demoPatterns) {
			break
		}
		length := float64(t.Engine().LoopLength())
		for _, n := range demoPatterns[i] {
			if n.start >= length {
				continue
			}
			if _, err := m.AddNote(i, n.pitch, n.velocity, n.start, n.end); err != nil {
				return fmt.Errorf("demo pattern %d: %w", i, err)
			}
		}
	}
	return nil
}
