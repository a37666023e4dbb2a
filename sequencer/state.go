package sequencer

import "loopseq/grid"

// State is a point-in-time copy of everything the UI draws
type State struct {
	Playing bool
	Pending bool // a scheduled start has not been reached
	Tempo   float64
	Now     float64
	Focused int
	Tracks  []TrackState
}

// TrackState holds the per-track part of a State
type TrackState struct {
	Name       string
	Channel    uint8
	Muted      bool
	Length     int     // sixteenths
	Sixteenth  float64 // playhead
	Notes      []grid.Note
	Sounding   []uint64      // ids of grid notes under the playhead
	Held       map[uint8]int // live-held pitches and their holder counts
	Dispatched uint64
	Dangling   int
	Enabled    bool
	Waiting    bool // held until the next loop boundary
}

// Waiting reports whether any track is held until the next loop boundary
func (s State) Waiting() bool {
	for _, t := range s.Tracks {
		if t.Waiting {
			return true
		}
	}
	return false
}
