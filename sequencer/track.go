package sequencer

import (
	"loopseq/grid"
	"loopseq/voice"
)

// Track is one looping grid bound to one output channel. The engine feeds
// scheduled notes and the voice controller carries live input on the same
// channel.
type Track struct {
	Name    string
	Channel uint8 // MIDI output channel (1-16)
	Muted   bool

	grid       *grid.Grid
	engine     *Engine
	voice      *voice.Controller
	dispatched uint64
}

func (t *Track) Grid() *grid.Grid { return t.grid }

func (t *Track) Engine() *Engine { return t.engine }

func (t *Track) Voice() *voice.Controller { return t.voice }

// Dispatched returns how many notes the engine has handed to the voice
func (t *Track) Dispatched() uint64 { return t.dispatched }

// Tick fires due timed releases and schedules the next window. A muted
// track's engine is disabled, so only releases fire.
func (t *Track) Tick(now float64) int {
	t.voice.Tick(now)
	return t.engine.Tick(now)
}

// sounding returns the ids of grid notes under the playhead
func (t *Track) sounding(now float64) []uint64 {
	var ids []uint64
	t.grid.Each(func(n grid.Note) {
		if t.engine.NotePlaying(n, now) {
			ids = append(ids, n.ID)
		}
	})
	return ids
}

func (t *Track) state(now float64) TrackState {
	return TrackState{
		Name:       t.Name,
		Channel:    t.Channel,
		Muted:      t.Muted,
		Length:     t.grid.Length(),
		Sixteenth:  t.engine.CurrentSixteenth(now),
		Notes:      t.grid.Notes(),
		Sounding:   t.sounding(now),
		Held:       t.voice.ActiveSnapshot(),
		Dispatched: t.dispatched,
		Dangling:   len(t.grid.Dangling()),
		Enabled:    t.engine.Enabled(),
		Waiting:    t.engine.Waiting(),
	}
}
