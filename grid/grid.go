package grid

import (
	"fmt"
	"sort"
)

// Row holds the notes of a single pitch lane, ordered by start then by
// insertion.
type Row struct {
	notes []Note
}

func (r *Row) Len() int {
	return len(r.notes)
}

func (r *Row) insert(n Note) {
	i := sort.Search(len(r.notes), func(i int) bool {
		o := r.notes[i]
		return o.Start > n.Start || (o.Start == n.Start && o.ID > n.ID)
	})
	r.notes = append(r.notes, Note{})
	copy(r.notes[i+1:], r.notes[i:])
	r.notes[i] = n
}

func (r *Row) remove(id uint64) (Note, bool) {
	for i, n := range r.notes {
		if n.ID == id {
			r.notes = append(r.notes[:i], r.notes[i+1:]...)
			return n, true
		}
	}
	return Note{}, false
}

// Grid is a loopable timeline of notes, one row per pitch. It is not safe
// for concurrent use; the owner serializes edits with scheduling.
type Grid struct {
	length int
	rows   [NumPitches]Row
	pitch  map[uint64]uint8 // note id -> row
	nextID uint64
	count  int
}

// New creates an empty grid of the given loop length in sixteenths
func New(length int) (*Grid, error) {
	g := &Grid{
		length: DefaultLength,
		pitch:  make(map[uint64]uint8),
	}
	if err := g.SetLength(length); err != nil {
		return nil, err
	}
	return g, nil
}

// Length returns the loop length in sixteenths
func (g *Grid) Length() int {
	return g.length
}

// SetLength changes the loop length. Notes beyond the new length are kept
// but never reached until the loop grows again.
func (g *Grid) SetLength(n int) error {
	if n < 1 || n > MaxLength {
		return fmt.Errorf("%w: %d (want 1-%d)", ErrLoopLength, n, MaxLength)
	}
	g.length = n
	return nil
}

// Add validates and inserts a new note, returning it with its assigned ID
func (g *Grid) Add(pitch uint8, velocity, start, end float64) (Note, error) {
	n := Note{Pitch: pitch, Velocity: velocity, Start: start, End: end}
	if err := Validate(n, g.length); err != nil {
		return Note{}, err
	}
	g.nextID++
	n.ID = g.nextID
	g.rows[pitch].insert(n)
	g.pitch[n.ID] = pitch
	g.count++
	return n, nil
}

// Remove deletes a note by ID
func (g *Grid) Remove(id uint64) (Note, error) {
	pitch, ok := g.pitch[id]
	if !ok {
		return Note{}, fmt.Errorf("%w: #%d", ErrNoteNotFound, id)
	}
	n, _ := g.rows[pitch].remove(id)
	delete(g.pitch, id)
	g.count--
	return n, nil
}

// Get looks up a note by ID
func (g *Grid) Get(id uint64) (Note, bool) {
	pitch, ok := g.pitch[id]
	if !ok {
		return Note{}, false
	}
	for _, n := range g.rows[pitch].notes {
		if n.ID == id {
			return n, true
		}
	}
	return Note{}, false
}

// Change replaces every field of a note at once. The note keeps its ID. On
// error the grid is unchanged.
func (g *Grid) Change(id uint64, pitch uint8, velocity, start, end float64) (old, updated Note, err error) {
	old, ok := g.Get(id)
	if !ok {
		return Note{}, Note{}, fmt.Errorf("%w: #%d", ErrNoteNotFound, id)
	}
	updated = Note{ID: id, Pitch: pitch, Velocity: velocity, Start: start, End: end}
	if err := Validate(updated, g.length); err != nil {
		return old, old, err
	}
	g.rows[old.Pitch].remove(id)
	g.rows[pitch].insert(updated)
	g.pitch[id] = pitch
	return old, updated, nil
}

func (g *Grid) SetStart(id uint64, start float64) (old, updated Note, err error) {
	n, ok := g.Get(id)
	if !ok {
		return Note{}, Note{}, fmt.Errorf("%w: #%d", ErrNoteNotFound, id)
	}
	return g.Change(id, n.Pitch, n.Velocity, start, n.End)
}

func (g *Grid) SetEnd(id uint64, end float64) (old, updated Note, err error) {
	n, ok := g.Get(id)
	if !ok {
		return Note{}, Note{}, fmt.Errorf("%w: #%d", ErrNoteNotFound, id)
	}
	return g.Change(id, n.Pitch, n.Velocity, n.Start, end)
}

func (g *Grid) SetPitch(id uint64, pitch uint8) (old, updated Note, err error) {
	n, ok := g.Get(id)
	if !ok {
		return Note{}, Note{}, fmt.Errorf("%w: #%d", ErrNoteNotFound, id)
	}
	return g.Change(id, pitch, n.Velocity, n.Start, n.End)
}

func (g *Grid) SetVelocity(id uint64, velocity float64) (old, updated Note, err error) {
	n, ok := g.Get(id)
	if !ok {
		return Note{}, Note{}, fmt.Errorf("%w: #%d", ErrNoteNotFound, id)
	}
	return g.Change(id, n.Pitch, velocity, n.Start, n.End)
}

// Each calls fn for every note, lowest pitch first. It does not allocate,
// so it is usable from the scheduling path. fn must not edit the grid.
func (g *Grid) Each(fn func(Note)) {
	for p := range g.rows {
		for _, n := range g.rows[p].notes {
			fn(n)
		}
	}
}

// Notes returns a copy of all notes, lowest pitch first
func (g *Grid) Notes() []Note {
	out := make([]Note, 0, g.count)
	g.Each(func(n Note) {
		out = append(out, n)
	})
	return out
}

// Row returns a copy of one pitch lane
func (g *Grid) Row(pitch uint8) []Note {
	if pitch >= NumPitches {
		return nil
	}
	return append([]Note(nil), g.rows[pitch].notes...)
}

// Len returns the number of notes in the grid
func (g *Grid) Len() int {
	return g.count
}

// Dangling returns notes that start at or after the current loop length
func (g *Grid) Dangling() []Note {
	var out []Note
	g.Each(func(n Note) {
		if n.Start >= float64(g.length) {
			out = append(out, n)
		}
	})
	return out
}

// Clear removes every note. The loop length is kept.
func (g *Grid) Clear() {
	for p := range g.rows {
		g.rows[p].notes = nil
	}
	g.pitch = make(map[uint64]uint8)
	g.count = 0
}
