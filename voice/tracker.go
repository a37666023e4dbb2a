package voice

// Tracker counts outstanding note-on triggers per pitch for one output
// channel. N overlapping NoteOn calls need N NoteOff calls before the pitch
// is reported as released. Counts are always positive; a pitch is present
// only while it is held.
type Tracker struct {
	counts map[uint8]int
}

func NewTracker() *Tracker {
	return &Tracker{counts: make(map[uint8]int)}
}

// NoteOn adds a holder for pitch and returns the new count
func (t *Tracker) NoteOn(pitch uint8) int {
	t.counts[pitch]++
	return t.counts[pitch]
}

// NoteOff drops one holder. It returns true when that was the last holder
// and the pitch must stop sounding. Releasing a pitch that is not held is a
// no-op and returns false.
func (t *Tracker) NoteOff(pitch uint8) bool {
	n, ok := t.counts[pitch]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(t.counts, pitch)
		return true
	}
	t.counts[pitch] = n - 1
	return false
}

func (t *Tracker) IsActive(pitch uint8) bool {
	_, ok := t.counts[pitch]
	return ok
}

// Count returns the number of holders for pitch (0 if inactive)
func (t *Tracker) Count(pitch uint8) int {
	return t.counts[pitch]
}

// Len returns the number of active pitches
func (t *Tracker) Len() int {
	return len(t.counts)
}

// Reset forgets every holder
func (t *Tracker) Reset() {
	clear(t.counts)
}

// Snapshot returns a copy of the pitch -> count mapping
func (t *Tracker) Snapshot() map[uint8]int {
	out := make(map[uint8]int, len(t.counts))
	for p, n := range t.counts {
		out[p] = n
	}
	return out
}
