package clock

import (
	"math"
	"sync/atomic"
	"time"
)

// SixteenthsPerBeat is the grid resolution: a beat is a quarter note.
const SixteenthsPerBeat = 4

// Clock reports the audio playback position ("dsp time") in seconds.
// Now must never go backwards.
type Clock interface {
	Now() float64
}

// Tempo is the shared BPM value. Readers on the scheduling path and writers
// on a UI goroutine may touch it concurrently; a read never observes a torn
// value.
type Tempo struct {
	bits atomic.Uint64
}

// NewTempo creates a tempo, falling back to 120 BPM for unusable values
func NewTempo(bpm float64) *Tempo {
	t := &Tempo{}
	if !t.SetBPM(bpm) {
		t.SetBPM(120)
	}
	return t
}

// BPM returns the current tempo
func (t *Tempo) BPM() float64 {
	return math.Float64frombits(t.bits.Load())
}

// SetBPM stores a new tempo. Non-positive and non-finite values are ignored
// and reported as false.
func (t *Tempo) SetBPM(bpm float64) bool {
	if bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return false
	}
	t.bits.Store(math.Float64bits(bpm))
	return true
}

// SecondsPerBeat returns 60/BPM, or 0 when no tempo has been set
func (t *Tempo) SecondsPerBeat() float64 {
	bpm := t.BPM()
	if bpm <= 0 {
		return 0
	}
	return 60.0 / bpm
}

// SixteenthDuration returns the length of one grid unit in seconds
func (t *Tempo) SixteenthDuration() float64 {
	return t.SecondsPerBeat() / SixteenthsPerBeat
}

// Wall is a Clock backed by the monotonic system clock, zeroed at creation.
type Wall struct {
	start time.Time
}

func NewWall() *Wall {
	return &Wall{start: time.Now()}
}

func (w *Wall) Now() float64 {
	return time.Since(w.start).Seconds()
}

// At converts a clock reading back to wall time (for timer-driven outputs)
func (w *Wall) At(seconds float64) time.Time {
	return w.start.Add(time.Duration(seconds * float64(time.Second)))
}

// Manual is a Clock that only moves when told to. Used for offline rendering
// and tests.
type Manual struct {
	bits atomic.Uint64
}

func NewManual(start float64) *Manual {
	m := &Manual{}
	m.Set(start)
	return m
}

func (m *Manual) Now() float64 {
	return math.Float64frombits(m.bits.Load())
}

// Set moves the clock to t. Moving backwards is the caller's problem.
func (m *Manual) Set(t float64) {
	m.bits.Store(math.Float64bits(t))
}

// Advance moves the clock forward by d seconds and returns the new time
func (m *Manual) Advance(d float64) float64 {
	t := m.Now() + d
	m.Set(t)
	return t
}
