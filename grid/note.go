package grid

import (
	"errors"
	"fmt"
	"math"
)

const (
	NumPitches    = 128
	MaxLength     = 128 // sixteenths, 8 bars of 4/4
	DefaultLength = 16
)

var (
	ErrPitchRange    = errors.New("pitch out of range")
	ErrVelocityRange = errors.New("velocity out of range")
	ErrStartRange    = errors.New("note start outside loop")
	ErrNoteLength    = errors.New("note must end after it starts")
	ErrLoopLength    = errors.New("loop length out of range")
	ErrNoteNotFound  = errors.New("note not found")
)

// Note is a single timed event on the grid. Start and End are measured in
// sixteenths from the loop start; End may lie past the loop length for notes
// that ring across the boundary.
type Note struct {
	ID       uint64
	Pitch    uint8
	Velocity float64 // 0.0-1.0
	Start    float64
	End      float64
}

// Length returns the note duration in sixteenths
func (n Note) Length() float64 {
	return n.End - n.Start
}

// Contains reports whether the sixteenth position lies inside the note
func (n Note) Contains(sixteenth float64) bool {
	return sixteenth >= n.Start && sixteenth < n.End
}

func (n Note) String() string {
	return fmt.Sprintf("#%d %s vel=%.2f [%g,%g)", n.ID, PitchName(n.Pitch), n.Velocity, n.Start, n.End)
}

// Validate checks a note against the grid invariants for the given loop length
func Validate(n Note, length int) error {
	if n.Pitch >= NumPitches {
		return fmt.Errorf("%w: %d", ErrPitchRange, n.Pitch)
	}
	if math.IsNaN(n.Velocity) || n.Velocity < 0 || n.Velocity > 1 {
		return fmt.Errorf("%w: %v", ErrVelocityRange, n.Velocity)
	}
	if math.IsNaN(n.Start) || n.Start < 0 || n.Start >= float64(length) {
		return fmt.Errorf("%w: start %v, length %d", ErrStartRange, n.Start, length)
	}
	if math.IsNaN(n.End) || math.IsInf(n.End, 0) || n.End <= n.Start {
		return fmt.Errorf("%w: [%v,%v)", ErrNoteLength, n.Start, n.End)
	}
	return nil
}

var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// PitchName formats a MIDI pitch as e.g. "C4" (60 = C4)
func PitchName(pitch uint8) string {
	return fmt.Sprintf("%s%d", noteNames[pitch%12], int(pitch)/12-1)
}
