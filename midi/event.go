package midi

import "math"

// MIDI status bytes
const (
	NoteOn  uint8 = 0x90
	NoteOff uint8 = 0x80
	CC      uint8 = 0xB0
)

// Channel mode controllers
const (
	CCAllSoundOff uint8 = 120
	CCAllNotesOff uint8 = 123
)

// NoteEvent is a note played on a live controller. A note-on with velocity 0
// arrives as On == false.
type NoteEvent struct {
	Note     uint8
	Velocity uint8
	Channel  uint8 // 0-15 as on the wire
	On       bool
}

// Level maps a MIDI velocity to the 0.0-1.0 range the voices use
func Level(velocity uint8) float64 {
	if velocity > 127 {
		velocity = 127
	}
	return float64(velocity) / 127
}

// Velocity maps a 0.0-1.0 level to a sounding MIDI velocity (1-127).
// A note-on with velocity 0 would be read as a note-off, so 0 maps to 1.
func Velocity(level float64) uint8 {
	if math.IsNaN(level) || level <= 0 {
		return 1
	}
	if level >= 1 {
		return 127
	}
	v := uint8(math.Round(level * 127))
	if v < 1 {
		v = 1
	}
	return v
}
