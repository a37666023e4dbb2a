package voice

import (
	"loopseq/debug"
)

// MaxPitch is the highest MIDI pitch a controller accepts
const MaxPitch = 127

// Backend is the sound-producing side of a channel. Offsets passed to
// StartScheduled are seconds relative to the caller's current tick, with
// timeToStart >= 0.
type Backend interface {
	StartNow(pitch uint8, velocity float64)
	StartScheduled(pitch uint8, velocity float64, timeToStart, timeToEnd float64)
	StopNow(pitch uint8)
	StopAll()
}

// Anchor is implemented by backends that turn StartScheduled offsets into
// clock times. Tick hands them the tick's now before anything is scheduled.
type Anchor interface {
	Anchor(now float64)
}

// Controller drives one output channel: live triggers go through the
// Tracker so overlapping presses of a pitch are not cut short by a single
// release, while sequenced notes go straight to the backend.
//
// Not safe for concurrent use; the host serializes calls.
type Controller struct {
	channel  uint8
	backend  Backend
	tracker  *Tracker
	releases releaseQueue
	seq      uint64
}

func NewController(channel uint8, backend Backend) *Controller {
	return &Controller{
		channel: channel,
		backend: backend,
		tracker: NewTracker(),
	}
}

// Channel returns the output channel this controller drives
func (c *Controller) Channel() uint8 {
	return c.channel
}

// NoteOn adds a holder for pitch and always retriggers it on the backend
func (c *Controller) NoteOn(pitch uint8, velocity float64) {
	if pitch > MaxPitch {
		return
	}
	c.tracker.NoteOn(pitch)
	c.backend.StartNow(pitch, velocity)
}

// NoteOnFor triggers pitch now and releases it length seconds later. The
// release is evaluated by Tick, so it fires on the first Tick at or after
// now+length.
func (c *Controller) NoteOnFor(pitch uint8, velocity, length, now float64) {
	if pitch > MaxPitch {
		return
	}
	c.NoteOn(pitch, velocity)
	c.seq++
	c.releases.schedule(release{at: now + length, seq: c.seq, pitch: pitch})
}

// NoteOff releases one holder; the backend is stopped only when the last
// holder lets go.
func (c *Controller) NoteOff(pitch uint8) {
	if c.tracker.NoteOff(pitch) {
		c.backend.StopNow(pitch)
	}
}

// AllOff silences the channel regardless of outstanding holders and drops
// pending timed releases.
func (c *Controller) AllOff() {
	debug.Log("voice", "ch=%d all off (held=%d pending=%d)", c.channel, c.tracker.Len(), len(c.releases))
	c.backend.StopAll()
	c.tracker.Reset()
	c.releases = c.releases[:0]
}

// AllNotesOff is AllOff under the name the sequencer uses
func (c *Controller) AllNotesOff() {
	c.AllOff()
}

// NoteOnScheduled forwards a sequenced note to the backend. Sequenced notes
// carry their own stop time and are not counted.
func (c *Controller) NoteOnScheduled(pitch uint8, velocity float64, timeToStart, timeToEnd float64) {
	c.backend.StartScheduled(pitch, velocity, timeToStart, timeToEnd)
}

// CancelScheduled cuts a sequenced note short, e.g. after an edit moved it
// away from the playhead. A pitch that is also held live is left sounding
// until its last holder releases it.
func (c *Controller) CancelScheduled(pitch uint8) {
	if pitch > MaxPitch || c.tracker.IsActive(pitch) {
		return
	}
	c.backend.StopNow(pitch)
}

// Tick fires every timed release due at now and returns how many fired.
// It also anchors the backend's scheduled offsets to now.
func (c *Controller) Tick(now float64) int {
	if a, ok := c.backend.(Anchor); ok {
		a.Anchor(now)
	}
	fired := 0
	for {
		r, ok := c.releases.popDue(now)
		if !ok {
			return fired
		}
		c.NoteOff(r.pitch)
		fired++
	}
}

// NextRelease returns the clock time of the earliest pending timed release
func (c *Controller) NextRelease() (float64, bool) {
	return c.releases.next()
}

// PendingReleases returns the number of timed releases not yet fired
func (c *Controller) PendingReleases() int {
	return len(c.releases)
}

func (c *Controller) IsActive(pitch uint8) bool {
	return c.tracker.IsActive(pitch)
}

// ActiveSnapshot returns a copy of the held pitches and their counts
func (c *Controller) ActiveSnapshot() map[uint8]int {
	return c.tracker.Snapshot()
}
