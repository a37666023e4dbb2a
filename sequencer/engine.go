package sequencer

import (
	"math"

	"loopseq/clock"
	"loopseq/debug"
	"loopseq/grid"
)

// DefaultLookahead is how far ahead of the playhead each tick schedules, in
// seconds. The host must tick at least this often.
const DefaultLookahead = 0.12

// Output receives sequenced notes. Offsets are seconds from the tick's now.
type Output interface {
	NoteOnScheduled(pitch uint8, velocity float64, timeToStart, timeToEnd float64)
	AllNotesOff()
}

// Dispatch describes one note occurrence handed to the Output
type Dispatch struct {
	Note        grid.Note
	Now         float64 // clock time of the tick that scheduled it
	TimeToStart float64
	TimeToEnd   float64
}

// Start returns the absolute clock time the note begins
func (d Dispatch) Start() float64 { return d.Now + d.TimeToStart }

// End returns the absolute clock time the note ends
func (d Dispatch) End() float64 { return d.Now + d.TimeToEnd }

type EngineOption func(*Engine)

// WithLookahead sets the scheduling window length in seconds
func WithLookahead(seconds float64) EngineOption {
	return func(e *Engine) {
		if seconds > 0 {
			e.lookahead = seconds
		}
	}
}

// WithDispatchHook installs an observer called for every dispatched note,
// after the Output has been told. It runs on the ticking goroutine.
func WithDispatchHook(fn func(Dispatch)) EngineOption {
	return func(e *Engine) {
		e.onDispatch = fn
	}
}

// Engine schedules the notes of a looping grid in lookahead windows. Each
// Tick covers the half-open interval [lastWindow, windowEnd) of loop time,
// so consecutive ticks hand every note occurrence to the Output exactly
// once, across any number of loop wraps.
//
// Engine is not safe for concurrent use: the host ticks it and calls its
// control methods from one goroutine (or under one lock). Only the Tempo is
// shared with other goroutines.
type Engine struct {
	grid       *grid.Grid
	out        Output
	tempo      *clock.Tempo
	clock      clock.Clock
	lookahead  float64
	onDispatch func(Dispatch)

	enabled    bool
	pending    bool    // waiting for a scheduled start
	activateAt float64 // clock time a pending start becomes active

	syncTime    float64 // clock time of loop position zero
	lastWindow  float64 // end of the last processed window, seconds into the loop
	waitForWrap bool    // swallow windows until the loop restarts
	primed      bool    // next tick derives lastWindow from primeFrom
	primeFrom   float64 // clock time coverage restarts from

	// playhead at the previous tick, for moving lastWindow into the next
	// tick's loop frame
	lastNow    float64
	lastPos    float64
	lastPeriod float64
}

// NewEngine creates a disabled engine whose loop phase starts at the
// clock's current time.
func NewEngine(g *grid.Grid, out Output, tempo *clock.Tempo, clk clock.Clock, opts ...EngineOption) *Engine {
	e := &Engine{
		grid:      g,
		out:       out,
		tempo:     tempo,
		clock:     clk,
		lookahead: DefaultLookahead,
		syncTime:  clk.Now(),
	}
	e.prime(e.syncTime)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Synchronize makes at the clock time of loop position zero and starts the
// engine. When at lies further ahead than one lookahead window, the engine
// stays inactive until the first Tick at or after at-lookahead.
func (e *Engine) Synchronize(at float64) {
	now := e.clock.Now()
	e.syncTime = at
	e.prime(math.Max(at, now))
	e.waitForWrap = false

	if start := at - e.lookahead; start > now {
		e.enabled = false
		e.pending = true
		e.activateAt = start
		debug.Log("engine", "start scheduled at %.3f (active from %.3f)", at, start)
		return
	}
	e.pending = false
	e.enabled = true
	debug.Log("engine", "synchronized to %.3f", at)
}

// ArmStartOnNextCycle activates the engine now but holds back every note
// until the loop wraps, so the first note played is at or after a loop
// boundary.
func (e *Engine) ArmStartOnNextCycle() {
	e.pending = false
	if !e.enabled {
		e.enabled = true
		e.prime(e.clock.Now())
	}
	e.waitForWrap = true
	debug.Log("engine", "armed for next cycle")
}

// Enable resumes scheduling on the current loop phase. Notes from the
// current position onward are eligible.
func (e *Engine) Enable() {
	if e.enabled {
		return
	}
	e.pending = false
	e.enabled = true
	e.prime(e.clock.Now())
}

// prime makes the next tick cover loop time from the clock time t onward
func (e *Engine) prime(t float64) {
	e.primed = true
	e.primeFrom = t
}

// primeWindow returns primeFrom as loop time in the frame of the current
// tick. Before a scheduled start primeFrom is ahead of now and lands on the
// end of the current iteration; after a slightly late first tick it is behind
// now. The result never passes windowEnd, or it would read as a wrap.
func (e *Engine) primeWindow(now, currentTime, windowEnd, period float64) float64 {
	ahead := e.primeFrom - now
	if ahead < -e.lookahead {
		return currentTime
	}
	pos := wrap(e.primeFrom-e.syncTime, period)
	switch {
	case ahead >= 0 && pos < currentTime:
		pos += period
	case ahead < 0 && pos > currentTime:
		pos -= period
	}
	return math.Min(pos, windowEnd)
}

// Disable stops scheduling immediately and silences the output. Notes
// already handed to the output keep their own stop times.
func (e *Engine) Disable() {
	e.enabled = false
	e.pending = false
	e.waitForWrap = false
	e.out.AllNotesOff()
}

// Enabled reports whether ticks currently dispatch (or swallow) windows
func (e *Engine) Enabled() bool { return e.enabled }

// Pending reports whether a scheduled start has not been reached yet
func (e *Engine) Pending() bool { return e.pending }

// Waiting reports whether dispatch is held until the next loop wrap
func (e *Engine) Waiting() bool { return e.waitForWrap }

func (e *Engine) Lookahead() float64 { return e.lookahead }

func (e *Engine) SyncTime() float64 { return e.syncTime }

// LoopLength returns the grid length in sixteenths
func (e *Engine) LoopLength() int { return e.grid.Length() }

// SetLoopLength changes the grid length. Out-of-range values are rejected
// and the previous length is kept. Only future windows see the new length.
func (e *Engine) SetLoopLength(n int) error {
	return e.grid.SetLength(n)
}

// timing returns the sixteenth duration and loop period in seconds
func (e *Engine) timing() (sixteenth, period float64, ok bool) {
	if e.grid == nil {
		return 0, 0, false
	}
	sixteenth = e.tempo.SixteenthDuration()
	if sixteenth <= 0 {
		return 0, 0, false
	}
	return sixteenth, float64(e.grid.Length()) * sixteenth, true
}

// wrap maps x into [0, period)
func wrap(x, period float64) float64 {
	p := math.Mod(x, period)
	if p < 0 {
		p += period
	}
	if p >= period {
		p = 0
	}
	return p
}

// Position returns the seconds elapsed in the current loop iteration
func (e *Engine) Position(now float64) float64 {
	_, period, ok := e.timing()
	if !ok {
		return 0
	}
	return wrap(now-e.syncTime, period)
}

// CurrentSixteenth returns the playhead in sixteenths, in [0, length)
func (e *Engine) CurrentSixteenth(now float64) float64 {
	sixteenth, _, ok := e.timing()
	if !ok {
		return 0
	}
	return e.Position(now) / sixteenth
}

// NotePlaying reports whether n is sounding at now according to the grid,
// including the tail of a note that crosses the loop boundary.
func (e *Engine) NotePlaying(n grid.Note, now float64) bool {
	if !e.enabled || e.waitForWrap {
		return false
	}
	if _, _, ok := e.timing(); !ok {
		return false
	}
	pos := e.CurrentSixteenth(now)
	length := float64(e.grid.Length())
	if n.Start >= length {
		return false
	}
	return n.Contains(pos) || n.Contains(pos+length)
}

// Tick schedules every note whose start falls in the window that opened
// since the previous tick and returns how many were dispatched. Calling it
// again with the same now is a no-op.
func (e *Engine) Tick(now float64) int {
	if e.pending && now >= e.activateAt {
		e.pending = false
		e.enabled = true
		debug.Log("engine", "scheduled start reached at %.3f", now)
	}
	if !e.enabled {
		return 0
	}
	sixteenth, period, ok := e.timing()
	if !ok {
		return 0
	}

	currentTime := wrap(now-e.syncTime, period)
	windowEnd := currentTime + e.lookahead

	wrapped := false
	if e.primed {
		e.primed = false
		e.lastWindow = e.primeWindow(now, currentTime, windowEnd, period)
	} else {
		wrapped = e.rebase(now, currentTime, period)
	}
	e.lastNow, e.lastPos, e.lastPeriod = now, currentTime, period

	if wrapped {
		e.waitForWrap = false
		debug.Log("engine", "loop wrap at %.3f", now)
	}
	if windowEnd <= e.lastWindow {
		return 0
	}
	if e.waitForWrap {
		e.lastWindow = windowEnd
		return 0
	}
	if floor := currentTime - e.lookahead; e.lastWindow < floor {
		debug.Warn("engine", "tick %.3fs late, skipping ahead", floor-e.lastWindow)
		e.lastWindow = floor
	}

	lastWindow := e.lastWindow
	length := float64(e.grid.Length())
	dispatched := 0
	e.grid.Each(func(n grid.Note) {
		if n.Start >= length {
			return // dangling after a shrink
		}
		if n.Start < 0 || n.End < n.Start {
			assertf(false, "malformed note %v", n)
			return
		}
		startTime := n.Start * sixteenth
		if startTime < lastWindow {
			startTime += math.Floor((lastWindow-startTime)/period) * period
			for startTime < lastWindow {
				startTime += period
			}
		}
		// a window longer than the loop holds several occurrences
		for ; startTime < windowEnd; startTime += period {
			e.dispatch(n, now, startTime-currentTime, sixteenth)
			dispatched++
		}
	})

	e.lastWindow = windowEnd
	return dispatched
}

// rebase moves lastWindow from the previous tick's loop frame into the
// current one and reports whether the playhead crossed a loop boundary.
func (e *Engine) rebase(now, currentTime, period float64) bool {
	elapsed := now - e.lastNow
	if period != e.lastPeriod {
		// tempo or length changed: keep the part of the last window still
		// ahead of the playhead
		e.lastWindow = currentTime + (e.lastWindow - e.lastPos) - elapsed
		return currentTime < e.lastPos
	}
	wraps := math.Round((e.lastPos + elapsed - currentTime) / period)
	if wraps == 0 {
		return false
	}
	e.lastWindow -= wraps * period
	return wraps > 0
}

func (e *Engine) dispatch(n grid.Note, now, offset, sixteenth float64) {
	timeToStart := offset
	if timeToStart < 0 {
		// The host ticked late; play it now rather than drop it.
		debug.Log("engine", "late by %.4fs: %v", -timeToStart, n)
		timeToStart = 0
	}
	timeToEnd := offset + n.Length()*sixteenth
	if timeToEnd < timeToStart {
		timeToEnd = timeToStart
	}
	e.out.NoteOnScheduled(n.Pitch, n.Velocity, timeToStart, timeToEnd)
	if e.onDispatch != nil {
		e.onDispatch(Dispatch{Note: n, Now: now, TimeToStart: timeToStart, TimeToEnd: timeToEnd})
	}
}
