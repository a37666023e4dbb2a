package midi

import (
	"container/heap"
	"context"
	"runtime"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"loopseq/clock"
	"loopseq/debug"
)

// Event ordering at equal due times: a note ending on the same instant
// another starts is released first, a zero-length note is released after
// its own start.
const (
	prioOff = iota
	prioOn
	prioZeroOff
)

// Event is a MIDI message queued for a clock time
type Event struct {
	At   float64 // clock seconds
	Type uint8   // NoteOn, NoteOff
	Note uint8
	Vel  uint8
	prio int
	seq  uint64
}

type eventQueue []Event

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].At != q[j].At {
		return q[i].At < q[j].At
	}
	if q[i].prio != q[j].prio {
		return q[i].prio < q[j].prio
	}
	return q[i].seq < q[j].seq
}
func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *eventQueue) Push(x any)   { *q = append(*q, x.(Event)) }
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}

// Output is a sound backend for one MIDI channel. Immediate notes are sent
// straight away; scheduled ones wait in a queue that Run flushes as the
// clock reaches them.
type Output struct {
	channel uint8 // 1-16
	send    SendFunc
	clock   clock.Clock

	mu       sync.Mutex
	queue    eventQueue
	seq      uint64
	sounding [128]int
	wake     chan struct{}

	anchor   float64 // clock time scheduled offsets count from
	anchored bool
}

// NewOutput creates an Output writing to send on the given channel (1-16)
func NewOutput(channel uint8, send SendFunc, clk clock.Clock) *Output {
	if channel < 1 {
		channel = 1
	}
	if channel > 16 {
		channel = 16
	}
	return &Output{
		channel: channel,
		send:    send,
		clock:   clk,
		wake:    make(chan struct{}, 1),
	}
}

// OpenOutput opens portName through ports and returns an Output on channel
func OpenOutput(ports *Ports, portName string, channel uint8, clk clock.Clock) (*Output, error) {
	send, err := ports.Sender(portName)
	if err != nil {
		return nil, err
	}
	return NewOutput(channel, send, clk), nil
}

func (o *Output) Channel() uint8 { return o.channel }

// StartNow sends a note-on immediately
func (o *Output) StartNow(pitch uint8, velocity float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.emit(Event{Type: NoteOn, Note: pitch, Vel: Velocity(velocity)})
}

// Anchor sets the clock time that later StartScheduled offsets count from
func (o *Output) Anchor(now float64) {
	o.mu.Lock()
	o.anchor = now
	o.anchored = true
	o.mu.Unlock()
}

// StartScheduled queues a note-on and its note-off, offset from the anchor
// time, or from the current clock time when nothing anchored the output
func (o *Output) StartScheduled(pitch uint8, velocity float64, timeToStart, timeToEnd float64) {
	offPrio := prioOff
	if timeToEnd <= timeToStart {
		timeToEnd = timeToStart
		offPrio = prioZeroOff
	}

	o.mu.Lock()
	now := o.anchor
	if !o.anchored {
		now = o.clock.Now()
	}
	o.push(Event{At: now + timeToStart, Type: NoteOn, Note: pitch, Vel: Velocity(velocity), prio: prioOn})
	o.push(Event{At: now + timeToEnd, Type: NoteOff, Note: pitch, prio: offPrio})
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// StopNow sends a note-off immediately
func (o *Output) StopNow(pitch uint8) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.emit(Event{Type: NoteOff, Note: pitch})
}

// StopAll drops every queued event, releases each sounding note and sends
// All Notes Off on the channel
func (o *Output) StopAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = o.queue[:0]
	for pitch, n := range o.sounding {
		if n > 0 {
			o.emit(Event{Type: NoteOff, Note: uint8(pitch)})
		}
	}
	o.write(gomidi.ControlChange(o.channel-1, CCAllNotesOff, 0))
}

// Pending returns the number of queued events
func (o *Output) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Sounding reports whether a note-on for pitch is outstanding
func (o *Output) Sounding(pitch uint8) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return pitch < 128 && o.sounding[pitch] > 0
}

func (o *Output) push(e Event) {
	o.seq++
	e.seq = o.seq
	heap.Push(&o.queue, e)
}

// Flush sends every queued event due at or before now, in time order, and
// returns how many were sent
func (o *Output) Flush(now float64) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	sent := 0
	for len(o.queue) > 0 && o.queue[0].At <= now {
		o.emit(heap.Pop(&o.queue).(Event))
		sent++
	}
	return sent
}

// next returns the due time of the earliest queued event
func (o *Output) next() (float64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return 0, false
	}
	return o.queue[0].At, true
}

// emit sends one event; o.mu must be held
func (o *Output) emit(e Event) {
	ch := o.channel - 1
	switch e.Type {
	case NoteOn:
		o.sounding[e.Note&0x7F]++
		o.write(gomidi.NoteOn(ch, e.Note, e.Vel))
	case NoteOff:
		if o.sounding[e.Note&0x7F] > 0 {
			o.sounding[e.Note&0x7F]--
		}
		o.write(gomidi.NoteOff(ch, e.Note))
	}
}

func (o *Output) write(msg gomidi.Message) {
	if o.send == nil {
		return
	}
	if err := o.send(msg); err != nil {
		debug.Warn("midi", "ch=%d send %s: %v", o.channel, msg, err)
	}
}

// idleWait is how long Run sleeps when nothing is queued
const idleWait = 50 * time.Millisecond

// Run sends queued events on time until ctx is done. It sleeps until the
// earliest event is due and wakes early when a sooner one is queued.
func (o *Output) Run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	timer := time.NewTimer(idleWait)
	defer timer.Stop()

	for {
		o.Flush(o.clock.Now())

		wait := idleWait
		if at, ok := o.next(); ok {
			wait = time.Duration((at - o.clock.Now()) * float64(time.Second))
			if wait < 0 {
				wait = 0
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-o.wake:
		case <-timer.C:
		}
	}
}
