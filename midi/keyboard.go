package midi

import (
	"fmt"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"loopseq/debug"
)

// KeyboardController handles a standard MIDI keyboard
type KeyboardController struct {
	id       string
	inPort   drivers.In
	stopFunc func()

	mu       sync.Mutex
	noteChan chan NoteEvent
	closed   bool
}

// NewKeyboardController creates a keyboard controller (input only)
func NewKeyboardController(id string, inPort drivers.In) (*KeyboardController, error) {
	kb := &KeyboardController{
		id:       id,
		inPort:   inPort,
		noteChan: make(chan NoteEvent, 32),
	}

	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, func(msg gomidi.Message, timestampms int32) {
			if ev, ok := decodeNote(msg); ok {
				kb.push(ev)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("open input %s: %w", id, err)
		}
		kb.stopFunc = stop
	}

	return kb, nil
}

// decodeNote turns a channel message into a NoteEvent. Everything that is not
// a note-on or note-off is ignored.
func decodeNote(msg gomidi.Message) (NoteEvent, bool) {
	var channel, note, velocity uint8
	switch {
	case msg.GetNoteOn(&channel, &note, &velocity):
		return NoteEvent{Note: note, Velocity: velocity, Channel: channel, On: velocity > 0}, true
	case msg.GetNoteOff(&channel, &note, &velocity):
		return NoteEvent{Note: note, Velocity: 0, Channel: channel}, true
	}
	return NoteEvent{}, false
}

// push never blocks the driver callback. Events are dropped while the
// channel is full.
func (kb *KeyboardController) push(ev NoteEvent) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if kb.closed {
		return
	}
	select {
	case kb.noteChan <- ev:
	default:
		debug.Log("midi", "%s: dropped %+v", kb.id, ev)
	}
}

func (kb *KeyboardController) ID() string {
	return kb.id
}

func (kb *KeyboardController) Type() ControllerType {
	return ControllerKeyboard
}

func (kb *KeyboardController) NoteEvents() <-chan NoteEvent {
	return kb.noteChan
}

func (kb *KeyboardController) Close() error {
	kb.mu.Lock()
	stop := kb.stopFunc
	kb.stopFunc = nil
	kb.mu.Unlock()
	if stop != nil {
		stop()
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()
	if !kb.closed {
		kb.closed = true
		close(kb.noteChan)
	}
	return nil
}
