package midi

import (
	"fmt"
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"

	"loopseq/clock"
)

type wire struct {
	msgs []gomidi.Message
}

func (w *wire) send(msg gomidi.Message) error {
	w.msgs = append(w.msgs, msg)
	return nil
}

// trace renders the captured messages as "on60 off60 cc123"
func (w *wire) trace() string {
	var out []string
	for _, msg := range w.msgs {
		var ch, key, vel, cc, val uint8
		switch {
		case msg.GetNoteOn(&ch, &key, &vel):
			out = append(out, fmt.Sprintf("on%d", key))
		case msg.GetNoteOff(&ch, &key, &vel):
			out = append(out, fmt.Sprintf("off%d", key))
		case msg.GetControlChange(&ch, &cc, &val):
			out = append(out, fmt.Sprintf("cc%d", cc))
		}
	}
	return fmt.Sprint(out)
}

func TestOutputImmediate(t *testing.T) {
	w := &wire{}
	o := NewOutput(3, w.send, clock.NewManual(0))
	o.StartNow(60, 1)
	o.StopNow(60)
	if got := w.trace(); got != "[on60 off60]" {
		t.Fatalf("unexpected messages %s", got)
	}
	var ch, key, vel uint8
	if !w.msgs[0].GetNoteOn(&ch, &key, &vel) || ch != 2 || vel != 127 {
		t.Fatalf("note-on ch=%d vel=%d, want ch=2 vel=127", ch, vel)
	}
}

func TestOutputScheduledOrder(t *testing.T) {
	w := &wire{}
	clk := clock.NewManual(10)
	o := NewOutput(1, w.send, clk)

	o.StartScheduled(64, 0.5, 0.25, 0.5)
	o.StartScheduled(60, 0.5, 0, 0.25)
	if o.Pending() != 4 {
		t.Fatalf("expected 4 queued events, got %d", o.Pending())
	}
	if n := o.Flush(10); n != 1 {
		t.Fatalf("expected only the first note-on due, got %d", n)
	}
	if n := o.Flush(11); n != 3 {
		t.Fatalf("expected the rest due, got %d", n)
	}
	// 60 ends exactly when 64 starts: the release goes first
	if got := w.trace(); got != "[on60 off60 on64 off64]" {
		t.Fatalf("unexpected order %s", got)
	}
}

func TestOutputScheduledFromAnchor(t *testing.T) {
	w := &wire{}
	clk := clock.NewManual(10)
	o := NewOutput(1, w.send, clk)

	o.Anchor(10)
	clk.Set(10.02) // the clock moved on between the tick and the send
	o.StartScheduled(60, 1, 0.1, 0.2)
	if n := o.Flush(10.11); n != 1 {
		t.Fatalf("note-on should be due at anchor+0.1, flushed %d", n)
	}
	if n := o.Flush(10.21); n != 1 {
		t.Fatalf("note-off should be due at anchor+0.2, flushed %d", n)
	}
}

func TestOutputZeroLengthNote(t *testing.T) {
	w := &wire{}
	o := NewOutput(1, w.send, clock.NewManual(0))
	o.StartScheduled(60, 1, 0.1, 0.1)
	o.Flush(1)
	if got := w.trace(); got != "[on60 off60]" {
		t.Fatalf("zero-length note must start before it stops, got %s", got)
	}
	if o.Sounding(60) {
		t.Fatalf("pitch left sounding")
	}
}

func TestOutputStopAll(t *testing.T) {
	w := &wire{}
	o := NewOutput(1, w.send, clock.NewManual(0))
	o.StartNow(48, 1)
	o.StartScheduled(60, 1, 1, 2)
	o.StopAll()
	if o.Pending() != 0 {
		t.Fatalf("StopAll left %d queued events", o.Pending())
	}
	if got := w.trace(); got != "[on48 off48 cc123]" {
		t.Fatalf("unexpected messages %s", got)
	}
	if o.Flush(5) != 0 {
		t.Fatalf("flushed events after StopAll")
	}
}

func TestOutputClampsChannel(t *testing.T) {
	if ch := NewOutput(0, nil, clock.NewManual(0)).Channel(); ch != 1 {
		t.Fatalf("channel 0 should clamp to 1, got %d", ch)
	}
	if ch := NewOutput(40, nil, clock.NewManual(0)).Channel(); ch != 16 {
		t.Fatalf("channel 40 should clamp to 16, got %d", ch)
	}
}

func TestVelocityMapping(t *testing.T) {
	tests := []struct {
		level float64
		want  uint8
	}{
		{0, 1},
		{-1, 1},
		{0.001, 1},
		{0.5, 64},
		{1, 127},
		{2, 127},
	}
	for _, tt := range tests {
		if got := Velocity(tt.level); got != tt.want {
			t.Errorf("Velocity(%v) = %d, want %d", tt.level, got, tt.want)
		}
	}
	if Level(127) != 1 || Level(0) != 0 {
		t.Fatalf("Level endpoints wrong")
	}
}
