package midi

import (
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"
)

func TestDecodeNote(t *testing.T) {
	tests := []struct {
		name string
		msg  gomidi.Message
		want NoteEvent
		ok   bool
	}{
		{"note on", gomidi.NoteOn(2, 60, 100), NoteEvent{Note: 60, Velocity: 100, Channel: 2, On: true}, true},
		{"note on velocity 0", gomidi.NoteOn(0, 61, 0), NoteEvent{Note: 61, Channel: 0}, true},
		{"note off", gomidi.NoteOff(5, 62), NoteEvent{Note: 62, Channel: 5}, true},
		{"control change", gomidi.ControlChange(0, 7, 100), NoteEvent{}, false},
	}
	for _, tt := range tests {
		got, ok := decodeNote(tt.msg)
		if ok != tt.ok || got != tt.want {
			t.Errorf("%s: got %+v %v, want %+v %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestKeyboardCloseIsIdempotent(t *testing.T) {
	kb, err := NewKeyboardController("test", nil)
	if err != nil {
		t.Fatalf("NewKeyboardController: %v", err)
	}
	kb.push(NoteEvent{Note: 60, Velocity: 90, On: true})
	if err := kb.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := kb.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	kb.push(NoteEvent{Note: 61}) // must not panic

	var got []NoteEvent
	for ev := range kb.NoteEvents() {
		got = append(got, ev)
	}
	if len(got) != 1 || got[0].Note != 60 {
		t.Fatalf("unexpected events %v", got)
	}
}
