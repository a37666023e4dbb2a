package clock

import (
	"math"
	"sync"
	"testing"
)

func TestTempoRejectsUnusableValues(t *testing.T) {
	tempo := NewTempo(140)
	for _, bpm := range []float64{0, -10, math.NaN(), math.Inf(1)} {
		if tempo.SetBPM(bpm) {
			t.Errorf("SetBPM(%v) accepted", bpm)
		}
	}
	if got := tempo.BPM(); got != 140 {
		t.Fatalf("BPM changed to %v", got)
	}
}

func TestTempoFallsBackTo120(t *testing.T) {
	if got := NewTempo(0).BPM(); got != 120 {
		t.Fatalf("expected fallback 120, got %v", got)
	}
}

func TestSixteenthDuration(t *testing.T) {
	tempo := NewTempo(120)
	if got := tempo.SixteenthDuration(); got != 0.125 {
		t.Fatalf("expected 0.125s at 120 BPM, got %v", got)
	}
	tempo.SetBPM(60)
	if got := tempo.SecondsPerBeat(); got != 1 {
		t.Fatalf("expected 1s per beat at 60 BPM, got %v", got)
	}
}

func TestTempoConcurrentAccess(t *testing.T) {
	tempo := NewTempo(100)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tempo.SetBPM(float64(100 + i%2*50))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if bpm := tempo.BPM(); bpm != 100 && bpm != 150 {
				t.Errorf("torn read: %v", bpm)
				return
			}
		}
	}()
	wg.Wait()
}

func TestManualClock(t *testing.T) {
	c := NewManual(1.5)
	if c.Now() != 1.5 {
		t.Fatalf("expected 1.5, got %v", c.Now())
	}
	if got := c.Advance(0.25); got != 1.75 {
		t.Fatalf("expected 1.75, got %v", got)
	}
	c.Set(10)
	if c.Now() != 10 {
		t.Fatalf("expected 10, got %v", c.Now())
	}
}

func TestWallClockIsMonotonic(t *testing.T) {
	w := NewWall()
	a := w.Now()
	b := w.Now()
	if b < a {
		t.Fatalf("wall clock went backwards: %v then %v", a, b)
	}
	if at := w.At(0); !at.Equal(w.start) {
		t.Fatalf("At(0) should be the clock origin")
	}
}
