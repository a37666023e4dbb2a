package sequencer

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"loopseq/clock"
	"loopseq/grid"
)

type scheduled struct {
	pitch          uint8
	velocity       float64
	toStart, toEnd float64
}

type fakeOutput struct {
	notes  []scheduled
	allOff int
}

func (o *fakeOutput) NoteOnScheduled(pitch uint8, velocity float64, toStart, toEnd float64) {
	o.notes = append(o.notes, scheduled{pitch, velocity, toStart, toEnd})
}

func (o *fakeOutput) AllNotesOff() { o.allOff++ }

type harness struct {
	grid       *grid.Grid
	out        *fakeOutput
	clock      *clock.Manual
	tempo      *clock.Tempo
	engine     *Engine
	dispatches []Dispatch
}

func newHarness(t *testing.T, length int, bpm float64, opts ...EngineOption) *harness {
	t.Helper()
	g, err := grid.New(length)
	if err != nil {
		t.Fatalf("grid.New: %v", err)
	}
	h := &harness{
		grid:  g,
		out:   &fakeOutput{},
		clock: clock.NewManual(0),
		tempo: clock.NewTempo(bpm),
	}
	opts = append(opts, WithDispatchHook(func(d Dispatch) {
		h.dispatches = append(h.dispatches, d)
	}))
	h.engine = NewEngine(g, h.out, h.tempo, h.clock, opts...)
	return h
}

func (h *harness) add(t *testing.T, pitch uint8, start, end float64) grid.Note {
	t.Helper()
	n, err := h.grid.Add(pitch, 1, start, end)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return n
}

func (h *harness) tick(now float64) int {
	h.clock.Set(now)
	return h.engine.Tick(now)
}

const eps = 1e-9

func near(a, b float64) bool { return math.Abs(a-b) < eps }

func TestEngineConcreteScenario(t *testing.T) {
	h := newHarness(t, 16, 120)
	h.add(t, 60, 0, 4)
	h.clock.Set(5)
	h.engine.Synchronize(5)

	if n := h.tick(5); n != 1 {
		t.Fatalf("expected 1 dispatch, got %d", n)
	}
	got := h.out.notes[0]
	if got.pitch != 60 || got.velocity != 1 || !near(got.toStart, 0) || !near(got.toEnd, 0.5) {
		t.Fatalf("unexpected dispatch %+v", got)
	}
}

func TestEngineIdempotentReentry(t *testing.T) {
	h := newHarness(t, 16, 120)
	h.add(t, 60, 0, 1)
	h.engine.Synchronize(0)
	if n := h.tick(0); n != 1 {
		t.Fatalf("expected 1 dispatch, got %d", n)
	}
	if n := h.tick(0); n != 0 {
		t.Fatalf("repeated tick dispatched %d", n)
	}
	if len(h.out.notes) != 1 {
		t.Fatalf("output saw %d notes", len(h.out.notes))
	}
}

func TestEngineBoundaryIsLeftClosed(t *testing.T) {
	h := newHarness(t, 16, 120, WithLookahead(0.125))
	// one sixteenth is 0.125s, so sixteenth 1 sits exactly on the first
	// window's end
	h.add(t, 61, 1, 2)
	h.engine.Synchronize(0)
	h.tick(0) // window [0, 0.125)
	if len(h.out.notes) != 0 {
		t.Fatalf("right edge of the window must be open")
	}
	h.tick(0.0625) // window [0.125, 0.1875)
	if len(h.out.notes) != 1 {
		t.Fatalf("left edge of the window must be closed, got %d", len(h.out.notes))
	}
}

func TestEngineWindowCoverage(t *testing.T) {
	h := newHarness(t, 16, 120)
	period := 2.0
	var notes []grid.Note
	for i := 0; i < 16; i++ {
		notes = append(notes, h.add(t, uint8(40+i), float64(i), float64(i)+0.5))
	}
	notes = append(notes, h.add(t, 70, 15.9, 17))
	h.engine.Synchronize(0)

	rng := rand.New(rand.NewSource(7))
	now := 0.0
	for now < 9.3 {
		h.tick(now)
		now += 0.001 + rng.Float64()*(h.engine.Lookahead()-0.001)
	}
	// every occurrence before now-lookahead lies inside some tick's window
	last := now

	starts := make(map[uint8][]float64)
	for _, d := range h.dispatches {
		if d.TimeToStart < 0 {
			t.Fatalf("negative timeToStart %v", d.TimeToStart)
		}
		starts[d.Note.Pitch] = append(starts[d.Note.Pitch], d.Start())
	}
	for _, n := range notes {
		first := n.Start * 0.125
		var want []float64
		for at := first; at < last-h.engine.Lookahead(); at += period {
			want = append(want, at)
		}
		got := starts[n.Pitch]
		if len(got) < len(want) {
			t.Fatalf("note %v: %d occurrences, want at least %d", n, len(got), len(want))
		}
		for i, at := range want {
			if !near(got[i], at) {
				t.Fatalf("note %v occurrence %d at %v, want %v", n, i, got[i], at)
			}
		}
		for i := 1; i < len(got); i++ {
			if !near(got[i]-got[i-1], period) {
				t.Fatalf("note %v: gap %v between occurrences (duplicate or skip)", n, got[i]-got[i-1])
			}
		}
	}
}

func TestEngineWraparoundFiresOncePerIteration(t *testing.T) {
	h := newHarness(t, 16, 120)
	h.add(t, 60, 15.9, 16.5)
	h.engine.Synchronize(0)
	for i := 0; i <= 120; i++ {
		h.tick(float64(i) * 0.05) // 0 .. 6.0
	}
	if len(h.dispatches) != 3 {
		t.Fatalf("expected 3 occurrences in 6s, got %d", len(h.dispatches))
	}
	for i, d := range h.dispatches {
		want := 1.9875 + 2*float64(i)
		if !near(d.Start(), want) {
			t.Fatalf("occurrence %d at %v, want %v", i, d.Start(), want)
		}
		if !near(d.TimeToEnd-d.TimeToStart, 0.075) {
			t.Fatalf("duration %v, want 0.075", d.TimeToEnd-d.TimeToStart)
		}
	}
}

func TestEngineCoverageAcrossLoopSizes(t *testing.T) {
	tests := []struct {
		length    int
		bpm       float64
		lookahead float64
		step      float64
	}{
		{1, 300, DefaultLookahead, 0.01},
		{2, 300, DefaultLookahead, 0.01},
		{1, 150, DefaultLookahead, 0.01},
		{1, 300, DefaultLookahead, 0.07}, // ticks further apart than the loop
		{3, 200, 0.5, 0.03},
		{16, 300, 1.0, 0.01},
		{16, 300, 1.0, 0.4},
		{16, 120, DefaultLookahead, 0.05},
	}
	for _, tt := range tests {
		name := fmt.Sprintf("len%d_bpm%g_ahead%g_step%g", tt.length, tt.bpm, tt.lookahead, tt.step)
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, tt.length, tt.bpm, WithLookahead(tt.lookahead))
			h.add(t, 60, 0, 0.5)
			h.engine.Synchronize(0)

			var last float64
			for i := 0; float64(i)*tt.step <= 4; i++ {
				last = float64(i) * tt.step
				h.tick(last)
			}

			period := float64(tt.length) * 15 / tt.bpm
			want := int(math.Floor(last/period+eps)) + 1 // occurrences up to the last tick
			if len(h.dispatches) < want {
				t.Fatalf("dispatched %d, want at least %d", len(h.dispatches), want)
			}
			for i, d := range h.dispatches {
				if !near(d.Start(), float64(i)*period) {
					t.Fatalf("occurrence %d at %v, want %v", i, d.Start(), float64(i)*period)
				}
				if d.Start() >= last+tt.lookahead+eps {
					t.Fatalf("occurrence %d at %v is past the last window", i, d.Start())
				}
			}
		})
	}
}

func TestEngineStallDoesNotBurst(t *testing.T) {
	h := newHarness(t, 1, 300) // period 0.05
	h.add(t, 60, 0, 0.5)
	h.engine.Synchronize(0)
	h.tick(0)
	n := h.tick(1.0)
	if limit := int(math.Floor(2*DefaultLookahead/0.05)) + 1; n > limit {
		t.Fatalf("stalled tick dispatched %d notes, want at most %d", n, limit)
	}
	if n == 0 {
		t.Fatalf("stalled tick dropped the upcoming notes")
	}
}

func TestEngineStartOnNextCycle(t *testing.T) {
	h := newHarness(t, 16, 120)
	h.add(t, 60, 0, 1)
	h.add(t, 61, 1, 2)
	h.add(t, 68, 8, 9)
	h.clock.Set(0.5)
	h.engine.ArmStartOnNextCycle()

	wrapped := false
	for i := 10; i <= 80; i++ { // 0.5 .. 4.0
		now := float64(i) * 0.05
		n := h.tick(now)
		if h.engine.Waiting() && n != 0 {
			t.Fatalf("dispatch at %v while waiting for the next cycle", now)
		}
		if !h.engine.Waiting() {
			wrapped = true
		}
	}
	if !wrapped {
		t.Fatalf("engine never saw the loop wrap")
	}
	if len(h.dispatches) == 0 {
		t.Fatalf("dispatching never resumed")
	}
	for _, d := range h.dispatches {
		if d.Start() < 2-eps {
			t.Fatalf("note %v started at %v, before the loop boundary", d.Note, d.Start())
		}
	}
	found := false
	for _, d := range h.dispatches {
		if d.Note.Pitch == 68 && near(d.Start(), 3) {
			found = true
		}
	}
	if !found {
		t.Fatalf("note at sixteenth 8 of the second loop was not dispatched")
	}
}

func TestEngineScheduledStart(t *testing.T) {
	h := newHarness(t, 16, 120)
	h.add(t, 60, 0, 1)
	h.add(t, 68, 8, 9)
	h.engine.Synchronize(1.0)
	if !h.engine.Pending() || h.engine.Enabled() {
		t.Fatalf("future start should leave the engine pending")
	}
	for i := 0; i <= 17; i++ { // up to 0.85, before start-lookahead
		if n := h.tick(float64(i) * 0.05); n != 0 {
			t.Fatalf("dispatch before activation at %v", float64(i)*0.05)
		}
	}
	for i := 18; i <= 50; i++ { // 0.9 .. 2.5
		h.tick(float64(i) * 0.05)
	}
	if h.engine.Pending() || !h.engine.Enabled() {
		t.Fatalf("engine did not activate")
	}
	if len(h.dispatches) != 2 {
		t.Fatalf("expected downbeat and sixteenth 8, got %d dispatches", len(h.dispatches))
	}
	if d := h.dispatches[0]; d.Note.Pitch != 60 || !near(d.Start(), 1.0) {
		t.Fatalf("downbeat at %v, want 1.0", d.Start())
	}
	if d := h.dispatches[1]; d.Note.Pitch != 68 || !near(d.Start(), 2.0) {
		t.Fatalf("sixteenth 8 at %v, want 2.0", d.Start())
	}
}

func TestEngineImmediateStartAfterLateFirstTick(t *testing.T) {
	h := newHarness(t, 16, 120)
	h.add(t, 60, 0, 1)
	h.clock.Set(3)
	h.engine.Synchronize(3)
	if n := h.tick(3.004); n != 1 {
		t.Fatalf("downbeat lost when the first tick is late, got %d", n)
	}
	if h.out.notes[0].toStart != 0 {
		t.Fatalf("late note should start immediately, got %v", h.out.notes[0].toStart)
	}
}

func TestEngineDisableSilencesAndStops(t *testing.T) {
	h := newHarness(t, 16, 120)
	h.add(t, 60, 4, 5)
	h.engine.Synchronize(0)
	h.tick(0)
	h.engine.Disable()
	if h.out.allOff != 1 {
		t.Fatalf("Disable must silence the output, got %d", h.out.allOff)
	}
	for i := 1; i < 20; i++ {
		if n := h.tick(float64(i) * 0.05); n != 0 {
			t.Fatalf("disabled engine dispatched")
		}
	}
}

func TestEngineEnableResumesFromCurrentPosition(t *testing.T) {
	h := newHarness(t, 16, 120)
	h.add(t, 60, 0, 1)
	h.add(t, 66, 6, 7) // 0.75s
	h.clock.Set(0.7)
	h.engine.Enable()
	for i := 14; i <= 30; i++ {
		h.tick(float64(i) * 0.05) // 0.7 .. 1.5
	}
	if len(h.dispatches) != 1 || h.dispatches[0].Note.Pitch != 66 {
		t.Fatalf("expected only the note ahead of the playhead, got %v", h.dispatches)
	}
}

func TestEngineSkipsDanglingNotes(t *testing.T) {
	h := newHarness(t, 32, 120)
	h.add(t, 60, 20, 21)
	h.add(t, 62, 0, 1)
	if err := h.engine.SetLoopLength(16); err != nil {
		t.Fatalf("SetLoopLength: %v", err)
	}
	h.engine.Synchronize(0)
	for i := 0; i <= 100; i++ {
		h.tick(float64(i) * 0.05)
	}
	for _, d := range h.dispatches {
		if d.Note.Pitch == 60 {
			t.Fatalf("dangling note dispatched at %v", d.Start())
		}
	}
	if len(h.dispatches) == 0 {
		t.Fatalf("in-range note never dispatched")
	}
}

func TestEngineRejectsBadLoopLength(t *testing.T) {
	h := newHarness(t, 16, 120)
	if err := h.engine.SetLoopLength(0); err == nil {
		t.Fatalf("expected error")
	}
	if err := h.engine.SetLoopLength(grid.MaxLength + 1); err == nil {
		t.Fatalf("expected error")
	}
	if h.engine.LoopLength() != 16 {
		t.Fatalf("loop length changed to %d", h.engine.LoopLength())
	}
}

func TestEngineNotePlaying(t *testing.T) {
	h := newHarness(t, 16, 120)
	n := h.add(t, 60, 14, 18) // rings over the loop boundary
	h.engine.Synchronize(0)
	h.tick(0)
	if !h.engine.NotePlaying(n, 0.05) {
		t.Fatalf("tail of a wrapping note should be playing at sixteenth 0.4")
	}
	if h.engine.NotePlaying(n, 1.0) {
		t.Fatalf("note should be silent at sixteenth 8")
	}
	if !h.engine.NotePlaying(n, 1.8) {
		t.Fatalf("note should be playing at sixteenth 14.4")
	}
	if got := h.engine.CurrentSixteenth(2.25); !near(got, 2) {
		t.Fatalf("CurrentSixteenth(2.25) = %v, want 2", got)
	}
}

func TestEngineTempoChangeAppliesToNextWindow(t *testing.T) {
	h := newHarness(t, 16, 120)
	h.add(t, 60, 0, 4)
	h.engine.Synchronize(0)
	h.tick(0)
	h.tempo.SetBPM(60)
	h.clock.Set(2)
	h.engine.Synchronize(2)
	h.tick(2)
	if len(h.out.notes) != 2 {
		t.Fatalf("expected 2 dispatches, got %d", len(h.out.notes))
	}
	if !near(h.out.notes[1].toEnd, 1.0) {
		t.Fatalf("duration at 60 BPM should be 1s, got %v", h.out.notes[1].toEnd)
	}
}
