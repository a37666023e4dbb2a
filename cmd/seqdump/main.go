// Command seqdump runs the scheduler offline on a manual clock and prints
// every note it dispatches.
package main

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"loopseq/clock"
	"loopseq/debug"
	"loopseq/grid"
	"loopseq/sequencer"
)

type options struct {
	tempo     float64
	length    int
	seconds   float64
	tick      float64
	jitter    bool
	seed      int64
	lookahead float64
	notes     string
	verify    bool
	verbose   bool
}

// silent swallows everything; seqdump reads dispatches through the observer
type silent struct{}

func (silent) StartNow(uint8, float64)                         {}
func (silent) StartScheduled(uint8, float64, float64, float64) {}
func (silent) StopNow(uint8)                                   {}
func (silent) StopAll()                                        {}

func main() {
	var opts options
	pflag.Float64VarP(&opts.tempo, "tempo", "t", 120, "tempo in BPM")
	pflag.IntVarP(&opts.length, "length", "l", grid.DefaultLength, "loop length in sixteenths")
	pflag.Float64VarP(&opts.seconds, "seconds", "s", 8, "clock time to simulate")
	pflag.Float64Var(&opts.tick, "tick", 0.01, "tick interval in seconds")
	pflag.BoolVar(&opts.jitter, "jitter", false, "randomize tick spacing up to the lookahead")
	pflag.Int64Var(&opts.seed, "seed", 1, "random seed for --jitter")
	pflag.Float64Var(&opts.lookahead, "lookahead", sequencer.DefaultLookahead, "lookahead window in seconds")
	pflag.StringVarP(&opts.notes, "notes", "n", "60:0:2,64:4:6,67:8:10,72:15.5:17", "notes as pitch:start:end sixteenths, comma separated")
	pflag.BoolVar(&opts.verify, "verify", false, "check every occurrence was dispatched exactly once")
	pflag.BoolVarP(&opts.verbose, "verbose", "v", false, "debug log to stderr")
	pflag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "seqdump: %v\n", err)
		os.Exit(1)
	}
}

func parseNotes(spec string) ([][3]float64, error) {
	var notes [][3]float64
	for _, field := range strings.Split(spec, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		parts := strings.Split(field, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("note %q: want pitch:start:end", field)
		}
		var n [3]float64
		for i, p := range parts {
			v, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return nil, fmt.Errorf("note %q: %w", field, err)
			}
			n[i] = v
		}
		notes = append(notes, n)
	}
	return notes, nil
}

func run(opts options) error {
	if opts.verbose {
		debug.SetOutput(os.Stderr)
	}
	if opts.tick <= 0 || opts.tick > opts.lookahead {
		return fmt.Errorf("tick %v must be positive and at most the lookahead %v", opts.tick, opts.lookahead)
	}
	notes, err := parseNotes(opts.notes)
	if err != nil {
		return err
	}

	type key struct {
		id uint64
		at int64 // start time in microseconds
	}
	seen := make(map[key]int)
	dispatched := 0

	clk := clock.NewManual(0)
	m := sequencer.NewManager(clk, opts.tempo,
		sequencer.WithScheduleAhead(opts.lookahead),
		sequencer.WithDispatchObserver(func(track int, d sequencer.Dispatch) {
			fmt.Printf("now=%8.4f  start=%8.4f  end=%8.4f  +%.4f  %v\n", d.Now, d.Start(), d.End(), d.TimeToStart, d.Note)
			seen[key{d.Note.ID, int64(math.Round(d.Start() * 1e6))}]++
			dispatched++
		}),
	)
	if _, err := m.AddTrack("dump", 1, opts.length, silent{}); err != nil {
		return err
	}
	var added []grid.Note
	for _, n := range notes {
		note, err := m.AddNote(0, uint8(n[0]), 1, n[1], n[2])
		if err != nil {
			return err
		}
		added = append(added, note)
	}

	rng := rand.New(rand.NewSource(opts.seed))
	m.Play()
	ticks := 0
	now := 0.0
	for now <= opts.seconds {
		clk.Set(now)
		m.Tick(now)
		ticks++
		step := opts.tick
		if opts.jitter {
			step = 0.001 + rng.Float64()*(opts.lookahead-0.001)
		}
		now += step
	}
	m.Stop()
	fmt.Printf("%d ticks, %d dispatches\n", ticks, dispatched)

	if !opts.verify {
		return nil
	}
	sixteenth := clock.NewTempo(m.Tempo()).SixteenthDuration()
	period := float64(opts.length) * sixteenth
	missing, dup := 0, 0
	for _, n := range added {
		for at := n.Start * sixteenth; at < opts.seconds; at += period {
			switch c := seen[key{n.ID, int64(math.Round(at * 1e6))}]; {
			case c == 0:
				missing++
				fmt.Printf("missing %v at %.4f\n", n, at)
			case c > 1:
				dup++
				fmt.Printf("duplicate %v at %.4f (%d times)\n", n, at, c)
			}
		}
	}
	if missing > 0 || dup > 0 {
		return fmt.Errorf("%d missing, %d duplicated", missing, dup)
	}
	fmt.Println("ok: every occurrence dispatched exactly once")
	return nil
}
