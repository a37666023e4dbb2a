package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"loopseq/clock"
	"loopseq/config"
	"loopseq/debug"
	"loopseq/midi"
	"loopseq/sequencer"
	"loopseq/theme"
	"loopseq/tui"
)

type options struct {
	configPath string
	outPort    string
	inPort     string
	tempo      float64
	clock      string
	headless   bool
	noDemo     bool
	debug      bool
}

func main() {
	var opts options
	pflag.StringVarP(&opts.configPath, "config", "c", "", "config file (default ~/.config/loopseq/config.yaml)")
	pflag.StringVarP(&opts.outPort, "out", "o", "", "MIDI output port, overrides the config")
	pflag.StringVarP(&opts.inPort, "in", "i", "", "MIDI input port name or substring")
	pflag.Float64VarP(&opts.tempo, "tempo", "t", 0, "tempo in BPM, overrides the config")
	pflag.StringVar(&opts.clock, "clock", "", "clock source: wall or device")
	pflag.BoolVar(&opts.headless, "headless", false, "play without the terminal UI until interrupted")
	pflag.BoolVar(&opts.noDemo, "no-demo", false, "start with empty grids")
	pflag.BoolVarP(&opts.debug, "debug", "d", false, "write a debug log to ~/.config/loopseq/debug.log")
	pflag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "loopseq: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(opts options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if opts.outPort != "" {
		cfg.Output.Port = opts.outPort
	}
	if opts.inPort != "" {
		cfg.Input.Port = opts.inPort
	}
	if opts.tempo != 0 {
		cfg.Scheduler.Tempo = opts.tempo
	}
	if opts.clock != "" {
		cfg.Clock.Source = opts.clock
	}
	return cfg, cfg.Validate()
}

func openClock(cfg *config.Config) (clock.Clock, func(), error) {
	if cfg.Clock.Source == config.ClockDevice {
		d, err := clock.NewDevice(cfg.Clock.SampleRate)
		if err != nil {
			return nil, nil, fmt.Errorf("audio device clock: %w", err)
		}
		return d, func() { d.Close() }, nil
	}
	return clock.NewWall(), func() {}, nil
}

func run(opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	if opts.debug {
		if err := debug.Enable(); err != nil {
			return err
		}
		defer debug.Disable()
		if err := debug.SetLevel(cfg.UI.LogLevel); err != nil {
			return err
		}
		debug.Dump("config", cfg)
	}

	clk, closeClock, err := openClock(cfg)
	if err != nil {
		return err
	}
	defer closeClock()

	palette, err := theme.LoadOrDefault(cfg.UI.Palette)
	if err != nil {
		return err
	}
	th := theme.New(palette)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	manager := sequencer.NewManager(clk, cfg.Scheduler.Tempo,
		sequencer.WithScheduleAhead(cfg.Scheduler.Lookahead),
		sequencer.WithPollInterval(time.Duration(cfg.Scheduler.PollInterval*float64(time.Second))),
	)

	ports := midi.NewPorts()
	defer ports.Close()

	for _, tc := range cfg.Tracks {
		out, err := midi.OpenOutput(ports, cfg.TrackPort(tc), uint8(tc.Channel), clk)
		if err != nil {
			// Keep the track so the grid still plays on screen
			fmt.Fprintf(os.Stderr, "loopseq: track %s: %v (silent)\n", tc.Name, err)
			out = midi.NewOutput(uint8(tc.Channel), nil, clk)
		}
		go out.Run(ctx)

		length := tc.Length
		if length == 0 {
			length = 16
		}
		if _, err := manager.AddTrack(tc.Name, uint8(tc.Channel), length, out); err != nil {
			return fmt.Errorf("track %s: %w", tc.Name, err)
		}
	}

	if !opts.noDemo {
		if err := loadDemo(manager); err != nil {
			return err
		}
	}

	go manager.Run(ctx)

	deviceMgr := midi.NewDeviceManager(midi.MatchName(cfg.Input.Port))
	go deviceMgr.Run(ctx)

	if opts.headless {
		return runHeadless(ctx, manager, deviceMgr, cfg.Input.Channel)
	}

	m := tui.NewModel(manager, deviceMgr, th)
	m.InputChannel = cfg.Input.Channel
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// runHeadless plays until ctx is done, routing the first keyboard that shows
// up to the focused track
func runHeadless(ctx context.Context, manager *sequencer.Manager, deviceMgr *midi.DeviceManager, channel int) error {
	manager.Play()
	fmt.Printf("loopseq: playing %d tracks at %.1f BPM, Ctrl+C to stop\n", len(manager.Tracks()), manager.Tempo())

	connected := false
	for {
		select {
		case <-ctx.Done():
			manager.Stop()
			return nil
		case ev, ok := <-deviceMgr.Events():
			if !ok {
				<-ctx.Done()
				manager.Stop()
				return nil
			}
			fmt.Printf("loopseq: %s %s\n", ev.ID, ev.Type)
			if ev.Type == midi.DeviceConnected && !connected {
				manager.SetMIDIInput(ev.Controller, channel)
				connected = true
			}
		}
	}
}
