package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"

	"loopseq/clock"
	"loopseq/midi"
	"loopseq/voice"
)

func main() {
	flags := pflag.NewFlagSet("miditest", pflag.ExitOnError)
	channel := flags.Uint8P("channel", "c", 1, "MIDI channel (1-16)")
	note := flags.Uint8P("note", "n", 60, "note to play")
	length := flags.Float64P("length", "l", 0.5, "note length in seconds")
	repeat := flags.IntP("repeat", "r", 4, "how many notes ping plays")

	if len(os.Args) < 2 {
		usage(flags)
		return
	}
	flags.Parse(os.Args[2:])
	args := flags.Args()

	var err error
	switch os.Args[1] {
	case "list":
		err = listPorts()
	case "ping":
		if len(args) < 1 {
			usage(flags)
			return
		}
		err = ping(args[0], *channel, *note, *length, *repeat)
	case "monitor":
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		monitor(name)
	default:
		usage(flags)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(flags *pflag.FlagSet) {
	fmt.Println("MIDI Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list            - List all MIDI ports")
	fmt.Println("  ping <port>     - Play a note on an output port")
	fmt.Println("  monitor [port]  - Print notes from matching input ports")
	fmt.Println("")
	fmt.Println("Flags:")
	fmt.Print(flags.FlagUsages())
}

func listPorts() error {
	fmt.Println("=== MIDI Input Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	ins, outs, err := midi.ListPorts()
	if err != nil {
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
		return err
	}
	for i, p := range ins {
		fmt.Printf("  %d: %s\n", i, p.String())
	}
	fmt.Println("\n=== MIDI Output Ports ===")
	for i, p := range outs {
		fmt.Printf("  %d: %s\n", i, p.String())
	}
	return nil
}

// ping plays a note repeatedly through the same path the sequencer uses:
// a voice controller over a scheduled MIDI output
func ping(port string, channel, note uint8, length float64, repeat int) error {
	ports := midi.NewPorts()
	defer ports.Close()

	clk := clock.NewWall()
	out, err := midi.OpenOutput(ports, port, channel, clk)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go out.Run(ctx)

	ctrl := voice.NewController(channel, out)
	fmt.Printf("Playing %d x note %d on %q ch %d\n", repeat, note, port, channel)
	for i := 0; i < repeat; i++ {
		ctrl.NoteOnFor(note, 0.8, length, clk.Now())
		deadline := time.Now().Add(time.Duration(2 * length * float64(time.Second)))
		for time.Now().Before(deadline) {
			ctrl.Tick(clk.Now())
			time.Sleep(5 * time.Millisecond)
		}
	}
	ctrl.AllOff()
	fmt.Println("Done!")
	return nil
}

func monitor(name string) {
	fmt.Println("Watching for keyboards. Ctrl+C to exit.")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	dm := midi.NewDeviceManager(midi.MatchName(name))
	go dm.Run(ctx)

	for ev := range dm.Events() {
		fmt.Printf("[%s] %s %s\n", time.Now().Format("15:04:05"), ev.ID, ev.Type)
		if ev.Type != midi.DeviceConnected {
			continue
		}
		go func(c midi.Controller) {
			for n := range c.NoteEvents() {
				state := "off"
				if n.On {
					state = "on "
				}
				fmt.Printf("  %s ch%-2d %s note=%3d vel=%3d\n", c.ID(), n.Channel+1, state, n.Note, n.Velocity)
			}
		}(ev.Controller)
	}
}
