package clock

import (
	"fmt"

	"github.com/hajimehoshi/ebiten/v2/audio"
)

// Device is a Clock driven by an audio output device: it keeps a silent
// stream playing and reports the position the listener actually hears.
type Device struct {
	player *audio.Player
}

// silence is an endless stream of zero samples
type silence struct{}

func (silence) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

// NewDevice opens (or reuses) the process audio context at sampleRate and
// starts the silent stream.
func NewDevice(sampleRate int) (*Device, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	ctx := audio.CurrentContext()
	if ctx == nil {
		ctx = audio.NewContext(sampleRate)
	} else if ctx.SampleRate() != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", ctx.SampleRate(), sampleRate)
	}
	pl, err := ctx.NewPlayerF32(silence{})
	if err != nil {
		return nil, fmt.Errorf("open audio player: %w", err)
	}
	pl.Play()
	return &Device{player: pl}, nil
}

func (d *Device) Now() float64 {
	return d.player.Position().Seconds()
}

func (d *Device) Close() error {
	d.player.Pause()
	return d.player.Close()
}
