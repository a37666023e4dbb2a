package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const appName = "loopseq"

// Clock sources
const (
	ClockWall   = "wall"
	ClockDevice = "device"
)

var ErrInvalid = errors.New("invalid config")

// TrackConfig describes one sequencer track
type TrackConfig struct {
	Name    string `yaml:"name"`
	Channel int    `yaml:"channel"`          // MIDI output channel (1-16)
	Length  int    `yaml:"length,omitempty"` // loop length in sixteenths
	Port    string `yaml:"port,omitempty"`   // overrides output.port
}

// OutputConfig selects the synth MIDI output
type OutputConfig struct {
	Port string `yaml:"port,omitempty"`
}

// InputConfig selects the live keyboard
type InputConfig struct {
	Port    string `yaml:"port,omitempty"`    // substring match, empty = every input
	Channel int    `yaml:"channel,omitempty"` // 1-16, 0 = omni
}

// ClockConfig selects the time base
type ClockConfig struct {
	Source     string `yaml:"source"`
	SampleRate int    `yaml:"sampleRate,omitempty"` // device clock only
}

// SchedulerConfig tunes the lookahead scheduler
type SchedulerConfig struct {
	Tempo        float64 `yaml:"tempo"`
	Lookahead    float64 `yaml:"lookahead"`    // seconds
	PollInterval float64 `yaml:"pollInterval"` // seconds
}

// UIConfig stores UI preferences
type UIConfig struct {
	Palette  string `yaml:"palette,omitempty"` // GPL file, empty = built-in
	LogLevel string `yaml:"logLevel,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Output    OutputConfig    `yaml:"output"`
	Input     InputConfig     `yaml:"input"`
	Clock     ClockConfig     `yaml:"clock"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Tracks    []TrackConfig   `yaml:"tracks"`
	UI        UIConfig        `yaml:"ui"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Clock: ClockConfig{
			Source:     ClockWall,
			SampleRate: 48000,
		},
		Scheduler: SchedulerConfig{
			Tempo:        120,
			Lookahead:    0.12,
			PollInterval: 0.01,
		},
		Tracks: []TrackConfig{
			{Name: "Lead", Channel: 1, Length: 16},
			{Name: "Bass", Channel: 2, Length: 32},
			{Name: "Drums", Channel: 10, Length: 16},
		},
		UI: UIConfig{
			LogLevel: "debug",
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}

// ConfigPath returns the full path to config.yaml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config at path. Keys missing from the file keep their
// default values; a missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config to path, creating its directory
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks ranges. Every problem found is reported.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	s := c.Scheduler
	if s.Tempo < 20 || s.Tempo > 300 {
		bad("tempo %v outside 20-300", s.Tempo)
	}
	if !(s.Lookahead > 0) || s.Lookahead > 1 {
		bad("lookahead %vs outside (0, 1]", s.Lookahead)
	}
	if !(s.PollInterval > 0) || s.PollInterval >= s.Lookahead {
		bad("poll interval %vs must be positive and below the lookahead", s.PollInterval)
	}

	switch c.Clock.Source {
	case ClockWall:
	case ClockDevice:
		if c.Clock.SampleRate <= 0 {
			bad("sample rate %d", c.Clock.SampleRate)
		}
	default:
		bad("clock source %q (want %s or %s)", c.Clock.Source, ClockWall, ClockDevice)
	}

	if c.Input.Channel < 0 || c.Input.Channel > 16 {
		bad("input channel %d outside 0-16", c.Input.Channel)
	}
	if len(c.Tracks) > 8 {
		bad("%d tracks, at most 8", len(c.Tracks))
	}
	for i, t := range c.Tracks {
		if t.Channel < 1 || t.Channel > 16 {
			bad("track %d (%s): channel %d outside 1-16", i, t.Name, t.Channel)
		}
		if t.Length < 0 || t.Length > 128 {
			bad("track %d (%s): length %d outside 1-128", i, t.Name, t.Length)
		}
	}
	return errors.Join(errs...)
}

// TrackPort returns the output port for a track
func (c *Config) TrackPort(t TrackConfig) string {
	if t.Port != "" {
		return t.Port
	}
	return c.Output.Port
}
