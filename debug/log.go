package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
)

var (
	file    *os.File
	mu      sync.Mutex
	enabled bool
	logger  = newLogger()
)

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	return l
}

// LogPath returns ~/.config/loopseq/debug.log
func LogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "loopseq", "debug.log"), nil
}

// Enable starts debug logging to the file at LogPath
func Enable() error {
	path, err := LogPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	mu.Lock()
	closeFile()
	file = f
	logger.SetOutput(f)
	enabled = true
	mu.Unlock()

	Log("debug", "=== Debug logging started ===")
	return nil
}

// SetOutput sends log lines to w instead of the log file. A nil writer
// disables logging.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	closeFile()
	if w == nil {
		logger.SetOutput(io.Discard)
		enabled = false
		return
	}
	logger.SetOutput(w)
	enabled = true
}

// SetLevel sets the minimum level ("debug", "info", "warn", ...)
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)
	return nil
}

// Disable stops debug logging
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	closeFile()
	logger.SetOutput(io.Discard)
	enabled = false
}

// Enabled reports whether log output is currently going anywhere
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// caller must hold mu
func closeFile() {
	if file != nil {
		file.Close()
		file = nil
	}
}

// Log writes a debug message under a category
func Log(category, format string, args ...any) {
	if !Enabled() {
		return
	}
	logger.WithField("cat", category).Debugf(format, args...)
}

// Warn writes a warning under a category
func Warn(category, format string, args ...any) {
	if !Enabled() {
		return
	}
	logger.WithField("cat", category).Warnf(format, args...)
}

// LogEvery logs only every N calls (use for high-frequency events)
var counters = make(map[string]int)

func LogEvery(n int, category, format string, args ...any) {
	mu.Lock()
	if !enabled {
		mu.Unlock()
		return
	}
	key := category + format
	counters[key]++
	count := counters[key]
	mu.Unlock()

	if n > 0 && count%n == 0 {
		Log(category, format+" (every %d, count=%d)", append(args, n, count)...)
	}
}

// Dump logs a deep, multi-line rendering of v
func Dump(category string, v any) {
	if !Enabled() {
		return
	}
	logger.WithField("cat", category).Debug(fmt.Sprintf("dump:\n%s", spew.Sdump(v)))
}
