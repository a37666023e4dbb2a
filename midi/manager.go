package midi

import (
	"context"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2/drivers"

	"loopseq/debug"
)

// DeviceEvent is emitted when controllers connect/disconnect
type DeviceEvent struct {
	Type       DeviceEventType
	Controller Controller
	ID         string
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

func (t DeviceEventType) String() string {
	if t == DeviceConnected {
		return "connected"
	}
	return "disconnected"
}

// openFunc opens a controller for the input port with the given id
type openFunc func(id string) (Controller, error)

// DeviceManager handles hot-plug detection of MIDI keyboards. Every input
// port whose name passes the match function is opened as a keyboard.
type DeviceManager struct {
	controllers map[string]Controller
	mu          sync.RWMutex
	events      chan DeviceEvent
	pollRate    time.Duration
	match       func(name string) bool
}

// NewDeviceManager creates a device manager. A nil match accepts every
// input port.
func NewDeviceManager(match func(name string) bool) *DeviceManager {
	if match == nil {
		match = func(string) bool { return true }
	}
	return &DeviceManager{
		controllers: make(map[string]Controller),
		events:      make(chan DeviceEvent, 16),
		pollRate:    time.Second,
		match:       match,
	}
}

// MatchName returns a match function selecting ports whose name contains
// want (case-insensitive). An empty want matches every port.
func MatchName(want string) func(string) bool {
	return func(name string) bool {
		return want == "" || matchPort(name, want)
	}
}

// Events returns a channel of device connect/disconnect events
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Controllers returns a snapshot of connected controllers
func (dm *DeviceManager) Controllers() map[string]Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	snapshot := make(map[string]Controller, len(dm.controllers))
	for k, v := range dm.controllers {
		snapshot[k] = v
	}
	return snapshot
}

// GetKeyboard returns the first connected keyboard (or nil)
func (dm *DeviceManager) GetKeyboard() Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	for _, c := range dm.controllers {
		if c.Type() == ControllerKeyboard {
			return c
		}
	}
	return nil
}

// Run starts the polling loop (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	// Initial scan
	dm.scan()

	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return
		case <-ticker.C:
			dm.scan()
		}
	}
}

func (dm *DeviceManager) scan() {
	inPorts, _, err := ListPorts()
	if err != nil {
		// CoreMIDI is hung - skip this scan
		debug.Warn("midi", "scan: %v", err)
		return
	}

	ports := make(map[string]drivers.In, len(inPorts))
	var ids []string
	for _, in := range inPorts {
		id := in.String()
		if !dm.match(id) {
			continue
		}
		ports[id] = in
		ids = append(ids, id)
	}

	dm.sync(ids, func(id string) (Controller, error) {
		return NewKeyboardController(id, ports[id])
	})
}

// sync opens controllers for ids not yet known and closes the ones that
// disappeared, emitting an event for each change
func (dm *DeviceManager) sync(ids []string, open openFunc) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true

		dm.mu.RLock()
		_, exists := dm.controllers[id]
		dm.mu.RUnlock()
		if exists {
			continue
		}

		c, err := open(id)
		if err != nil {
			debug.Warn("midi", "open %s: %v", id, err)
			continue
		}

		dm.mu.Lock()
		dm.controllers[id] = c
		dm.mu.Unlock()

		debug.Log("midi", "connected %s (%s)", id, c.Type())
		dm.events <- DeviceEvent{
			Type:       DeviceConnected,
			Controller: c,
			ID:         id,
		}
	}

	// Check for disconnects
	dm.mu.Lock()
	var toRemove []string
	for id := range dm.controllers {
		if !seen[id] {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		dm.controllers[id].Close()
		delete(dm.controllers, id)
	}
	dm.mu.Unlock()

	for _, id := range toRemove {
		debug.Log("midi", "disconnected %s", id)
		dm.events <- DeviceEvent{
			Type: DeviceDisconnected,
			ID:   id,
		}
	}
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, c := range dm.controllers {
		c.Close()
	}
	dm.controllers = make(map[string]Controller)
}
