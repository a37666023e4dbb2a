package midi

import (
	"fmt"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

// SendFunc writes one message to an open output port
type SendFunc func(gomidi.Message) error

// portTimeout bounds port enumeration (CoreMIDI can hang)
const portTimeout = 3 * time.Second

// ListPorts returns the input and output ports, or an error when the driver
// does not answer in time.
func ListPorts() ([]drivers.In, []drivers.Out, error) {
	type result struct {
		ins  []drivers.In
		outs []drivers.Out
	}
	ch := make(chan result, 1)
	go func() {
		ch <- result{ins: gomidi.GetInPorts(), outs: gomidi.GetOutPorts()}
	}()

	select {
	case r := <-ch:
		return r.ins, r.outs, nil
	case <-time.After(portTimeout):
		return nil, nil, fmt.Errorf("midi driver did not list ports within %s", portTimeout)
	}
}

// matchPort reports whether a port name selects the port: an exact match, or
// a case-insensitive substring.
func matchPort(portName, want string) bool {
	if portName == want {
		return true
	}
	return want != "" && strings.Contains(strings.ToLower(portName), strings.ToLower(want))
}

// Ports lazily opens output ports by name and caches their senders
type Ports struct {
	senders map[string]SendFunc
	mu      sync.RWMutex
}

func NewPorts() *Ports {
	return &Ports{senders: make(map[string]SendFunc)}
}

// Sender returns a sender for the given port name, opening it on first use
func (p *Ports) Sender(portName string) (SendFunc, error) {
	if portName == "" {
		return nil, fmt.Errorf("no output port configured")
	}

	p.mu.RLock()
	if sender, ok := p.senders[portName]; ok {
		p.mu.RUnlock()
		return sender, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring write lock
	if sender, ok := p.senders[portName]; ok {
		return sender, nil
	}

	_, outs, err := ListPorts()
	if err != nil {
		return nil, err
	}
	for _, port := range outs {
		if !matchPort(port.String(), portName) {
			continue
		}
		send, err := gomidi.SendTo(port)
		if err != nil {
			return nil, fmt.Errorf("open output %q: %w", port.String(), err)
		}
		p.senders[portName] = send
		return send, nil
	}
	return nil, fmt.Errorf("output port %q not found", portName)
}

// Close shuts the MIDI driver down; all cached senders become invalid
func (p *Ports) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.senders = make(map[string]SendFunc)
	gomidi.CloseDriver()
}
