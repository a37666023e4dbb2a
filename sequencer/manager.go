package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"loopseq/clock"
	"loopseq/debug"
	"loopseq/grid"
	"loopseq/midi"
	"loopseq/voice"
)

const (
	MaxTracks = 8

	MinTempo = 20
	MaxTempo = 300

	// DefaultPollInterval is how often Run ticks the engines. It must stay
	// well below the lookahead.
	DefaultPollInterval = 10 * time.Millisecond
)

// UI refresh rate
const uiFPS = 30

var (
	ErrTrackIndex    = errors.New("track index out of range")
	ErrTooManyTracks = errors.New("too many tracks")
	ErrChannelRange  = errors.New("channel out of range")
	ErrTriggerLength = errors.New("trigger length must be positive")
)

type ManagerOption func(*Manager)

// WithPollInterval sets the Run tick period
func WithPollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithScheduleAhead sets the lookahead of every track's engine, in seconds
func WithScheduleAhead(seconds float64) ManagerOption {
	return func(m *Manager) {
		if seconds > 0 {
			m.lookahead = seconds
		}
	}
}

// WithDispatchObserver installs fn to see every note any track dispatches.
// It runs on the ticking goroutine with the manager locked.
func WithDispatchObserver(fn func(track int, d Dispatch)) ManagerOption {
	return func(m *Manager) {
		m.onDispatch = fn
	}
}

// Manager orchestrates playback of up to MaxTracks looping tracks against
// one clock. Every engine and voice call happens under mu, so the engines
// see a single host.
type Manager struct {
	clock        clock.Clock
	tempo        *clock.Tempo
	lookahead    float64
	pollInterval time.Duration
	onDispatch   func(track int, d Dispatch)

	tracks   []*Track
	playing  bool
	pending  bool
	syncTime float64
	focused  int  // track receiving live input
	started  bool // syncTime has been set by a play

	mu            sync.RWMutex
	interruptChan chan struct{} // tick now instead of waiting for the ticker

	// MIDI input
	midiInputChan chan midi.NoteEvent
	inputChannel  int // 1-16, 0 = omni

	// Notify TUI of updates
	UpdateChan chan struct{}
}

// NewManager creates a stopped manager at the given tempo
func NewManager(clk clock.Clock, bpm float64, opts ...ManagerOption) *Manager {
	m := &Manager{
		clock:         clk,
		tempo:         clock.NewTempo(clampTempo(bpm)),
		lookahead:     DefaultLookahead,
		pollInterval:  DefaultPollInterval,
		interruptChan: make(chan struct{}, 1),
		midiInputChan: make(chan midi.NoteEvent, 32),
		UpdateChan:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	if limit := time.Duration(m.lookahead * float64(time.Second) / 2); m.pollInterval > limit {
		debug.Warn("transport", "poll interval %s too long for lookahead %.3fs, using %s", m.pollInterval, m.lookahead, limit)
		m.pollInterval = limit
	}
	return m
}

// AddTrack creates a track with a grid of length sixteenths, driving backend
// on channel (1-16)
func (m *Manager) AddTrack(name string, channel uint8, length int, backend voice.Backend) (*Track, error) {
	if channel < 1 || channel > 16 {
		return nil, fmt.Errorf("%w: %d", ErrChannelRange, channel)
	}
	g, err := grid.New(length)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tracks) >= MaxTracks {
		return nil, fmt.Errorf("%w: max %d", ErrTooManyTracks, MaxTracks)
	}

	idx := len(m.tracks)
	t := &Track{
		Name:    name,
		Channel: channel,
		grid:    g,
		voice:   voice.NewController(channel, backend),
	}
	t.engine = NewEngine(g, t.voice, m.tempo, m.clock,
		WithLookahead(m.lookahead),
		WithDispatchHook(func(d Dispatch) {
			t.dispatched++
			debug.LogEvery(64, "dispatch", "track=%d %v in %.4fs", idx, d.Note, d.TimeToStart)
			if m.onDispatch != nil {
				m.onDispatch(idx, d)
			}
		}),
	)
	if m.playing {
		t.engine.Synchronize(m.syncTime)
	}
	m.tracks = append(m.tracks, t)
	debug.Log("track", "added %q ch=%d length=%d", name, channel, length)
	return t, nil
}

// track returns the track at idx; m.mu must be held
func (m *Manager) track(idx int) (*Track, error) {
	if idx < 0 || idx >= len(m.tracks) {
		return nil, fmt.Errorf("%w: %d", ErrTrackIndex, idx)
	}
	return m.tracks[idx], nil
}

// Track returns the track at idx
func (m *Manager) Track(idx int) (*Track, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.track(idx)
}

// Tracks returns the tracks in order
func (m *Manager) Tracks() []*Track {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Track(nil), m.tracks...)
}

// Clock returns the clock the manager schedules against
func (m *Manager) Clock() clock.Clock {
	return m.clock
}

// Play starts playback with loop position zero at the current clock time
func (m *Manager) Play() {
	m.PlayAt(m.clock.Now())
}

// PlayAt starts playback with loop position zero at clock time at. A time
// further ahead than the lookahead leaves playback pending until then.
func (m *Manager) PlayAt(at float64) {
	m.mu.Lock()
	if m.playing {
		m.mu.Unlock()
		return
	}
	m.playing = true
	m.started = true
	m.syncTime = at
	m.pending = false
	for _, t := range m.tracks {
		if t.Muted {
			continue
		}
		t.engine.Synchronize(at)
		m.pending = m.pending || t.engine.Pending()
	}
	m.mu.Unlock()

	debug.Log("transport", "play at %.3f", at)
	m.interrupt()
	m.notifyUpdate()
}

// PlayOnNextCycle starts (or restarts) playback so that notes sound from
// the next loop boundary. Starting from stop puts every track on one phase
// first: the last play's, or the first track's before anything has played.
func (m *Manager) PlayOnNextCycle() {
	m.mu.Lock()
	if !m.playing && len(m.tracks) > 0 {
		if !m.started {
			m.syncTime = m.tracks[0].engine.SyncTime()
		}
		for _, t := range m.tracks {
			if !t.Muted {
				t.engine.Synchronize(m.syncTime)
			}
		}
	}
	m.playing = true
	m.started = true
	m.pending = false
	for _, t := range m.tracks {
		if !t.Muted {
			t.engine.ArmStartOnNextCycle()
		}
	}
	m.mu.Unlock()

	debug.Log("transport", "play on next cycle")
	m.interrupt()
	m.notifyUpdate()
}

// Stop stops playback and silences every channel
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.playing {
		m.mu.Unlock()
		return
	}
	m.playing = false
	m.pending = false
	for _, t := range m.tracks {
		t.engine.Disable()
	}
	m.mu.Unlock()

	debug.Log("transport", "stop")
	m.notifyUpdate()
}

// Playing reports whether the transport is running (or waiting to start)
func (m *Manager) Playing() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.playing
}

func clampTempo(bpm float64) float64 {
	if bpm < MinTempo {
		return MinTempo
	}
	if bpm > MaxTempo {
		return MaxTempo
	}
	return bpm
}

// SetTempo sets the BPM, clamped to MinTempo..MaxTempo, and returns the
// value applied. The new tempo takes effect from the next window.
func (m *Manager) SetTempo(bpm float64) float64 {
	bpm = clampTempo(bpm)
	m.tempo.SetBPM(bpm)
	debug.Log("transport", "tempo %.1f", bpm)
	m.notifyUpdate()
	return bpm
}

// Tempo returns the current BPM
func (m *Manager) Tempo() float64 {
	return m.tempo.BPM()
}

// SetLoopLength changes a track's loop length in sixteenths
func (m *Manager) SetLoopLength(idx, length int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.track(idx)
	if err != nil {
		return err
	}
	if err := t.engine.SetLoopLength(length); err != nil {
		return fmt.Errorf("track %d: %w", idx, err)
	}
	m.notifyUpdate()
	return nil
}

// SetMuted mutes or unmutes a track. Muting silences its channel; unmuting
// during playback rejoins the track's loop phase at the current position.
func (m *Manager) SetMuted(idx int, muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.track(idx)
	if err != nil {
		return err
	}
	if t.Muted == muted {
		return nil
	}
	t.Muted = muted
	switch {
	case muted:
		t.engine.Disable()
	case m.playing:
		t.engine.Synchronize(m.syncTime)
	}
	m.notifyUpdate()
	return nil
}

// SetFocused selects the track that receives live input
func (m *Manager) SetFocused(idx int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.track(idx); err != nil {
		return err
	}
	m.focused = idx
	m.notifyUpdate()
	return nil
}

// Focused returns the index of the track receiving live input
func (m *Manager) Focused() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.focused
}

// HandleNote plays live input on a track: note-on adds a holder, note-off
// releases one
func (m *Manager) HandleNote(idx int, ev midi.NoteEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.track(idx)
	if err != nil {
		return err
	}
	if ev.On && ev.Velocity > 0 {
		t.voice.NoteOn(ev.Note, midi.Level(ev.Velocity))
	} else {
		t.voice.NoteOff(ev.Note)
	}
	m.notifyUpdate()
	return nil
}

// TriggerNote plays pitch on a track for length seconds
func (m *Manager) TriggerNote(idx int, pitch uint8, velocity, length float64) error {
	if !(length > 0) {
		return fmt.Errorf("%w: %v", ErrTriggerLength, length)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.track(idx)
	if err != nil {
		return err
	}
	t.voice.NoteOnFor(pitch, velocity, length, m.clock.Now())
	m.notifyUpdate()
	return nil
}

// AddNote adds a note to a track's grid. It first sounds on the next pass
// of the playhead.
func (m *Manager) AddNote(idx int, pitch uint8, velocity, start, end float64) (grid.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.track(idx)
	if err != nil {
		return grid.Note{}, err
	}
	n, err := t.grid.Add(pitch, velocity, start, end)
	if err != nil {
		return grid.Note{}, fmt.Errorf("track %d: %w", idx, err)
	}
	m.notifyUpdate()
	return n, nil
}

// RemoveNote deletes a note. A note sounding under the playhead is stopped.
func (m *Manager) RemoveNote(idx int, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.track(idx)
	if err != nil {
		return err
	}
	n, err := t.grid.Remove(id)
	if err != nil {
		return fmt.Errorf("track %d: %w", idx, err)
	}
	if t.engine.NotePlaying(n, m.clock.Now()) {
		t.voice.CancelScheduled(n.Pitch)
	}
	m.notifyUpdate()
	return nil
}

// MoveNote moves a note to a new pitch and start, keeping its length
func (m *Manager) MoveNote(idx int, id uint64, pitch uint8, start float64) (grid.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.track(idx)
	if err != nil {
		return grid.Note{}, err
	}
	n, ok := t.grid.Get(id)
	if !ok {
		return grid.Note{}, fmt.Errorf("track %d: %w: %d", idx, grid.ErrNoteNotFound, id)
	}
	old, updated, err := t.grid.Change(id, pitch, n.Velocity, start, start+n.Length())
	if err != nil {
		return grid.Note{}, fmt.Errorf("track %d: %w", idx, err)
	}
	m.compensate(t, old, updated)
	m.notifyUpdate()
	return updated, nil
}

// ResizeNote moves a note's end
func (m *Manager) ResizeNote(idx int, id uint64, end float64) (grid.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.track(idx)
	if err != nil {
		return grid.Note{}, err
	}
	old, updated, err := t.grid.SetEnd(id, end)
	if err != nil {
		return grid.Note{}, fmt.Errorf("track %d: %w", idx, err)
	}
	m.compensate(t, old, updated)
	m.notifyUpdate()
	return updated, nil
}

// compensate stops a note that an edit took away from under the playhead;
// m.mu must be held
func (m *Manager) compensate(t *Track, old, updated grid.Note) {
	now := m.clock.Now()
	if !t.engine.NotePlaying(old, now) {
		return
	}
	if updated.Pitch == old.Pitch && t.engine.NotePlaying(updated, now) {
		return
	}
	debug.Log("edit", "%v left the playhead, stopping", old)
	t.voice.CancelScheduled(old.Pitch)
}

// Tick advances every track to now and returns the number of notes
// dispatched. Run calls it on every poll; offline hosts call it directly.
func (m *Manager) Tick(now float64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tracks {
		n += t.Tick(now)
	}
	if m.pending {
		m.pending = false
		for _, t := range m.tracks {
			m.pending = m.pending || t.engine.Pending()
		}
	}
	return n
}

// Snapshot returns the state the UI draws
func (m *Manager) Snapshot() State {
	now := m.clock.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := State{
		Playing: m.playing,
		Pending: m.pending,
		Tempo:   m.tempo.BPM(),
		Now:     now,
		Focused: m.focused,
		Tracks:  make([]TrackState, 0, len(m.tracks)),
	}
	for _, t := range m.tracks {
		s.Tracks = append(s.Tracks, t.state(now))
	}
	return s
}

// interrupt asks Run to tick immediately (after transport changes)
func (m *Manager) interrupt() {
	select {
	case m.interruptChan <- struct{}{}:
	default:
	}
}

// notifyUpdate wakes the TUI without blocking
func (m *Manager) notifyUpdate() {
	select {
	case m.UpdateChan <- struct{}{}:
	default:
	}
}

// SetMIDIInput forwards a controller's notes to the focused track. channel
// filters by MIDI channel (1-16); 0 accepts all.
func (m *Manager) SetMIDIInput(ctrl midi.Controller, channel int) {
	if ctrl == nil {
		return
	}
	m.mu.Lock()
	m.inputChannel = channel
	m.mu.Unlock()

	go func() {
		for evt := range ctrl.NoteEvents() {
			select {
			case m.midiInputChan <- evt:
			default:
				// Drop if channel full
			}
		}
	}()
}

// handleInput routes one live event to the focused track
func (m *Manager) handleInput(evt midi.NoteEvent) {
	m.mu.RLock()
	want := m.inputChannel
	idx := m.focused
	m.mu.RUnlock()
	if want != 0 && int(evt.Channel)+1 != want {
		return
	}
	if err := m.HandleNote(idx, evt); err != nil {
		debug.Log("input", "%v", err)
	}
}

// Run ticks the engines, routes live input and paces UI updates until ctx
// is done, then stops playback.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	uiTicker := time.NewTicker(time.Second / uiFPS)
	defer ticker.Stop()
	defer uiTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-m.interruptChan:
			m.Tick(m.clock.Now())
		case <-ticker.C:
			m.Tick(m.clock.Now())
		case evt := <-m.midiInputChan:
			m.handleInput(evt)
		case <-uiTicker.C:
			m.mu.RLock()
			playing := m.playing
			m.mu.RUnlock()
			if playing {
				m.notifyUpdate()
			}
		}
	}
}
