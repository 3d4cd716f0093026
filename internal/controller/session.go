// Package controller holds the emulated controller session: the button,
// stick and auxiliary data state that producers (the relay, scripted macros,
// monitor clients) mutate, and that the downstream transport reads.
package controller

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPushDuration is how long PushButton holds a button when no
// duration is given.
const DefaultPushDuration = 100 * time.Millisecond

// Session is the contract every controller-session implementation offers.
// All update calls are idempotent with respect to repeated identical state.
type Session interface {
	Connect(ctx context.Context) error
	PushButton(ctx context.Context, button string, d time.Duration) error
	UpdateButton(button string, pressed bool) error
	UpdateStick(stick string, pos StickPosition) error
	SetAuxiliaryData(data []byte) error
	AvailableButtons() []string
	Kind() Kind
}

// State is the in-process Session implementation. Each call takes the state
// lock for its full duration so no partial update is ever visible.
type State struct {
	kind      Kind
	available map[string]bool
	sticks    map[string]bool
	log       *zerolog.Logger

	mu        sync.Mutex
	buttons   buttonBitmap
	left      StickPosition
	right     StickPosition
	auxData   []byte
	connected bool
	closed    bool
	ready     chan struct{}
	done      chan struct{}
	changes   chan Snapshot
}

var _ Session = (*State)(nil)

func NewState(kind Kind, logger *zerolog.Logger) *State {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	s := &State{
		kind:      kind,
		available: make(map[string]bool),
		sticks:    make(map[string]bool),
		log:       logger,
		left:      StickRest,
		right:     StickRest,
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
		changes:   make(chan Snapshot, 64),
	}
	for _, name := range kind.AvailableButtons() {
		s.available[name] = true
	}
	for _, name := range kind.Sticks() {
		s.sticks[name] = true
	}
	return s
}

// Changes returns the channel on which state changes are sent. It is closed
// after the final snapshot once the session is closed.
func (s *State) Changes() <-chan Snapshot {
	return s.changes
}

func (s *State) Kind() Kind {
	return s.kind
}

func (s *State) AvailableButtons() []string {
	return s.kind.AvailableButtons()
}

// MarkConnected signals that the transport is ready; pending and future
// Connect calls return.
func (s *State) MarkConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected || s.closed {
		return
	}
	s.connected = true
	close(s.ready)
	s.log.Info().Stringer("controller", s.kind).Msg("Controller session connected")
	s.emitLocked()
}

// Connect waits until the session is ready to accept updates. A Close while
// waiting ends the wait with a SessionClosedError.
func (s *State) Connect(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return &SessionClosedError{Op: "connect"}
	}

	select {
	case <-s.ready:
		return nil
	case <-s.done:
		return &SessionClosedError{Op: "connect"}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *State) UpdateButton(button string, pressed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &SessionClosedError{Op: "update_button", Target: button}
	}
	if !s.available[button] {
		return fmt.Errorf("%w %q on %s", ErrUnknownButton, button, s.kind)
	}
	if s.buttons.set(button, pressed) {
		s.log.Trace().Str("button", button).Bool("pressed", pressed).Msg("Button updated")
		s.emitLocked()
	}
	return nil
}

// PushButton presses a button, holds it for d (DefaultPushDuration when d is
// zero) and releases it. The release is still sent when ctx is cancelled
// while holding.
func (s *State) PushButton(ctx context.Context, button string, d time.Duration) error {
	if d <= 0 {
		d = DefaultPushDuration
	}
	if err := s.UpdateButton(button, true); err != nil {
		return err
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	var waitErr error
	select {
	case <-timer.C:
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	if err := s.UpdateButton(button, false); err != nil {
		return err
	}
	return waitErr
}

func (s *State) UpdateStick(stick string, pos StickPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &SessionClosedError{Op: "update_stick", Target: stick}
	}
	if !s.sticks[stick] {
		return fmt.Errorf("%w %q on %s", ErrUnknownStick, stick, s.kind)
	}
	pos.H = min(pos.H, StickMax)
	pos.V = min(pos.V, StickMax)

	target := &s.left
	if stick == StickRight {
		target = &s.right
	}
	if *target == pos {
		return nil
	}
	*target = pos
	s.emitLocked()
	return nil
}

// SetAuxiliaryData replaces the NFC payload. A nil slice removes it.
func (s *State) SetAuxiliaryData(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &SessionClosedError{Op: "set_auxiliary_data"}
	}
	if !s.kind.SupportsAuxiliaryData() {
		return fmt.Errorf("%w: %s", ErrAuxDataUnsupported, s.kind)
	}

	if data == nil {
		s.auxData = nil
	} else {
		s.auxData = slices.Clone(data)
	}
	s.log.Debug().Int("bytes", len(data)).Msg("Auxiliary data set")
	s.emitLocked()
	return nil
}

// AuxiliaryData returns a copy of the current NFC payload.
func (s *State) AuxiliaryData() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.auxData)
}

// Pressed reports the current state of a button.
func (s *State) Pressed(button string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buttons.get(button)
}

// Stick returns the current position of a stick.
func (s *State) Stick(stick string) StickPosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stick == StickRight {
		return s.right
	}
	return s.left
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Close tears the session down. Every later update fails with a
// SessionClosedError.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.connected = false
	s.log.Info().Msg("Controller session closed")
	s.emitLocked()
	close(s.done)
	close(s.changes)
	return nil
}

func (s *State) snapshotLocked() Snapshot {
	buttons, dpad := snapshotButtons(s.buttons)
	return Snapshot{
		Connected:  s.connected,
		Closed:     s.closed,
		Kind:       s.kind.String(),
		Buttons:    buttons,
		Dpad:       dpad,
		Sticks:     SticksState{Left: s.left, Right: s.right},
		HasAuxData: s.auxData != nil,
	}
}

func (s *State) emitLocked() {
	select {
	case s.changes <- s.snapshotLocked():
	default:
		// Drop if nobody is draining changes
	}
}
