// Package gamepad reads physical game controllers and translates their raw
// events into canonical controller button and stick updates.
package gamepad

import (
	"errors"
	"fmt"
	"iter"
)

type EventKind uint8

const (
	EventButtonDown EventKind = iota + 1
	EventButtonUp
	EventHatMotion
	EventAxisMotion
)

func (k EventKind) String() string {
	switch k {
	case EventButtonDown:
		return "button_down"
	case EventButtonUp:
		return "button_up"
	case EventHatMotion:
		return "hat_motion"
	case EventAxisMotion:
		return "axis_motion"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Event is a raw event reported by a physical device. Index is the physical
// button, hat or axis index. Hat is set for hat motion, Value for axis motion
// (normalized to -1..1).
type Event struct {
	Kind  EventKind
	Index int
	Hat   Hat
	Value float64
}

// Hat is a directional pad position. H is -1 (left), 0 or 1 (right); V is
// -1 (down), 0 or 1 (up).
type Hat struct {
	H int
	V int
}

// DeviceInfo describes an opened device.
type DeviceInfo struct {
	Name      string
	VendorID  uint16
	ProductID uint16
	Buttons   int
	Axes      int
	Hats      int
}

// Device is a physical input device.
type Device interface {
	Info() DeviceInfo
	// PollEvents lazily drains the events accumulated since the last call.
	// It never waits for new input.
	PollEvents() iter.Seq[Event]
	ReadButton(index int) bool
	ReadHat(index int) Hat
	ReadAxis(index int) float64
	Close() error
}

// Opener binds to the Nth connected device.
type Opener func(index int) (Device, error)

var (
	ErrDeviceNotFound = errors.New("input device not found")
	ErrUnmappedButton = errors.New("unmapped button")
	ErrInvalidMapping = errors.New("invalid mapping")
)

type DeviceNotFoundError struct {
	Index     int
	Available int
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("no input device at index %d (%d connected)", e.Index, e.Available)
}

func (e *DeviceNotFoundError) Is(target error) bool {
	return target == ErrDeviceNotFound
}

type UnmappedButtonError struct {
	Index int
}

func (e *UnmappedButtonError) Error() string {
	return fmt.Sprintf("physical button %d is not mapped", e.Index)
}

func (e *UnmappedButtonError) Is(target error) bool {
	return target == ErrUnmappedButton
}
