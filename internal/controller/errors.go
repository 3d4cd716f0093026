package controller

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed is matched by every SessionClosedError.
	ErrSessionClosed = errors.New("controller session closed")

	ErrUnknownButton      = errors.New("unknown button")
	ErrUnknownStick       = errors.New("unknown stick")
	ErrAuxDataUnsupported = errors.New("auxiliary data not supported by controller")
)

// SessionClosedError is returned by any call made after the session's
// transport has gone away.
type SessionClosedError struct {
	Op     string
	Target string
}

func (e *SessionClosedError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrSessionClosed)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Target, ErrSessionClosed)
}

func (e *SessionClosedError) Is(target error) bool {
	return target == ErrSessionClosed
}
