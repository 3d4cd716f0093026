//go:build !windows

// Package console detects terminal launch and sets up Ctrl+C handling.
package console

import "github.com/rs/zerolog"

// IsRunningFromConsole always reports true outside Windows.
func IsRunningFromConsole() bool {
	return true
}

// SetupConsoleHandler is a no-op outside Windows, where os.Interrupt is
// delivered normally.
func SetupConsoleHandler(shutdown chan struct{}, logger *zerolog.Logger) func() {
	return func() {}
}
