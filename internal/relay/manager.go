package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

var ErrAlreadyRunning = errors.New("relay already running")

// Runner is anything that runs until its context is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// Manager runs at most one relay in the background, so it can be started and
// stopped from the shell or the tray.
type Manager struct {
	runner Runner
	log    *zerolog.Logger

	// exclusive is held by Start and by WhileIdle callbacks.
	exclusive sync.Mutex

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

func NewManager(runner Runner, logger *zerolog.Logger) *Manager {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Manager{runner: runner, log: logger}
}

// Start launches the relay in a new goroutine. The relay also stops when ctx
// is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	m.exclusive.Lock()
	defer m.exclusive.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel, m.done, m.lastErr = cancel, done, nil

	go func() {
		defer close(done)
		err := m.runner.Run(runCtx)
		cancel()

		m.mu.Lock()
		m.cancel = nil
		m.lastErr = err
		m.mu.Unlock()

		if err != nil {
			m.log.Warn().Err(err).Msg("Relay exited with error")
		}
	}()
	return nil
}

// WhileIdle runs fn if the relay is not running. No relay can start until fn
// returns, so fn may use the input device on its own.
func (m *Manager) WhileIdle(fn func() error) error {
	m.exclusive.Lock()
	defer m.exclusive.Unlock()

	if m.Running() {
		return ErrAlreadyRunning
	}
	return fn()
}

// Stop cancels the running relay and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Err returns the error the last relay run ended with.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Done returns a channel closed when the current (or last) run exits. It is
// nil if the relay was never started.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}
