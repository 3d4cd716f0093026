// Package relay bridges a physical input device to an emulated controller
// session. The relay loop polls the device, translates its events and applies
// the resulting button and stick updates to the session.
package relay

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/soar/padrelay/internal/controller"
	"github.com/soar/padrelay/internal/gamepad"
)

const (
	DefaultPollInterval = time.Millisecond
	DefaultAnalogSkip   = 5
)

// Session is the part of a controller session the relay writes to.
type Session interface {
	UpdateButton(button string, pressed bool) error
	UpdateStick(stick string, pos controller.StickPosition) error
	AvailableButtons() []string
	Kind() controller.Kind
}

type Config struct {
	DeviceIndex  int
	HatIndex     int
	PollInterval time.Duration

	// Buttons and Axes override the device profile layout when set.
	Buttons map[string]int
	Axes    *gamepad.AxisLayout

	// Analog enables stick and trigger relaying, sent at most every
	// AnalogSkip cycles.
	Analog     bool
	AnalogSkip int
	Deadzone   float64

	// HatDedupe skips hat events that leave the hat where it was.
	HatDedupe bool
}

// UpdateError records which session call failed.
type UpdateError struct {
	Op     string
	Target string
	Err    error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Target, e.Err)
}

func (e *UpdateError) Unwrap() error {
	return e.Err
}

type Relay struct {
	cfg     Config
	session Session
	open    gamepad.Opener
	buttons *gamepad.ButtonMap
	axes    *gamepad.AxisMap
	metrics *Metrics
	log     *zerolog.Logger
}

// New validates cfg against the session and returns a relay ready to Run.
// Configured layouts that name buttons or sticks the session lacks are
// rejected here, never at runtime.
func New(cfg Config, session Session, open gamepad.Opener, metrics *Metrics, logger *zerolog.Logger) (*Relay, error) {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.AnalogSkip == 0 {
		cfg.AnalogSkip = DefaultAnalogSkip
	}
	if cfg.AnalogSkip < 0 {
		return nil, fmt.Errorf("%w: analog skip must be positive, got %d", gamepad.ErrInvalidMapping, cfg.AnalogSkip)
	}
	if cfg.DeviceIndex < 0 {
		return nil, fmt.Errorf("device index must not be negative, got %d", cfg.DeviceIndex)
	}

	r := &Relay{
		cfg:     cfg,
		session: session,
		open:    open,
		metrics: metrics,
		log:     logger,
	}

	if cfg.Buttons != nil {
		m, err := gamepad.NewButtonMap(cfg.Buttons)
		if err != nil {
			return nil, err
		}
		for _, b := range m.Bindings() {
			if !r.hasButton(b.Button) {
				return nil, fmt.Errorf("%w: button %q is not available on %s", gamepad.ErrInvalidMapping, b.Button, session.Kind())
			}
		}
		r.buttons = m
	}

	if cfg.Axes != nil {
		m, err := gamepad.NewAxisMap(*cfg.Axes)
		if err != nil {
			return nil, err
		}
		for _, s := range m.Sticks() {
			if !r.hasStick(s.Stick) {
				return nil, fmt.Errorf("%w: stick %q is not available on %s", gamepad.ErrInvalidMapping, s.Stick, session.Kind())
			}
		}
		for _, t := range m.Triggers() {
			if !r.hasButton(t.Button) {
				return nil, fmt.Errorf("%w: trigger %q is not available on %s", gamepad.ErrInvalidMapping, t.Button, session.Kind())
			}
		}
		r.axes = m
	}

	return r, nil
}

func (r *Relay) hasButton(name string) bool {
	return slices.Contains(r.session.AvailableButtons(), name)
}

func (r *Relay) hasStick(name string) bool {
	return slices.Contains(r.session.Kind().Sticks(), name)
}

// Layout returns the layouts the relay uses for a device. Profile layouts are
// trimmed to what the session supports; configured ones were checked by New.
func (r *Relay) Layout(info gamepad.DeviceInfo) (*gamepad.ButtonMap, *gamepad.AxisMap, error) {
	buttons, axes := r.buttons, r.axes
	if buttons != nil && axes != nil {
		return buttons, axes, nil
	}

	p := gamepad.ProfileFor(info.VendorID, info.ProductID)
	if buttons == nil {
		m, err := gamepad.NewButtonMap(p.Buttons)
		if err != nil {
			return nil, nil, fmt.Errorf("profile %s: %w", p.Name, err)
		}
		buttons = m.Filter(r.hasButton)
	}
	if axes == nil {
		m, err := gamepad.NewAxisMap(p.Axes)
		if err != nil {
			return nil, nil, fmt.Errorf("profile %s: %w", p.Name, err)
		}
		axes = m.Filter(r.hasStick, r.hasButton)
	}
	r.log.Debug().Str("profile", p.Name).Str("device", info.Name).Msg("Using device profile layout")
	return buttons, axes, nil
}

// Run opens the input device and relays its events until ctx is cancelled
// or the session rejects an update. Cancellation returns nil and is observed
// within one poll interval.
//
// Run locks its goroutine to the current OS thread: device backends such as
// SDL must be driven from a single thread.
func (r *Relay) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	log := r.log.With().Str("run_id", xid.New().String()).Logger()

	dev, err := r.open(r.cfg.DeviceIndex)
	if err != nil {
		log.Error().Err(err).Int("device_index", r.cfg.DeviceIndex).Msg("Failed to open input device")
		return fmt.Errorf("open input device %d: %w", r.cfg.DeviceIndex, err)
	}
	defer func() {
		if err := dev.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close input device")
		}
	}()

	info := dev.Info()
	buttons, axes, err := r.Layout(info)
	if err != nil {
		return err
	}

	l := &loop{
		cfg:     r.cfg,
		dev:     dev,
		session: r.session,
		buttons: buttons,
		axes:    axes,
		metrics: r.metrics,
		log:     &log,
	}

	r.metrics.running.Set(1)
	defer r.metrics.running.Set(0)

	log.Info().
		Str("device", info.Name).
		Int("buttons", buttons.Len()).
		Bool("analog", r.cfg.Analog).
		Dur("poll_interval", r.cfg.PollInterval).
		Msg("Relay started")

	wait := time.NewTimer(r.cfg.PollInterval)
	defer wait.Stop()

	for cycle := uint64(1); ; cycle++ {
		if ctx.Err() != nil {
			log.Info().Msg("Relay stopped")
			return nil
		}

		if err := l.cycle(cycle); err != nil {
			ev := log.Error().Err(err)
			var ue *UpdateError
			if errors.As(err, &ue) {
				ev = ev.Str("op", ue.Op).Str("target", ue.Target)
			}
			ev.Msg("Relay terminated by controller session error")
			return err
		}
		r.metrics.cycles.Inc()

		wait.Reset(r.cfg.PollInterval)
		select {
		case <-ctx.Done():
			log.Info().Msg("Relay stopped")
			return nil
		case <-wait.C:
		}
	}
}

// loop is the state owned by a single Run.
type loop struct {
	cfg     Config
	dev     gamepad.Device
	session Session
	buttons *gamepad.ButtonMap
	axes    *gamepad.AxisMap
	metrics *Metrics
	log     *zerolog.Logger

	hat           gamepad.Hat
	hatKnown      bool
	analogPending bool
}

func (l *loop) cycle(n uint64) error {
	for ev := range l.dev.PollEvents() {
		l.metrics.events.WithLabelValues(ev.Kind.String()).Inc()

		var err error
		switch ev.Kind {
		case gamepad.EventButtonDown, gamepad.EventButtonUp:
			if _, terr := gamepad.TranslateButton(ev.Index, l.buttons); terr != nil {
				l.log.Trace().Int("index", ev.Index).Msg("Ignoring unmapped button")
				continue
			}
			err = l.syncButtons()
		case gamepad.EventHatMotion:
			if ev.Index != l.cfg.HatIndex {
				continue
			}
			err = l.syncHat()
		case gamepad.EventAxisMotion:
			l.analogPending = l.cfg.Analog
		}
		if err != nil {
			return err
		}
	}

	if l.analogPending && n%uint64(l.cfg.AnalogSkip) == 0 {
		l.analogPending = false
		return l.syncAnalog()
	}
	return nil
}

// syncButtons re-sends every mapped button at its current value.
func (l *loop) syncButtons() error {
	for _, b := range l.buttons.Bindings() {
		if err := l.updateButton(b.Button, l.dev.ReadButton(b.Index)); err != nil {
			return err
		}
	}
	return nil
}

func (l *loop) syncHat() error {
	hat := l.dev.ReadHat(l.cfg.HatIndex)
	if l.cfg.HatDedupe && l.hatKnown && hat == l.hat {
		return nil
	}
	l.hat, l.hatKnown = hat, true

	for _, u := range gamepad.TranslateHat(hat) {
		if err := l.updateButton(u.Button, u.Pressed); err != nil {
			return err
		}
	}
	return nil
}

func (l *loop) syncAnalog() error {
	for _, s := range l.axes.Sticks() {
		h := gamepad.ApplyDeadzone(l.dev.ReadAxis(s.Horizontal), l.cfg.Deadzone)
		v := gamepad.ApplyDeadzone(l.dev.ReadAxis(s.Vertical), l.cfg.Deadzone)
		if err := l.session.UpdateStick(s.Stick, gamepad.AxisToStick(h, v)); err != nil {
			return &UpdateError{Op: "update_stick", Target: s.Stick, Err: err}
		}
		l.metrics.updates.WithLabelValues("stick").Inc()
	}
	for _, t := range l.axes.Triggers() {
		pressed := gamepad.AxisToButton(l.dev.ReadAxis(t.Axis), t.Threshold)
		if err := l.updateButton(t.Button, pressed); err != nil {
			return err
		}
	}
	return nil
}

func (l *loop) updateButton(button string, pressed bool) error {
	if err := l.session.UpdateButton(button, pressed); err != nil {
		return &UpdateError{Op: "update_button", Target: button, Err: err}
	}
	l.metrics.updates.WithLabelValues("button").Inc()
	return nil
}
