package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"iter"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soar/padrelay/internal/controller"
	"github.com/soar/padrelay/internal/gamepad"
)

// step is applied on one PollEvents call: the device state changes first,
// then events are yielded.
type step struct {
	buttons map[int]bool
	hat     *gamepad.Hat
	axes    map[int]float64
	events  []gamepad.Event
}

type fakeDevice struct {
	info gamepad.DeviceInfo

	mu      sync.Mutex
	steps   []step
	buttons map[int]bool
	hat     gamepad.Hat
	axes    map[int]float64
	closed  bool

	drainOnce sync.Once
	drained   chan struct{}
}

func newFakeDevice(steps ...step) *fakeDevice {
	return &fakeDevice{
		info:    gamepad.DeviceInfo{Name: "Fake Pad", VendorID: 0x1234, ProductID: 0x5678, Buttons: 16, Axes: 6, Hats: 1},
		steps:   steps,
		buttons: map[int]bool{},
		axes:    map[int]float64{},
		drained: make(chan struct{}),
	}
}

func (d *fakeDevice) Info() gamepad.DeviceInfo { return d.info }

func (d *fakeDevice) PollEvents() iter.Seq[gamepad.Event] {
	return func(yield func(gamepad.Event) bool) {
		d.mu.Lock()
		if len(d.steps) == 0 {
			d.mu.Unlock()
			d.drainOnce.Do(func() { close(d.drained) })
			return
		}
		s := d.steps[0]
		d.steps = d.steps[1:]
		for i, v := range s.buttons {
			d.buttons[i] = v
		}
		for i, v := range s.axes {
			d.axes[i] = v
		}
		if s.hat != nil {
			d.hat = *s.hat
		}
		d.mu.Unlock()

		for _, ev := range s.events {
			if !yield(ev) {
				return
			}
		}
	}
}

func (d *fakeDevice) ReadButton(index int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buttons[index]
}

func (d *fakeDevice) ReadHat(int) gamepad.Hat {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hat
}

func (d *fakeDevice) ReadAxis(index int) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.axes[index]
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

type call struct {
	Op      string
	Target  string
	Pressed bool
	Pos     controller.StickPosition
}

type recordingSession struct {
	kind controller.Kind

	mu     sync.Mutex
	calls  []call
	closed bool
}

func (s *recordingSession) UpdateButton(button string, pressed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &controller.SessionClosedError{Op: "update_button", Target: button}
	}
	s.calls = append(s.calls, call{Op: "button", Target: button, Pressed: pressed})
	return nil
}

func (s *recordingSession) UpdateStick(stick string, pos controller.StickPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &controller.SessionClosedError{Op: "update_stick", Target: stick}
	}
	s.calls = append(s.calls, call{Op: "stick", Target: stick, Pos: pos})
	return nil
}

func (s *recordingSession) AvailableButtons() []string { return s.kind.AvailableButtons() }

func (s *recordingSession) Kind() controller.Kind { return s.kind }

func (s *recordingSession) Calls() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

func pro() *recordingSession {
	return &recordingSession{kind: controller.ProController}
}

func opener(dev gamepad.Device) gamepad.Opener {
	return func(int) (gamepad.Device, error) { return dev, nil }
}

// run runs the relay until it exits on its own or the device has replayed
// every step, then stops it.
func run(t *testing.T, r *Relay, dev *fakeDevice) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	select {
	case err := <-errc:
		return err
	case <-dev.drained:
		cancel()
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not consume the scripted events")
	}

	select {
	case err := <-errc:
		return err
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after cancel")
		return nil
	}
}

func buttonsOnly(layout map[string]int) Config {
	return Config{Buttons: layout, Axes: &gamepad.AxisLayout{}}
}

func TestRelayButtonEventResyncsAllButtons(t *testing.T) {
	dev := newFakeDevice(step{
		buttons: map[int]bool{1: true},
		events:  []gamepad.Event{{Kind: gamepad.EventButtonDown, Index: 1}},
	})
	sess := pro()
	r, err := New(buttonsOnly(map[string]int{"b": 0, "a": 1}), sess, opener(dev), nil, nil)
	require.NoError(t, err)

	require.NoError(t, run(t, r, dev))
	assert.Equal(t, []call{
		{Op: "button", Target: "b", Pressed: false},
		{Op: "button", Target: "a", Pressed: true},
	}, sess.Calls())
	assert.True(t, dev.closed)
}

func TestRelayIgnoresUnmappedButton(t *testing.T) {
	dev := newFakeDevice(step{
		buttons: map[int]bool{7: true},
		events: []gamepad.Event{
			{Kind: gamepad.EventButtonDown, Index: 7},
			{Kind: gamepad.EventButtonUp, Index: 7},
		},
	})
	sess := pro()
	r, err := New(buttonsOnly(map[string]int{"b": 0, "a": 1}), sess, opener(dev), nil, nil)
	require.NoError(t, err)

	require.NoError(t, run(t, r, dev))
	assert.Empty(t, sess.Calls())
}

func TestRelayHatMotion(t *testing.T) {
	right := gamepad.Hat{H: 1}
	dev := newFakeDevice(step{
		hat: &right,
		events: []gamepad.Event{
			{Kind: gamepad.EventHatMotion, Index: 0, Hat: right},
			{Kind: gamepad.EventHatMotion, Index: 3, Hat: right},
		},
	})
	sess := pro()
	r, err := New(buttonsOnly(map[string]int{"a": 1}), sess, opener(dev), nil, nil)
	require.NoError(t, err)

	require.NoError(t, run(t, r, dev))
	assert.Equal(t, []call{
		{Op: "button", Target: "right", Pressed: true},
		{Op: "button", Target: "up", Pressed: false},
		{Op: "button", Target: "down", Pressed: false},
	}, sess.Calls())
}

func TestRelayHatDedupe(t *testing.T) {
	up := gamepad.Hat{V: 1}
	ev := gamepad.Event{Kind: gamepad.EventHatMotion, Hat: up}
	steps := func() []step {
		return []step{{hat: &up, events: []gamepad.Event{ev}}, {events: []gamepad.Event{ev}}}
	}

	for _, tc := range []struct {
		dedupe bool
		want   int
	}{
		{false, 6},
		{true, 3},
	} {
		dev := newFakeDevice(steps()...)
		sess := pro()
		cfg := buttonsOnly(map[string]int{"a": 1})
		cfg.HatDedupe = tc.dedupe
		r, err := New(cfg, sess, opener(dev), nil, nil)
		require.NoError(t, err)

		require.NoError(t, run(t, r, dev))
		assert.Len(t, sess.Calls(), tc.want, "dedupe=%v", tc.dedupe)
	}
}

func TestRelayAnalogSkipCarriesPendingMotion(t *testing.T) {
	axis := gamepad.Event{Kind: gamepad.EventAxisMotion, Index: 0, Value: 1}
	dev := newFakeDevice(
		step{axes: map[int]float64{0: 1}, events: []gamepad.Event{axis}},
		step{events: []gamepad.Event{axis}},
		step{axes: map[int]float64{0: -1, 1: 1, 2: 0.9}},
	)
	sess := pro()
	cfg := Config{
		Buttons:    map[string]int{"a": 1},
		Axes:       &gamepad.AxisLayout{Sticks: map[string][]int{"l_stick_analog": {0, 1}}, Triggers: map[string]gamepad.TriggerLayout{"zl": {Axis: 2, Threshold: -0.5}}},
		Analog:     true,
		AnalogSkip: 3,
	}
	r, err := New(cfg, sess, opener(dev), nil, nil)
	require.NoError(t, err)

	require.NoError(t, run(t, r, dev))
	assert.Equal(t, []call{
		{Op: "stick", Target: "l_stick_analog", Pos: controller.StickPosition{H: 0, V: 0}},
		{Op: "button", Target: "zl", Pressed: true},
	}, sess.Calls())
}

func TestRelayAnalogDisabled(t *testing.T) {
	dev := newFakeDevice(step{
		axes:   map[int]float64{0: 1},
		events: []gamepad.Event{{Kind: gamepad.EventAxisMotion, Index: 0, Value: 1}},
	})
	sess := pro()
	cfg := Config{Buttons: map[string]int{"a": 1}, AnalogSkip: 1}
	r, err := New(cfg, sess, opener(dev), nil, nil)
	require.NoError(t, err)

	require.NoError(t, run(t, r, dev))
	assert.Empty(t, sess.Calls())
}

func TestRelayStopsOnClosedSession(t *testing.T) {
	dev := newFakeDevice(
		step{events: []gamepad.Event{{Kind: gamepad.EventButtonDown, Index: 0}}},
		step{events: []gamepad.Event{{Kind: gamepad.EventButtonDown, Index: 1}}},
	)
	sess := pro()
	sess.closed = true
	var logs bytes.Buffer
	logger := zerolog.New(&logs)
	r, err := New(buttonsOnly(map[string]int{"b": 0, "a": 1}), sess, opener(dev), nil, &logger)
	require.NoError(t, err)

	err = run(t, r, dev)
	require.ErrorIs(t, err, controller.ErrSessionClosed)

	var ue *UpdateError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "update_button", ue.Op)
	assert.Equal(t, "b", ue.Target)
	assert.Empty(t, sess.Calls())
	assert.True(t, dev.closed)

	var entry map[string]any
	for line := range strings.Lines(logs.String()) {
		var e map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		if e["level"] == "error" {
			entry = e
		}
	}
	require.NotNil(t, entry, "no error-level log line")
	assert.Equal(t, "update_button", entry["op"])
	assert.Equal(t, "b", entry["target"])
	assert.NotEmpty(t, entry["run_id"])
}

func TestRelayCancelWithinInterval(t *testing.T) {
	dev := newFakeDevice()
	r, err := New(Config{PollInterval: time.Hour}, pro(), opener(dev), nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	<-dev.drained
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay ignored cancellation")
	}
}

func TestRelayCancelledBeforeStart(t *testing.T) {
	dev := newFakeDevice(step{events: []gamepad.Event{{Kind: gamepad.EventButtonDown, Index: 0}}})
	sess := pro()
	r, err := New(buttonsOnly(map[string]int{"b": 0}), sess, opener(dev), nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx))
	assert.Empty(t, sess.Calls())
}

func TestRelayDeviceNotFound(t *testing.T) {
	open := func(index int) (gamepad.Device, error) {
		return nil, &gamepad.DeviceNotFoundError{Index: index, Available: 0}
	}
	r, err := New(Config{DeviceIndex: 2}, pro(), open, nil, nil)
	require.NoError(t, err)

	err = r.Run(context.Background())
	require.ErrorIs(t, err, gamepad.ErrDeviceNotFound)

	var nf *gamepad.DeviceNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 2, nf.Index)
}

func TestNewRejectsInvalidLayouts(t *testing.T) {
	tests := []struct {
		name string
		kind controller.Kind
		cfg  Config
	}{
		{"unknown button", controller.ProController, Config{Buttons: map[string]int{"turbo": 0}}},
		{"duplicate index", controller.ProController, Config{Buttons: map[string]int{"a": 0, "b": 0}}},
		{"button missing on kind", controller.JoyConR, Config{Buttons: map[string]int{"zl": 0}}},
		{"stick missing on kind", controller.JoyConR, Config{Axes: &gamepad.AxisLayout{Sticks: map[string][]int{"l_stick_analog": {0, 1}}}}},
		{"trigger missing on kind", controller.JoyConL, Config{Axes: &gamepad.AxisLayout{Triggers: map[string]gamepad.TriggerLayout{"zr": {Axis: 5}}}}},
		{"negative skip", controller.ProController, Config{AnalogSkip: -1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg, &recordingSession{kind: tc.kind}, opener(newFakeDevice()), nil, nil)
			require.ErrorIs(t, err, gamepad.ErrInvalidMapping)
		})
	}

	_, err := New(Config{DeviceIndex: -1}, pro(), opener(newFakeDevice()), nil, nil)
	require.Error(t, err)
}

func TestLayoutFiltersProfileToKind(t *testing.T) {
	r, err := New(Config{}, &recordingSession{kind: controller.JoyConR}, opener(newFakeDevice()), nil, nil)
	require.NoError(t, err)

	buttons, axes, err := r.Layout(gamepad.DeviceInfo{VendorID: 0x1234, ProductID: 0x5678})
	require.NoError(t, err)

	var names []string
	for _, b := range buttons.Bindings() {
		names = append(names, b.Button)
	}
	assert.Equal(t, []string{"b", "a", "y", "x", "r", "plus", "home", "r_stick"}, names)
	assert.Equal(t, []gamepad.StickBinding{{Stick: "r_stick_analog", Horizontal: 3, Vertical: 4}}, axes.Sticks())
	assert.Equal(t, []gamepad.TriggerBinding{{Button: "zr", Axis: 5, Threshold: -0.5}}, axes.Triggers())
}

func TestRelayMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	dev := newFakeDevice(step{
		buttons: map[int]bool{0: true},
		events:  []gamepad.Event{{Kind: gamepad.EventButtonDown, Index: 0}},
	})
	r, err := New(buttonsOnly(map[string]int{"b": 0}), pro(), opener(dev), NewMetrics(reg), nil)
	require.NoError(t, err)
	require.NoError(t, run(t, r, dev))

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, values["padrelay_relay_events_total"])
	assert.Equal(t, 1.0, values["padrelay_relay_updates_total"])
	assert.GreaterOrEqual(t, values["padrelay_relay_cycles_total"], 1.0)
	assert.Equal(t, 0.0, values["padrelay_relay_running"])
}

func TestManager(t *testing.T) {
	dev := newFakeDevice()
	r, err := New(Config{}, pro(), opener(dev), nil, nil)
	require.NoError(t, err)
	m := NewManager(r, nil)

	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.Running())
	assert.ErrorIs(t, m.Start(context.Background()), ErrAlreadyRunning)

	<-dev.drained
	m.Stop()
	assert.False(t, m.Running())
	assert.NoError(t, m.Err())

	// a failed run is reported through Err
	failing := NewManager(runnerFunc(func(context.Context) error { return errors.New("boom") }), nil)
	require.NoError(t, failing.Start(context.Background()))
	<-failing.Done()
	assert.EqualError(t, failing.Err(), "boom")
	assert.False(t, failing.Running())
}

func TestManagerWhileIdle(t *testing.T) {
	release := make(chan struct{})
	m := NewManager(runnerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}), nil)

	entered := make(chan struct{})
	idleErr := make(chan error, 1)
	go func() {
		idleErr <- m.WhileIdle(func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	started := make(chan error, 1)
	go func() { started <- m.Start(context.Background()) }()

	select {
	case <-started:
		t.Fatal("relay started while an idle-only function was running")
	case <-time.After(20 * time.Millisecond):
	}
	assert.False(t, m.Running())

	close(release)
	require.NoError(t, <-idleErr)
	require.NoError(t, <-started)
	assert.True(t, m.Running())

	called := false
	err := m.WhileIdle(func() error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrAlreadyRunning)
	assert.False(t, called)

	m.Stop()
	require.NoError(t, m.WhileIdle(func() error { return nil }))
}

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }
