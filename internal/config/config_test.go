package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soar/padrelay/internal/controller"
	"github.com/soar/padrelay/internal/gamepad"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, controller.ProController, cfg.Kind)
	assert.Equal(t, 0, cfg.DeviceIndex)
	assert.Equal(t, time.Millisecond, cfg.PollInterval)
	assert.False(t, cfg.Analog.Enabled)
	assert.Equal(t, 5, cfg.Analog.Skip)
	assert.True(t, cfg.Monitor.Enabled)
	assert.Equal(t, ":8080", cfg.Monitor.Addr)
	assert.Equal(t, "info", cfg.Log.Level)

	rc := cfg.RelayConfig()
	assert.Nil(t, rc.Buttons)
	assert.Nil(t, rc.Axes)
}

func TestLoadFlagsAndKind(t *testing.T) {
	cfg, err := Load([]string{"--device-index", "2", "--analog", "--poll-interval", "4ms", "joycon_r"})
	require.NoError(t, err)

	assert.Equal(t, controller.JoyConR, cfg.Kind)
	assert.Equal(t, 2, cfg.DeviceIndex)
	assert.True(t, cfg.Analog.Enabled)
	assert.Equal(t, 4*time.Millisecond, cfg.PollInterval)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "padrelay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
device_index: 1
hat:
  dedupe: true
buttons:
  a: 0
  b: 1
analog:
  enabled: true
  skip: 3
  sticks:
    l_stick_analog: [0, 1]
  triggers:
    zr:
      axis: 5
      threshold: -0.25
monitor:
  addr: "127.0.0.1:9000"
`), 0o644))

	cfg, err := Load([]string{"--config", path, "--device-index", "3"})
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.DeviceIndex, "flags override the file")
	assert.True(t, cfg.Hat.Dedupe)
	assert.Equal(t, "127.0.0.1:9000", cfg.Monitor.Addr)

	rc := cfg.RelayConfig()
	assert.Equal(t, map[string]int{"a": 0, "b": 1}, rc.Buttons)
	assert.Equal(t, 3, rc.AnalogSkip)
	require.NotNil(t, rc.Axes)
	assert.Equal(t, []int{0, 1}, rc.Axes.Sticks["l_stick_analog"])
	assert.Equal(t, gamepad.TriggerLayout{Axis: 5, Threshold: -0.25}, rc.Axes.Triggers["zr"])
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("PADRELAY_DEVICE_INDEX", "4")
	t.Setenv("PADRELAY_MONITOR_ENABLED", "false")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.DeviceIndex)
	assert.False(t, cfg.Monitor.Enabled)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown kind", []string{"SNES"}},
		{"two kinds", []string{"JOYCON_L", "JOYCON_R"}},
		{"zero skip", []string{"--analog-skip", "0"}},
		{"negative device", []string{"--device-index", "-1"}},
		{"zero interval", []string{"--poll-interval", "0s"}},
		{"missing file", []string{"--config", "/nonexistent/padrelay.yaml"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(tc.args)
			assert.Error(t, err)
		})
	}

	_, err := Load([]string{"--help"})
	assert.ErrorIs(t, err, pflag.ErrHelp)
}
