// Package config loads padrelay settings from flags, an optional YAML file
// and PADRELAY_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/soar/padrelay/internal/controller"
	"github.com/soar/padrelay/internal/gamepad"
	"github.com/soar/padrelay/internal/relay"
)

const envPrefix = "PADRELAY"

type AnalogConfig struct {
	Enabled  bool                             `mapstructure:"enabled"`
	Skip     int                              `mapstructure:"skip"`
	Deadzone float64                          `mapstructure:"deadzone"`
	Sticks   map[string][]int                 `mapstructure:"sticks"`
	Triggers map[string]gamepad.TriggerLayout `mapstructure:"triggers"`
}

type HatConfig struct {
	Dedupe bool `mapstructure:"dedupe"`
}

type RelayConfig struct {
	Autostart bool `mapstructure:"autostart"`
}

type MonitorConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Kind controller.Kind `mapstructure:"-"`

	DeviceIndex  int            `mapstructure:"device_index"`
	HatIndex     int            `mapstructure:"hat_index"`
	PollInterval time.Duration  `mapstructure:"poll_interval"`
	Buttons      map[string]int `mapstructure:"buttons"`
	Analog       AnalogConfig   `mapstructure:"analog"`
	Hat          HatConfig      `mapstructure:"hat"`
	Relay        RelayConfig    `mapstructure:"relay"`
	Monitor      MonitorConfig  `mapstructure:"monitor"`
	AuxData      string         `mapstructure:"aux_data"`
	Log          LogConfig      `mapstructure:"log"`
	Tray         bool           `mapstructure:"tray"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device_index", 0)
	v.SetDefault("hat_index", 0)
	v.SetDefault("poll_interval", relay.DefaultPollInterval)
	v.SetDefault("analog.enabled", false)
	v.SetDefault("analog.skip", relay.DefaultAnalogSkip)
	v.SetDefault("analog.deadzone", 0.0)
	v.SetDefault("hat.dedupe", false)
	v.SetDefault("relay.autostart", false)
	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.addr", ":8080")
	v.SetDefault("aux_data", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("tray", true)
}

// FlagSet returns the command line flags understood by Load.
func FlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("padrelay", pflag.ContinueOnError)
	fs.Usage = func() {}
	fs.StringP("config", "c", "", "YAML config file")
	fs.IntP("device-index", "d", 0, "index of the physical input device")
	fs.Int("hat-index", 0, "index of the hat used as the d-pad")
	fs.Duration("poll-interval", relay.DefaultPollInterval, "pause between relay poll cycles")
	fs.Bool("analog", false, "relay analog sticks and triggers")
	fs.Int("analog-skip", relay.DefaultAnalogSkip, "send analog updates every N poll cycles")
	fs.Bool("hat-dedupe", false, "skip hat events that do not move the hat")
	fs.Bool("autostart", false, "start the relay on launch")
	fs.Bool("monitor", true, "serve the web monitor")
	fs.String("monitor-addr", ":8080", "web monitor listen address")
	fs.String("aux-data", "", "amiibo dump loaded into the controller at start")
	fs.String("log-level", "info", "trace, debug, info, warn or error")
	fs.String("log-format", "console", "console or json")
	fs.Bool("tray", true, "show the system tray icon (windows)")
	return fs
}

var flagKeys = map[string]string{
	"device-index":  "device_index",
	"hat-index":     "hat_index",
	"poll-interval": "poll_interval",
	"analog":        "analog.enabled",
	"analog-skip":   "analog.skip",
	"hat-dedupe":    "hat.dedupe",
	"autostart":     "relay.autostart",
	"monitor":       "monitor.enabled",
	"monitor-addr":  "monitor.addr",
	"aux-data":      "aux_data",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"tray":          "tray",
}

// Load parses args (without the program name). The single positional
// argument selects the controller kind, PRO_CONTROLLER by default.
// pflag.ErrHelp is returned as is for -h.
func Load(args []string) (*Config, error) {
	fs := FlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, err
		}
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	kind := controller.ProController.String()
	switch fs.NArg() {
	case 0:
	case 1:
		kind = fs.Arg(0)
	default:
		return nil, fmt.Errorf("expected at most one controller kind, got %v", fs.Args())
	}
	k, err := controller.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	cfg.Kind = k

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the scalar settings. Button and axis layouts are checked
// against the controller kind when the relay is built.
func (c *Config) Validate() error {
	var errs []error
	if c.DeviceIndex < 0 {
		errs = append(errs, fmt.Errorf("device_index must not be negative, got %d", c.DeviceIndex))
	}
	if c.HatIndex < 0 {
		errs = append(errs, fmt.Errorf("hat_index must not be negative, got %d", c.HatIndex))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.Analog.Skip < 1 {
		errs = append(errs, fmt.Errorf("analog.skip must be at least 1, got %d", c.Analog.Skip))
	}
	if c.Analog.Deadzone < 0 || c.Analog.Deadzone >= 1 {
		errs = append(errs, fmt.Errorf("analog.deadzone must be in [0, 1), got %v", c.Analog.Deadzone))
	}
	if c.Monitor.Enabled && c.Monitor.Addr == "" {
		errs = append(errs, errors.New("monitor.addr must be set when the monitor is enabled"))
	}
	return errors.Join(errs...)
}

// RelayConfig converts the settings into a relay configuration. Unset
// layouts leave the relay on the device profile.
func (c *Config) RelayConfig() relay.Config {
	rc := relay.Config{
		DeviceIndex:  c.DeviceIndex,
		HatIndex:     c.HatIndex,
		PollInterval: c.PollInterval,
		Analog:       c.Analog.Enabled,
		AnalogSkip:   c.Analog.Skip,
		Deadzone:     c.Analog.Deadzone,
		HatDedupe:    c.Hat.Dedupe,
	}
	if len(c.Buttons) > 0 {
		rc.Buttons = c.Buttons
	}
	if len(c.Analog.Sticks) > 0 || len(c.Analog.Triggers) > 0 {
		rc.Axes = &gamepad.AxisLayout{Sticks: c.Analog.Sticks, Triggers: c.Analog.Triggers}
	}
	return rc
}
