// Package config loads and validates the controller's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/airtap/ratectl/internal/proto"
	"github.com/airtap/ratectl/internal/rc"
	"github.com/airtap/ratectl/internal/util"
)

const (
	defaultAPPort           = 21059
	defaultReconnectTimeout = 10 * time.Second
	defaultNumRates         = 1024
	defaultNumTxPowers      = 64
	defaultTimestampFormat  = "hex_ns"
	defaultPauseOnDisassoc  = true

	defaultProbeInterval   = 1 * time.Second
	defaultProbeWindowSize = 5

	defaultExportAddr = "127.0.0.1"
	defaultExportPort = 8959

	defaultTracePath = "ratectl-trace.db"
)

type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar")
	}
	switch value.Tag {
	case "!!int", "!!float":
		var secs float64
		if err := value.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	default:
		var raw string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		if raw == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

type Config struct {
	LogLevel     string              `yaml:"log_level"`
	AccessPoints []AccessPointConfig `yaml:"access_points"`
	Probe        ProbeConfig         `yaml:"probe"`
	Export       ExportConfig        `yaml:"export"`
	Trace        TraceConfig         `yaml:"trace"`
}

type AccessPointConfig struct {
	Name             string            `yaml:"name"`
	Host             string            `yaml:"host"`
	Port             int               `yaml:"port"`
	Radios           []string          `yaml:"radios"`
	TimestampFormat  string            `yaml:"timestamp_format"`
	NumRates         int               `yaml:"num_rates"`
	NumTxPowers      int               `yaml:"num_tx_powers"`
	PauseOnDisassoc  *bool             `yaml:"pause_on_disassoc"`
	ReconnectTimeout Duration          `yaml:"reconnect_timeout"`
	RateControl      RateControlConfig `yaml:"rate_control"`
}

type RateControlConfig struct {
	Algorithm string            `yaml:"algorithm"`
	Options   map[string]string `yaml:"options"`
}

type ProbeConfig struct {
	Enabled    *bool    `yaml:"enabled"`
	Interval   Duration `yaml:"interval"`
	WindowSize int      `yaml:"window_size"`
}

type ExportConfig struct {
	Enabled  *bool  `yaml:"enabled"`
	BindAddr string `yaml:"bind_addr"`
	BindPort int    `yaml:"bind_port"`
}

type TraceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func (p ProbeConfig) IsEnabled() bool {
	return util.BoolValue(p.Enabled, true)
}

func (e ExportConfig) IsEnabled() bool {
	return util.BoolValue(e.Enabled, true)
}

func (a AccessPointConfig) PausesOnDisassoc() bool {
	return util.BoolValue(a.PauseOnDisassoc, defaultPauseOnDisassoc)
}

func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	for i := range c.AccessPoints {
		ap := &c.AccessPoints[i]
		if ap.Port == 0 {
			ap.Port = defaultAPPort
		}
		if ap.TimestampFormat == "" {
			ap.TimestampFormat = defaultTimestampFormat
		}
		if ap.NumRates == 0 {
			ap.NumRates = defaultNumRates
		}
		if ap.NumTxPowers == 0 {
			ap.NumTxPowers = defaultNumTxPowers
		}
		if ap.PauseOnDisassoc == nil {
			val := defaultPauseOnDisassoc
			ap.PauseOnDisassoc = &val
		}
		if ap.ReconnectTimeout == 0 {
			ap.ReconnectTimeout = Duration(defaultReconnectTimeout)
		}
		if ap.RateControl.Algorithm == "" {
			ap.RateControl.Algorithm = rc.KernelAuto
		}
	}

	if c.Probe.Interval == 0 {
		c.Probe.Interval = Duration(defaultProbeInterval)
	}
	if c.Probe.WindowSize == 0 {
		c.Probe.WindowSize = defaultProbeWindowSize
	}

	if c.Export.BindAddr == "" {
		c.Export.BindAddr = defaultExportAddr
	}
	if c.Export.BindPort == 0 {
		c.Export.BindPort = defaultExportPort
	}

	if c.Trace.Enabled && c.Trace.Path == "" {
		c.Trace.Path = defaultTracePath
	}
}

func (c *Config) validate() error {
	if _, err := util.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	if len(c.AccessPoints) == 0 {
		return errors.New("access_points must not be empty")
	}

	seen := make(map[string]struct{}, len(c.AccessPoints))
	for i := range c.AccessPoints {
		ap := &c.AccessPoints[i]
		ap.Name = strings.TrimSpace(ap.Name)
		if ap.Name == "" {
			return errors.New("access_points.name must not be empty")
		}
		if _, ok := seen[ap.Name]; ok {
			return fmt.Errorf("duplicate access point name: %s", ap.Name)
		}
		seen[ap.Name] = struct{}{}

		ap.Host = strings.TrimSpace(ap.Host)
		if ap.Host == "" {
			return fmt.Errorf("access_points[%s].host must not be empty", ap.Name)
		}
		if ap.Port <= 0 || ap.Port > 65535 {
			return fmt.Errorf("access_points[%s].port must be in 1..65535", ap.Name)
		}
		if len(ap.Radios) == 0 {
			return fmt.Errorf("access_points[%s].radios must not be empty", ap.Name)
		}
		seenRadios := make(map[string]struct{}, len(ap.Radios))
		for j, radio := range ap.Radios {
			radio = strings.TrimSpace(radio)
			if radio == "" {
				return fmt.Errorf("access_points[%s].radios[%d] must not be empty", ap.Name, j)
			}
			if _, ok := seenRadios[radio]; ok {
				return fmt.Errorf("access_points[%s] duplicate radio: %s", ap.Name, radio)
			}
			seenRadios[radio] = struct{}{}
			ap.Radios[j] = radio
		}
		if _, err := proto.ParseTimestampFormat(ap.TimestampFormat); err != nil {
			return fmt.Errorf("access_points[%s].timestamp_format: %w", ap.Name, err)
		}
		if ap.NumRates <= 0 {
			return fmt.Errorf("access_points[%s].num_rates must be > 0", ap.Name)
		}
		if ap.NumTxPowers <= 0 {
			return fmt.Errorf("access_points[%s].num_tx_powers must be > 0", ap.Name)
		}
		if ap.ReconnectTimeout.Duration() <= 0 {
			return fmt.Errorf("access_points[%s].reconnect_timeout must be > 0", ap.Name)
		}
		if !rc.Known(ap.RateControl.Algorithm) {
			return fmt.Errorf("access_points[%s].rate_control.algorithm: unknown algorithm %q", ap.Name, ap.RateControl.Algorithm)
		}
	}

	if c.Probe.IsEnabled() {
		if c.Probe.Interval.Duration() <= 0 {
			return errors.New("probe.interval must be > 0")
		}
		if c.Probe.WindowSize <= 0 {
			return errors.New("probe.window_size must be > 0")
		}
	}

	if c.Export.IsEnabled() {
		if c.Export.BindPort <= 0 || c.Export.BindPort > 65535 {
			return errors.New("export.bind_port must be in 1..65535")
		}
	}

	if c.Trace.Enabled && strings.TrimSpace(c.Trace.Path) == "" {
		return errors.New("trace.path must not be empty when trace is enabled")
	}

	return nil
}
