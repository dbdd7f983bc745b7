package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
access_points:
  - name: ap0
    host: 10.0.0.2
    radios: [phy0, phy1]
`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Fatalf("log_level = %q, want info", cfg.LogLevel)
	}
	ap := cfg.AccessPoints[0]
	if ap.Port != defaultAPPort {
		t.Fatalf("port = %d, want %d", ap.Port, defaultAPPort)
	}
	if ap.TimestampFormat != "hex_ns" {
		t.Fatalf("timestamp_format = %q, want hex_ns", ap.TimestampFormat)
	}
	if ap.NumRates != defaultNumRates || ap.NumTxPowers != defaultNumTxPowers {
		t.Fatalf("dims = %d/%d", ap.NumRates, ap.NumTxPowers)
	}
	if !ap.PausesOnDisassoc() {
		t.Fatalf("pause_on_disassoc default = false, want true")
	}
	if ap.ReconnectTimeout.Duration() != defaultReconnectTimeout {
		t.Fatalf("reconnect_timeout = %v", ap.ReconnectTimeout.Duration())
	}
	if ap.RateControl.Algorithm != "kernel_auto" {
		t.Fatalf("algorithm = %q, want kernel_auto", ap.RateControl.Algorithm)
	}
	if !cfg.Probe.IsEnabled() || cfg.Probe.WindowSize != defaultProbeWindowSize {
		t.Fatalf("probe defaults = %+v", cfg.Probe)
	}
	if !cfg.Export.IsEnabled() || cfg.Export.BindPort != defaultExportPort {
		t.Fatalf("export defaults = %+v", cfg.Export)
	}
	if cfg.Trace.Enabled {
		t.Fatalf("trace enabled by default")
	}
}

func TestLoadConfigFull(t *testing.T) {
	content := `
log_level: debug
access_points:
  - name: lab-ap
    host: ap.lab.example
    port: 21060
    radios: [phy0]
    timestamp_format: sec_nsec
    num_rates: 512
    num_tx_powers: 32
    pause_on_disassoc: false
    reconnect_timeout: 3s
    rate_control:
      algorithm: fixed_mrr
      options:
        rates: d7,c5
        counts: "4,2"
probe:
  enabled: false
export:
  bind_addr: 0.0.0.0
  bind_port: 9100
trace:
  enabled: true
  path: /tmp/trace.db
`
	cfg, err := LoadConfig(writeConfig(t, content))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	ap := cfg.AccessPoints[0]
	if ap.Port != 21060 || ap.TimestampFormat != "sec_nsec" {
		t.Fatalf("ap = %+v", ap)
	}
	if ap.PausesOnDisassoc() {
		t.Fatalf("pause_on_disassoc = true, want false")
	}
	if ap.ReconnectTimeout.Duration() != 3*time.Second {
		t.Fatalf("reconnect_timeout = %v, want 3s", ap.ReconnectTimeout.Duration())
	}
	if ap.RateControl.Algorithm != "fixed_mrr" || ap.RateControl.Options["rates"] != "d7,c5" {
		t.Fatalf("rate_control = %+v", ap.RateControl)
	}
	if cfg.Probe.IsEnabled() {
		t.Fatalf("probe enabled, want disabled")
	}
	if cfg.Export.BindAddr != "0.0.0.0" || cfg.Export.BindPort != 9100 {
		t.Fatalf("export = %+v", cfg.Export)
	}
	if !cfg.Trace.Enabled || cfg.Trace.Path != "/tmp/trace.db" {
		t.Fatalf("trace = %+v", cfg.Trace)
	}
}

func TestLoadConfigRejects(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"no access points", "log_level: info\n"},
		{"missing host", `
access_points:
  - name: ap0
    radios: [phy0]
`},
		{"no radios", `
access_points:
  - name: ap0
    host: 10.0.0.2
    radios: []
`},
		{"duplicate radio", `
access_points:
  - name: ap0
    host: 10.0.0.2
    radios: [phy0, phy0]
`},
		{"duplicate name", `
access_points:
  - name: ap0
    host: 10.0.0.2
    radios: [phy0]
  - name: ap0
    host: 10.0.0.3
    radios: [phy0]
`},
		{"bad timestamp format", `
access_points:
  - name: ap0
    host: 10.0.0.2
    radios: [phy0]
    timestamp_format: unix
`},
		{"unknown algorithm", `
access_points:
  - name: ap0
    host: 10.0.0.2
    radios: [phy0]
    rate_control:
      algorithm: minstrel_deluxe
`},
		{"bad port", `
access_points:
  - name: ap0
    host: 10.0.0.2
    port: 70000
    radios: [phy0]
`},
		{"bad log level", `
log_level: chatty
access_points:
  - name: ap0
    host: 10.0.0.2
    radios: [phy0]
`},
		{"bad probe window", `
access_points:
  - name: ap0
    host: 10.0.0.2
    radios: [phy0]
probe:
  window_size: -1
`},
	}
	for _, tc := range cases {
		if _, err := LoadConfig(writeConfig(t, tc.content)); err == nil {
			t.Fatalf("%s: config accepted, want error", tc.name)
		}
	}
}

func TestDurationScalarForms(t *testing.T) {
	content := `
access_points:
  - name: ap0
    host: 10.0.0.2
    radios: [phy0]
    reconnect_timeout: 2
probe:
  interval: 250ms
`
	cfg, err := LoadConfig(writeConfig(t, content))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got := cfg.AccessPoints[0].ReconnectTimeout.Duration(); got != 2*time.Second {
		t.Fatalf("numeric duration = %v, want 2s", got)
	}
	if got := cfg.Probe.Interval.Duration(); got != 250*time.Millisecond {
		t.Fatalf("string duration = %v, want 250ms", got)
	}
}
