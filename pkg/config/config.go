// Package config loads daemon configuration from a JSON file.
// Every value can also be set from the command line; flags take precedence
// over the file, and the file over built-in defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the complete daemon configuration.
type Config struct {
	Source SourceConfig `json:"source"`
	Output OutputConfig `json:"output"`
	Report ReportConfig `json:"report"`
}

// SourceConfig selects where samples come from.
type SourceConfig struct {
	// Mode is "stdin", "file", or "sdr". Empty means the source must be
	// chosen on the command line.
	Mode string `json:"mode"`

	// Format is the IQ sample encoding: CU8, CS8, CS16H, or CF32H.
	Format string `json:"format"`

	// File is the sample file path for file mode.
	File string `json:"file"`

	// FileThrottle paces file playback to realtime.
	FileThrottle bool `json:"file_throttle"`

	// SDRDevice selects the RTL-SDR dongle by index or serial number.
	// Empty selects device 0.
	SDRDevice string `json:"sdr_device"`

	// SDRGain is the manual tuner gain in tenths of a dB; 0 selects
	// automatic gain.
	SDRGain int `json:"sdr_gain"`
}

// OutputConfig selects where decoded traffic goes.
type OutputConfig struct {
	// RawPorts and JSONPorts are "[host:]port" listen specs; each opens
	// one listener per resolved address.
	RawPorts  []string `json:"raw_ports"`
	JSONPorts []string `json:"json_ports"`

	// RawStdout and JSONStdout echo the corresponding feed to stdout.
	RawStdout  bool `json:"raw_stdout"`
	JSONStdout bool `json:"json_stdout"`
}

// ReportConfig controls the incremental TSV report feed.
type ReportConfig struct {
	// Stdout enables the report feed on stdout.
	Stdout bool `json:"stdout"`

	// IntervalMillis is the report sweep interval. 0 selects 1000.
	IntervalMillis int `json:"interval_millis"`

	// TimeoutSeconds is how long targets are retained after their last
	// message. 0 selects 300.
	TimeoutSeconds int `json:"timeout_seconds"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Format: "CU8",
		},
		Report: ReportConfig{
			IntervalMillis: 1000,
			TimeoutSeconds: 300,
		},
	}
}

// Load reads configuration from a JSON file, applying defaults for absent
// fields. A missing file returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for internally inconsistent settings.
func (c *Config) Validate() error {
	switch c.Source.Mode {
	case "", "stdin", "sdr":
	case "file":
		if c.Source.File == "" {
			return fmt.Errorf("source mode is file but no file is configured")
		}
	default:
		return fmt.Errorf("unknown source mode %q", c.Source.Mode)
	}

	switch c.Source.Format {
	case "CU8", "CS8", "CS16H", "CF32H":
	default:
		return fmt.Errorf("unknown sample format %q", c.Source.Format)
	}

	if c.Report.IntervalMillis < 0 {
		return fmt.Errorf("report interval must not be negative")
	}
	if c.Report.TimeoutSeconds < 0 {
		return fmt.Errorf("tracker timeout must not be negative")
	}
	return nil
}
