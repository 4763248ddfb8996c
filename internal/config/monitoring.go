// Monitoring configuration - logging, telemetry and alert settings.
//
// DESIGN: Separates logging (zerolog) from telemetry (JSONL file, optional sqlite).
// Logging is for operators, telemetry is for analytics. Telemetry never
// records message text.
package config

import (
	"fmt"
	"time"
)

// MonitoringConfig contains all monitoring settings.
type MonitoringConfig struct {
	// Logging settings
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json, console, auto
	LogOutput string `yaml:"log_output"` // stdout, stderr, or file path

	// Telemetry settings
	TelemetryEnabled bool   `yaml:"telemetry_enabled"` // Enable chat event tracking
	TelemetryPath    string `yaml:"telemetry_path"`    // Path to telemetry JSONL file
	TelemetryDB      string `yaml:"telemetry_db"`      // Optional sqlite file for the same events
	LogToStdout      bool   `yaml:"log_to_stdout"`     // Also log events to stdout

	// Alerts
	HighLatencyThreshold time.Duration `yaml:"high_latency_threshold"` // Upstream latency alert, 0 = off

	// Token estimation
	TokenEncoding string `yaml:"token_encoding"` // tiktoken encoding, "none" = byte heuristic
}

// Validate checks the monitoring settings.
func (m *MonitoringConfig) Validate() error {
	switch m.LogFormat {
	case "", "json", "console", "auto":
	default:
		return fmt.Errorf("invalid monitoring.log_format %q (json, console or auto)", m.LogFormat)
	}
	if m.HighLatencyThreshold < 0 {
		return fmt.Errorf("monitoring.high_latency_threshold must not be negative")
	}
	return nil
}
