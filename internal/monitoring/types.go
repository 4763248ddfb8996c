// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by both gateway/ and monitoring/ packages.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - Transport:    Which surface served a chat
//   - ChatEvent:    Telemetry data for each exchange (no message text)
//   - Config types: TelemetryConfig, LoggerConfig, AlertConfig
package monitoring

import "time"

// =============================================================================
// TRANSPORTS
// =============================================================================

// Transport identifies which endpoint carried the chat.
type Transport string

const (
	TransportHTTP      Transport = "http"
	TransportUpload    Transport = "upload"
	TransportWebSocket Transport = "websocket"
)

// =============================================================================
// EVENT TYPES - Structured data for telemetry recording
// =============================================================================

// ChatEvent captures one exchange through the gateway.
// Only sizes, ids and outcomes are kept; message content never is.
type ChatEvent struct {
	RequestID        string    `json:"request_id"`
	ConversationID   string    `json:"conversation_id"`
	Timestamp        time.Time `json:"timestamp"`
	Transport        Transport `json:"transport"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model,omitempty"`
	HistoryMessages  int       `json:"history_messages"`
	SentMessages     int       `json:"sent_messages"`
	Trimmed          bool      `json:"trimmed"`
	CappedMessages   int       `json:"capped_messages,omitempty"`
	Flagged          bool      `json:"flagged,omitempty"`
	Attachment       bool      `json:"attachment,omitempty"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens,omitempty"`
	Success          bool      `json:"success"`
	ErrorCategory    string    `json:"error_category,omitempty"`
	UpstreamLatency  int64     `json:"upstream_latency_ms"`
	TotalLatency     int64     `json:"total_latency_ms"`
}

// =============================================================================
// CONFIG TYPES
// =============================================================================

// TelemetryConfig contains telemetry configuration.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LogPath     string `yaml:"log_path"`
	DBPath      string `yaml:"db_path"`
	LogToStdout bool   `yaml:"log_to_stdout"`
}

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console, auto
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// AlertConfig contains alert thresholds.
type AlertConfig struct {
	HighLatencyThreshold time.Duration `yaml:"high_latency_threshold"`
}
