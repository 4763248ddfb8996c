// Package monitoring - alerts.go flags anomalies and errors.
//
// DESIGN: AlertManager logs notable events at appropriate levels:
//   - FlagHighLatency:    Warn when the upstream call exceeds threshold
//   - FlagUpstreamError:  Warn on classified upstream failures
//   - FlagInvalidRequest: Debug on rejected client input
//   - FlagModeration:     Info when user content was replaced
//   - FlagPanic:          Error on recovered panics
package monitoring

import "time"

// AlertManager flags anomalies and errors.
type AlertManager struct {
	logger               *Logger
	highLatencyThreshold time.Duration
}

// NewAlertManager creates a new alert manager.
func NewAlertManager(logger *Logger, cfg AlertConfig) *AlertManager {
	threshold := cfg.HighLatencyThreshold
	if threshold == 0 {
		threshold = 15 * time.Second
	}
	return &AlertManager{logger: logger, highLatencyThreshold: threshold}
}

// FlagHighLatency logs when upstream latency exceeds threshold.
// Returns whether an alert was raised.
func (am *AlertManager) FlagHighLatency(requestID string, latency time.Duration, provider, model string) bool {
	if latency < am.highLatencyThreshold {
		return false
	}
	am.logger.Warn().
		Str("request_id", requestID).
		Dur("latency", latency).
		Str("provider", provider).
		Str("model", model).
		Msg("high_latency")
	return true
}

// FlagUpstreamError logs a classified upstream failure.
func (am *AlertManager) FlagUpstreamError(requestID, conversationID, category string, statusCode int, err error) {
	am.logger.Warn().
		Str("request_id", requestID).
		Str("conversation_id", conversationID).
		Str("category", category).
		Int("status", statusCode).
		Err(err).
		Msg("upstream_error")
}

// FlagInvalidRequest logs invalid request.
func (am *AlertManager) FlagInvalidRequest(requestID, reason string) {
	am.logger.Debug().
		Str("request_id", requestID).
		Str("reason", reason).
		Msg("invalid_request")
}

// FlagModeration logs that user content was swapped for the directive.
func (am *AlertManager) FlagModeration(requestID, conversationID string) {
	am.logger.Info().
		Str("request_id", requestID).
		Str("conversation_id", conversationID).
		Msg("content_flagged")
}

// FlagPanic logs recovered panic.
func (am *AlertManager) FlagPanic(requestID string, panicValue interface{}, stack string) {
	am.logger.Error().
		Str("request_id", requestID).
		Interface("panic", panicValue).
		Str("stack", stack).
		Msg("panic_recovered")
}
