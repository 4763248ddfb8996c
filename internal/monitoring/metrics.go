// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - requests/successes:  HTTP chat requests and successful replies
//   - upstream_errors_*:   Failures by category
//   - trimmed/capped:      How often the send window and hard cap kicked in
//   - flagged:             Moderation substitutions
//   - conversations_*:     Explicit lifecycle calls
//
// Served as JSON on /stats.
package monitoring

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	requests             atomic.Int64
	successes            atomic.Int64
	trimmed              atomic.Int64
	cappedMessages       atomic.Int64
	flagged              atomic.Int64
	promptTokens         atomic.Int64
	completionTokens     atomic.Int64
	upstreamLatencyMs    atomic.Int64
	conversationsCreated atomic.Int64
	conversationsCleared atomic.Int64

	mu             sync.Mutex
	upstreamErrors map[string]int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{upstreamErrors: make(map[string]int64)}
}

// RecordRequest records a chat request.
func (mc *MetricsCollector) RecordRequest(success bool) {
	mc.requests.Add(1)
	if success {
		mc.successes.Add(1)
	}
}

// ChatOutcome is what one successful exchange contributes.
type ChatOutcome struct {
	Trimmed          bool
	CappedMessages   int
	Flagged          bool
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// RecordChat records a successful exchange.
func (mc *MetricsCollector) RecordChat(o ChatOutcome) {
	if o.Trimmed {
		mc.trimmed.Add(1)
	}
	mc.cappedMessages.Add(int64(o.CappedMessages))
	if o.Flagged {
		mc.flagged.Add(1)
	}
	mc.promptTokens.Add(int64(o.PromptTokens))
	mc.completionTokens.Add(int64(o.CompletionTokens))
	mc.upstreamLatencyMs.Add(o.Latency.Milliseconds())
}

// RecordUpstreamError records a failed upstream call by category.
func (mc *MetricsCollector) RecordUpstreamError(category string) {
	mc.mu.Lock()
	mc.upstreamErrors[category]++
	mc.mu.Unlock()
}

// RecordConversationCreated records an explicit new conversation.
func (mc *MetricsCollector) RecordConversationCreated() { mc.conversationsCreated.Add(1) }

// RecordConversationCleared records a delete that removed something.
func (mc *MetricsCollector) RecordConversationCleared() { mc.conversationsCleared.Add(1) }

// Stats returns current metrics.
func (mc *MetricsCollector) Stats() map[string]int64 {
	stats := map[string]int64{
		"requests":              mc.requests.Load(),
		"successes":             mc.successes.Load(),
		"trimmed":               mc.trimmed.Load(),
		"capped_messages":       mc.cappedMessages.Load(),
		"flagged":               mc.flagged.Load(),
		"prompt_tokens":         mc.promptTokens.Load(),
		"completion_tokens":     mc.completionTokens.Load(),
		"upstream_latency_ms":   mc.upstreamLatencyMs.Load(),
		"conversations_created": mc.conversationsCreated.Load(),
		"conversations_cleared": mc.conversationsCleared.Load(),
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	for category, n := range mc.upstreamErrors {
		stats["upstream_errors_"+category] = n
	}
	return stats
}
