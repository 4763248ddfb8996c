// Package gateway is the HTTP surface of the chat gateway.
//
// DESIGN: The gateway is thin plumbing around conversation.Manager:
//   - handlers.go:  JSON chat, multipart upload, conversation lifecycle, health, stats
//   - websocket.go: one chat request per frame, one whole reply per frame
//   - middleware.go: panic recovery, request logging, CORS and security headers
//   - errors.go:    failure classification into stable client messages
//
// Every chat goes through Gateway.chat so metrics, alerts and telemetry are
// recorded the same way regardless of transport.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/chat-gateway/internal/config"
	"github.com/compresr/chat-gateway/internal/conversation"
	"github.com/compresr/chat-gateway/internal/monitoring"
	"github.com/compresr/chat-gateway/internal/upstream"
)

// Gateway serves the chat API.
type Gateway struct {
	config        *config.Config
	manager       *conversation.Manager
	server        *http.Server
	handler       http.Handler
	requestLogger *monitoring.RequestLogger
	alerts        *monitoring.AlertManager
	metrics       *monitoring.MetricsCollector
	tracker       *monitoring.Tracker
	startedAt     time.Time
}

// New creates a gateway. tracker may be nil when telemetry is disabled.
func New(cfg *config.Config, manager *conversation.Manager, tracker *monitoring.Tracker) *Gateway {
	logger := monitoring.New(monitoring.LoggerConfig{
		Level:  cfg.Monitoring.LogLevel,
		Format: cfg.Monitoring.LogFormat,
		Output: cfg.Monitoring.LogOutput,
	})

	if tracker == nil {
		tracker, _ = monitoring.NewTracker(monitoring.TelemetryConfig{Enabled: false})
	}

	g := &Gateway{
		config:        cfg,
		manager:       manager,
		requestLogger: monitoring.NewRequestLogger(logger.Component("requests")),
		alerts: monitoring.NewAlertManager(logger.Component("alerts"), monitoring.AlertConfig{
			HighLatencyThreshold: cfg.Monitoring.HighLatencyThreshold,
		}),
		metrics:   monitoring.NewMetricsCollector(),
		tracker:   tracker,
		startedAt: time.Now(),
	}

	g.handler = g.panicRecovery(g.loggingMiddleware(g.security(g.routes())))
	g.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      g.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return g
}

func (g *Gateway) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", g.handleChat)
	mux.HandleFunc("POST /api/chat/upload", g.handleUpload)
	mux.HandleFunc("GET /api/chat/ws", g.handleWebSocket)
	mux.HandleFunc("POST /api/conversations", g.handleNewConversation)
	mux.HandleFunc("GET /api/conversations/{id}", g.handleStatus)
	mux.HandleFunc("DELETE /api/conversations/{id}", g.handleClear)
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /stats", g.handleStats)
	return mux
}

// Handler returns the full middleware-wrapped handler.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Start serves until Shutdown is called.
func (g *Gateway) Start() error {
	log.Info().
		Int("port", g.config.Server.Port).
		Str("provider", g.config.Upstream.Provider).
		Str("model", g.config.Upstream.Model).
		Msg("chat gateway listening")

	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (g *Gateway) Shutdown(ctx context.Context) error {
	err := g.server.Shutdown(ctx)
	if cerr := g.manager.Close(); cerr != nil {
		log.Warn().Err(cerr).Msg("conversation store close failed")
	}
	if cerr := g.tracker.Close(); cerr != nil {
		log.Warn().Err(cerr).Msg("telemetry close failed")
	}
	return err
}

// Metrics exposes the collector for tests and /stats.
func (g *Gateway) Metrics() *monitoring.MetricsCollector {
	return g.metrics
}

// chat runs one exchange and records its outcome.
func (g *Gateway) chat(ctx context.Context, transport monitoring.Transport, req conversation.SendRequest) (*conversation.Reply, error) {
	start := time.Now()
	requestID := monitoring.RequestIDFromContext(ctx)
	if req.ConversationID == "" {
		req.ConversationID = conversation.NewID()
	}

	reply, err := g.manager.Send(ctx, req)
	if err != nil {
		g.metrics.RecordRequest(false)
		g.recordFailure(requestID, transport, req, err, time.Since(start))
		return nil, err
	}

	g.metrics.RecordRequest(true)
	g.metrics.RecordChat(monitoring.ChatOutcome{
		Trimmed:          reply.Trimmed,
		CappedMessages:   reply.CappedMessages,
		Flagged:          reply.Flagged,
		PromptTokens:     reply.PromptTokens,
		CompletionTokens: reply.CompletionTokens,
		Latency:          reply.UpstreamLatency,
	})

	g.requestLogger.LogOutgoing(&monitoring.OutgoingRequestInfo{
		RequestID:      requestID,
		ConversationID: reply.ConversationID,
		Provider:       g.config.Upstream.Provider,
		Model:          g.config.Upstream.Model,
		SentMessages:   reply.SentMessages,
		PromptTokens:   reply.PromptTokens,
		Trimmed:        reply.Trimmed,
	})
	g.alerts.FlagHighLatency(requestID, reply.UpstreamLatency, g.config.Upstream.Provider, g.config.Upstream.Model)
	if reply.Flagged {
		g.alerts.FlagModeration(requestID, reply.ConversationID)
	}

	model := reply.Model
	if model == "" {
		model = g.config.Upstream.Model
	}
	g.tracker.RecordChat(&monitoring.ChatEvent{
		RequestID:        requestID,
		ConversationID:   reply.ConversationID,
		Timestamp:        start,
		Transport:        transport,
		Provider:         g.config.Upstream.Provider,
		Model:            model,
		HistoryMessages:  reply.HistoryMessages,
		SentMessages:     reply.SentMessages,
		Trimmed:          reply.Trimmed,
		CappedMessages:   reply.CappedMessages,
		Flagged:          reply.Flagged,
		Attachment:       req.Attachment != nil,
		PromptTokens:     reply.PromptTokens,
		CompletionTokens: reply.CompletionTokens,
		Success:          true,
		UpstreamLatency:  reply.UpstreamLatency.Milliseconds(),
		TotalLatency:     time.Since(start).Milliseconds(),
	})
	return reply, nil
}

func (g *Gateway) recordFailure(requestID string, transport monitoring.Transport, req conversation.SendRequest, err error, elapsed time.Duration) {
	switch {
	case errors.Is(err, conversation.ErrValidation):
		g.alerts.FlagInvalidRequest(requestID, err.Error())
		return
	case errors.Is(err, conversation.ErrConfiguration):
		log.Error().Str("request_id", requestID).Msg("chat rejected: upstream credential is not configured")
		return
	}

	category := upstream.Category(err)
	status := 0
	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		status = upErr.StatusCode
	}
	g.metrics.RecordUpstreamError(category)
	g.alerts.FlagUpstreamError(requestID, req.ConversationID, category, status, err)

	g.tracker.RecordChat(&monitoring.ChatEvent{
		RequestID:      requestID,
		ConversationID: req.ConversationID,
		Timestamp:      time.Now().Add(-elapsed),
		Transport:      transport,
		Provider:       g.config.Upstream.Provider,
		Model:          g.config.Upstream.Model,
		Attachment:     req.Attachment != nil,
		Success:        false,
		ErrorCategory:  category,
		TotalLatency:   elapsed.Milliseconds(),
	})
}
