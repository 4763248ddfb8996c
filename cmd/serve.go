package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/compresr/chat-gateway/internal/config"
	"github.com/compresr/chat-gateway/internal/conversation"
	"github.com/compresr/chat-gateway/internal/gateway"
	"github.com/compresr/chat-gateway/internal/moderation"
	"github.com/compresr/chat-gateway/internal/monitoring"
	"github.com/compresr/chat-gateway/internal/store"
	"github.com/compresr/chat-gateway/internal/upstream"
)

// buildGateway wires store, upstream client, moderation, telemetry and
// conversation manager into a gateway.
func buildGateway(ctx context.Context, cfg *config.Config) (*gateway.Gateway, error) {
	prompt, err := cfg.Conversation.ResolvePrompt()
	if err != nil {
		return nil, err
	}

	filter, err := moderation.New(cfg.Moderation)
	if err != nil {
		return nil, err
	}

	client := newUpstreamClient(ctx, cfg.Upstream)

	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{
		Enabled:     cfg.Monitoring.TelemetryEnabled,
		LogPath:     cfg.Monitoring.TelemetryPath,
		DBPath:      cfg.Monitoring.TelemetryDB,
		LogToStdout: cfg.Monitoring.LogToStdout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry: %w", err)
	}

	manager := conversation.NewManager(conversation.Options{
		Store:     store.NewMemoryStore(prompt, cfg.Conversation.HardCap),
		Window:    cfg.Conversation.Window,
		Completer: client,
		Model:     cfg.Upstream.Model,
		Params:    cfg.Upstream.Params,
		Filter:    filter,
		Tokens:    upstream.NewTokenEstimator(cfg.Monitoring.TokenEncoding),
		Greeting:  cfg.Conversation.Greeting,
		Serialize: cfg.Conversation.SerializeExchanges,
	})

	log.Info().
		Int("port", cfg.Server.Port).
		Str("provider", cfg.Upstream.Provider).
		Str("endpoint", cfg.Upstream.Endpoint()).
		Int("window_max", cfg.Conversation.Window.MaxTotal).
		Int("hard_cap", cfg.Conversation.HardCap.Max).
		Bool("moderation", cfg.Moderation.Enabled).
		Bool("telemetry", cfg.Monitoring.TelemetryEnabled).
		Msg("configuration loaded")

	return gateway.New(cfg, manager, tracker), nil
}

// newUpstreamClient builds the provider client. Bedrock credentials are
// resolved once at startup; failing to find them leaves the client without
// credentials so every chat reports a configuration error.
func newUpstreamClient(ctx context.Context, cfg config.UpstreamConfig) *upstream.Client {
	if cfg.Provider != upstream.ProviderBedrock {
		return upstream.NewClient(cfg)
	}

	transport, err := upstream.NewSigningTransport(ctx, cfg.Region, nil)
	if err != nil {
		log.Warn().Err(err).Str("region", cfg.Region).Msg("bedrock credentials unavailable")
		return upstream.NewClient(cfg)
	}
	return upstream.NewClient(cfg, upstream.WithTransport(transport))
}
