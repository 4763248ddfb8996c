// Package config loads and validates the gateway configuration.
//
// DESIGN: All configuration comes from one YAML file. Values may reference
// the environment with ${VAR} or ${VAR:-default}; a handful of well known
// variables (OPENROUTER_API_KEY, APP_URL, PORT) override the file afterwards
// so a deployment can inject secrets without editing YAML.
//
// FILES:
//   - config.go:       Root Config struct, Load(), Validate()
//   - conversation.go: Re-exports of conversation, upstream and moderation settings
//   - monitoring.go:   Logging, telemetry and alert settings
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment names recognised by server.environment.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the root configuration for the chat gateway.
type Config struct {
	Server       ServerConfig       `yaml:"server"`       // HTTP server settings
	Upstream     UpstreamConfig     `yaml:"upstream"`     // LLM provider
	Conversation ConversationConfig `yaml:"conversation"` // Prompts, window, hard cap
	Moderation   ModerationConfig   `yaml:"moderation"`   // Content screening
	Monitoring   MonitoringConfig   `yaml:"monitoring"`   // Logging and telemetry
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port           int           `yaml:"port"`             // Port to listen on
	ReadTimeout    time.Duration `yaml:"read_timeout"`     // Max time to read request
	WriteTimeout   time.Duration `yaml:"write_timeout"`    // Max time to write response
	Environment    string        `yaml:"environment"`      // development or production
	AllowedOrigins []string      `yaml:"allowed_origins"`  // CORS allow-list
	AppURL         string        `yaml:"app_url"`          // Public URL of the frontend
	MaxUploadBytes int64         `yaml:"max_upload_bytes"` // Attachment size limit
}

// IsProduction reports whether error details must be hidden from clients.
func (s ServerConfig) IsProduction() bool {
	return s.Environment == EnvProduction
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvWithDefaults expands environment variables with support for default values.
// Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Load reads configuration from a YAML file.
// Returns an error if the file doesn't exist or is invalid.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
// Supports ${VAR:-default} env var expansion, env overrides, and validation.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides lets the deployment environment win over the file.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		c.Upstream.APIKey = key
	}

	if appURL := os.Getenv("APP_URL"); appURL != "" {
		c.Server.AppURL = appURL
	}
	// APP_URL doubles as the OpenRouter attribution referer.
	if c.Upstream.Referer == "" {
		c.Upstream.Referer = c.Server.AppURL
	}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if path := os.Getenv("CHAT_TELEMETRY_LOG"); path != "" {
		c.Monitoring.TelemetryPath = path
		c.Monitoring.TelemetryEnabled = true
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout == 0 {
		return fmt.Errorf("server.read_timeout is required")
	}
	if c.Server.WriteTimeout == 0 {
		return fmt.Errorf("server.write_timeout is required")
	}
	switch c.Server.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("invalid server.environment %q (must be %s or %s)",
			c.Server.Environment, EnvDevelopment, EnvProduction)
	}
	if c.Server.MaxUploadBytes < 0 {
		return fmt.Errorf("server.max_upload_bytes must not be negative")
	}

	if err := c.Upstream.Validate(); err != nil {
		return err
	}
	if err := c.Conversation.Validate(); err != nil {
		return err
	}
	if err := c.Moderation.Validate(); err != nil {
		return fmt.Errorf("moderation: %w", err)
	}
	if err := c.Monitoring.Validate(); err != nil {
		return err
	}

	return nil
}
