// Package upstream talks to the LLM provider.
//
// DESIGN: Three pieces with no shared state between calls:
//   - compose.go: history + params -> chat completion request (pure)
//   - client.go:  one POST to <base_url>/chat/completions, response shape check
//   - errors.go:  classification into rate limited / unauthorized / malformed / unknown
//
// Providers: "openrouter" (default), "openai" (any compatible endpoint) and
// "bedrock" (SigV4 signed, see bedrock_transport.go).
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"
)

// Provider names.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderBedrock    = "bedrock"
)

// Defaults mirror the OpenRouter deployment the gateway was built for.
const (
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"
	DefaultModel         = "openai/gpt-3.5-turbo"
	DefaultTitle         = "ThreatIntel AI"

	// maxResponseSize prevents OOM on unexpectedly large API responses (10MB).
	maxResponseSize = 10 * 1024 * 1024

	// maxErrorBodyLen limits error detail kept for diagnostics.
	maxErrorBodyLen = 500
)

// Config contains upstream provider settings.
type Config struct {
	Provider  string         `yaml:"provider"`   // openrouter, openai, bedrock
	BaseURL   string         `yaml:"base_url"`   // API root, /chat/completions is appended
	APIKey    string         `yaml:"api_key"`    // Bearer token (unused for bedrock)
	Model     string         `yaml:"model"`      // Model identifier sent upstream
	Referer   string         `yaml:"referer"`    // HTTP-Referer header (OpenRouter attribution)
	Title     string         `yaml:"title"`      // X-Title header (OpenRouter attribution)
	Timeout   time.Duration  `yaml:"timeout"`    // 0 = bounded only by the caller's context
	Region    string         `yaml:"region"`     // AWS region for bedrock
	Params    Params         `yaml:"params"`     // Sampling parameters
	ExtraBody map[string]any `yaml:"extra_body"` // Extra payload fields (sjson paths)
}

// Validate checks provider settings. A missing API key is not an error here:
// the gateway still starts and each chat fails with a configuration error.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenRouter, ProviderOpenAI, ProviderBedrock:
	case "":
		return fmt.Errorf("upstream.provider is required")
	default:
		return fmt.Errorf("unsupported upstream.provider %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("upstream.model is required")
	}
	if c.Provider == ProviderOpenAI && c.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required for provider openai")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("upstream.timeout must not be negative")
	}
	return nil
}

// Endpoint returns the chat completions URL for the configured provider.
func (c *Config) Endpoint() string {
	base := c.BaseURL
	if base == "" {
		switch c.Provider {
		case ProviderBedrock:
			base = BedrockEndpoint(c.Region)
		default:
			base = DefaultOpenRouterURL
		}
	}
	return strings.TrimRight(base, "/") + "/chat/completions"
}

// Completion is a successful upstream reply.
type Completion struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// Completer performs one upstream chat call. It is the seam tests mock.
type Completer interface {
	Complete(ctx context.Context, req openai.ChatCompletionRequest) (*Completion, error)

	// HasCredentials reports whether the provider credential is configured.
	HasCredentials() bool
}

// Client is the HTTP implementation of Completer.
type Client struct {
	cfg        Config
	endpoint   string
	httpClient *http.Client
	signed     bool
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client (tests, connection pooling).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTransport wraps requests with a signing transport (bedrock).
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Transport: rt}
		c.signed = true
	}
}

// NewClient creates a client for cfg.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg,
		endpoint:   cfg.Endpoint(),
		httpClient: &http.Client{}, // timeout via context, not client
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasCredentials reports whether a call could authenticate.
func (c *Client) HasCredentials() bool {
	if c.cfg.Provider == ProviderBedrock {
		return c.signed
	}
	return c.cfg.APIKey != ""
}

// Complete sends req and returns the assistant reply.
func (c *Client) Complete(ctx context.Context, req openai.ChatCompletionRequest) (*Completion, error) {
	body, err := Payload(req, c.cfg.Params, c.cfg.ExtraBody)
	if err != nil {
		return nil, &Error{Kind: ErrUnknown, Err: err}
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: ErrUnknown, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	c.setHeaders(httpReq)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: ErrUnknown, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &Error{Kind: ErrUnknown, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	completion, err := parseResponse(resp.StatusCode, respBody)
	if err != nil {
		return nil, err
	}
	completion.Latency = time.Since(start)
	return completion, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Provider != ProviderBedrock && c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}
}

// parseResponse shape-checks a provider response.
//
// Some providers (OpenRouter among them) report failures inside a 200 body as
// {"error":{"code":429,"message":"..."}}; the embedded code is classified the
// same way as an HTTP status.
func parseResponse(status int, body []byte) (*Completion, error) {
	detail := errorDetail(body)

	if kind := classifyStatus(status); kind != nil {
		return nil, &Error{Kind: kind, StatusCode: status, Detail: detail}
	}

	if embedded := gjson.GetBytes(body, "error"); embedded.Exists() {
		code := int(gjson.GetBytes(body, "error.code").Int())
		kind := classifyStatus(code)
		if kind == nil {
			kind = ErrUnknown
		}
		return nil, &Error{Kind: kind, StatusCode: code, Detail: detail}
	}

	if !gjson.ValidBytes(body) {
		return nil, &Error{Kind: ErrMalformedResponse, StatusCode: status, Detail: truncate(string(body))}
	}

	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() || content.Type != gjson.String {
		return nil, &Error{Kind: ErrMalformedResponse, StatusCode: status, Detail: truncate(string(body))}
	}

	return &Completion{
		Content:          content.String(),
		Model:            gjson.GetBytes(body, "model").String(),
		PromptTokens:     int(gjson.GetBytes(body, "usage.prompt_tokens").Int()),
		CompletionTokens: int(gjson.GetBytes(body, "usage.completion_tokens").Int()),
	}, nil
}

// errorDetail pulls a readable message out of a provider error body.
func errorDetail(body []byte) string {
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
		return truncate(msg.String())
	}
	if msg := gjson.GetBytes(body, "error"); msg.Type == gjson.String {
		return truncate(msg.String())
	}
	return truncate(string(body))
}

func truncate(s string) string {
	if len(s) > maxErrorBodyLen {
		return s[:maxErrorBodyLen] + "... (truncated)"
	}
	return s
}

// Ensure Client implements Completer
var _ Completer = (*Client)(nil)
