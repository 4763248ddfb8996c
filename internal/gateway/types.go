// Package gateway types - wire types and limits for the chat gateway.
//
// DESIGN: Types used by the gateway for:
//   - Inbound chat bodies (parsed with gjson, see parseChatRequest)
//   - JSON responses of every endpoint
//   - WebSocket frames
//
// Types are defined here to keep handlers short and give clients a clear contract.
package gateway

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/compresr/chat-gateway/internal/conversation"
)

// =============================================================================
// LIMITS AND HEADERS
// =============================================================================

const (
	// HeaderRequestID carries the request id in and out.
	HeaderRequestID = "X-Request-ID"

	// MaxRequestBodySize bounds JSON chat bodies (1MB).
	MaxRequestBodySize = 1 << 20

	// DefaultMaxUploadBytes bounds multipart uploads when not configured (2MB).
	DefaultMaxUploadBytes = 2 << 20
)

// =============================================================================
// REQUESTS
// =============================================================================

// parseChatRequest reads {message, conversation_id|conversationId, attachment?}.
// A missing or blank message is left for the manager to reject so that
// validation stays in one place.
func parseChatRequest(body []byte) (conversation.SendRequest, error) {
	var req conversation.SendRequest
	if !gjson.ValidBytes(body) {
		return req, fmt.Errorf("request body is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return req, fmt.Errorf("request body must be a JSON object")
	}

	msg := root.Get("message")
	if msg.Exists() && msg.Type != gjson.String && msg.Type != gjson.Null {
		return req, fmt.Errorf("message must be a string")
	}
	req.Message = msg.String()

	id := root.Get("conversation_id")
	if !id.Exists() || id.Type == gjson.Null {
		id = root.Get("conversationId")
	}
	if id.Exists() && id.Type != gjson.String && id.Type != gjson.Null {
		return req, fmt.Errorf("conversation_id must be a string")
	}
	req.ConversationID = strings.TrimSpace(id.String())

	if att := root.Get("attachment"); att.IsObject() {
		req.Attachment = &conversation.Attachment{
			Name: att.Get("name").String(),
			Text: att.Get("text").String(),
		}
	}
	return req, nil
}

// =============================================================================
// RESPONSES
// =============================================================================

// ChatResponse is returned by /api/chat and /api/chat/upload.
type ChatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
}

// NewConversationResponse is returned by POST /api/conversations.
type NewConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	Greeting       string `json:"greeting"`
}

// ClearResponse is returned by DELETE /api/conversations/{id}.
type ClearResponse struct {
	Existed bool `json:"existed"`
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status        string    `json:"status"`
	Env           HealthEnv `json:"env"`
	Conversations int       `json:"conversations"`
}

// HealthEnv summarises deployment settings without leaking secrets.
type HealthEnv struct {
	HasAPIKey bool   `json:"has_api_key"`
	AppURL    string `json:"app_url"`
}

// StatsResponse is returned by /stats.
type StatsResponse struct {
	UptimeSeconds int64            `json:"uptime_seconds"`
	Conversations int              `json:"conversations"`
	Provider      string           `json:"provider"`
	Model         string           `json:"model"`
	Metrics       map[string]int64 `json:"metrics"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
	Details  string `json:"details,omitempty"`
}

// =============================================================================
// WEBSOCKET FRAMES
// =============================================================================

// Frame types sent on /api/chat/ws.
const (
	FrameReply = "reply"
	FrameError = "error"
)

// WSFrame is one server-to-client frame: a whole reply or an error.
type WSFrame struct {
	Type           string `json:"type"`
	Response       string `json:"response,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Error          string `json:"error,omitempty"`
	Category       string `json:"category,omitempty"`
	Details        string `json:"details,omitempty"`
}
