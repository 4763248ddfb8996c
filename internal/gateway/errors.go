package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/compresr/chat-gateway/internal/conversation"
	"github.com/compresr/chat-gateway/internal/upstream"
)

// Stable user-facing messages per failure kind.
const (
	msgValidation    = "Message is required"
	msgBadRequest    = "Invalid request"
	msgConfiguration = "The AI service is not configured"
	msgRateLimited   = "The AI service is busy, please try again shortly"
	msgUnauthorized  = "The AI service rejected the gateway credentials"
	msgMalformed     = "Received an invalid response from the AI service"
	msgUnknown       = "Failed to get response from AI"
	msgInternal      = "internal error"
)

// chatFailure is the client-visible shape of a failed chat.
type chatFailure struct {
	status   int
	message  string
	category string
	details  string
}

// classifyChatError maps a Send error to status, message and category.
// Details are only filled when showDetails is set.
func classifyChatError(err error, showDetails bool) chatFailure {
	var f chatFailure
	switch {
	case errors.Is(err, conversation.ErrValidation):
		f = chatFailure{status: http.StatusBadRequest, message: msgValidation, category: "validation"}
	case errors.Is(err, conversation.ErrConfiguration):
		f = chatFailure{status: http.StatusInternalServerError, message: msgConfiguration, category: "configuration"}
	case errors.Is(err, upstream.ErrRateLimited):
		f = chatFailure{status: http.StatusTooManyRequests, message: msgRateLimited, category: "rate_limited"}
	case errors.Is(err, upstream.ErrUnauthorized):
		f = chatFailure{status: http.StatusBadGateway, message: msgUnauthorized, category: "unauthorized"}
	case errors.Is(err, upstream.ErrMalformedResponse):
		f = chatFailure{status: http.StatusBadGateway, message: msgMalformed, category: "malformed"}
	default:
		f = chatFailure{status: http.StatusInternalServerError, message: msgUnknown, category: "unknown"}
	}

	if showDetails {
		var upErr *upstream.Error
		if errors.As(err, &upErr) && upErr.Detail != "" {
			f.details = upErr.Detail
		} else {
			f.details = err.Error()
		}
	}
	return f
}

// writeJSON writes v with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("failed to write response")
	}
}

// writeError writes a JSON error response.
func (g *Gateway) writeError(w http.ResponseWriter, msg string, status int) {
	g.writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeChatError writes the classified form of a Send error.
func (g *Gateway) writeChatError(w http.ResponseWriter, err error) {
	f := classifyChatError(err, g.showDetails())
	g.writeJSON(w, f.status, ErrorResponse{Error: f.message, Category: f.category, Details: f.details})
}

// showDetails reports whether raw error detail may reach clients.
func (g *Gateway) showDetails() bool {
	return !g.config.Server.IsProduction()
}
