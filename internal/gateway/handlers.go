package gateway

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/compresr/chat-gateway/internal/conversation"
	"github.com/compresr/chat-gateway/internal/monitoring"
)

// handleChat serves POST /api/chat.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		g.writeError(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if len(body) > MaxRequestBodySize {
		g.writeError(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	req, err := parseChatRequest(body)
	if err != nil {
		g.alerts.FlagInvalidRequest(monitoring.RequestIDFromContext(r.Context()), err.Error())
		g.writeError(w, msgBadRequest+": "+err.Error(), http.StatusBadRequest)
		return
	}

	reply, err := g.chat(r.Context(), monitoring.TransportHTTP, req)
	if err != nil {
		g.writeChatError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, ChatResponse{Response: reply.Content, ConversationID: reply.ConversationID})
}

// handleUpload serves POST /api/chat/upload.
// The file is read as UTF-8 text and appended to the message; binary
// formats are rejected rather than parsed.
func (g *Gateway) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := g.config.Server.MaxUploadBytes
	if limit <= 0 {
		limit = DefaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+MaxRequestBodySize)
	if err := r.ParseMultipartForm(limit); err != nil {
		g.writeError(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := conversation.SendRequest{
		Message:        r.FormValue("message"),
		ConversationID: strings.TrimSpace(r.FormValue("conversation_id")),
	}
	if req.ConversationID == "" {
		req.ConversationID = strings.TrimSpace(r.FormValue("conversationId"))
	}

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		g.writeError(w, "invalid file field", http.StatusBadRequest)
		return
	default:
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, limit+1))
		if err != nil {
			g.writeError(w, "failed to read file", http.StatusBadRequest)
			return
		}
		if int64(len(data)) > limit {
			g.writeError(w, "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		if !isText(data) {
			g.writeError(w, "only text files are supported", http.StatusUnsupportedMediaType)
			return
		}
		req.Attachment = &conversation.Attachment{Name: header.Filename, Text: string(data)}
	}

	reply, err := g.chat(r.Context(), monitoring.TransportUpload, req)
	if err != nil {
		g.writeChatError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, ChatResponse{Response: reply.Content, ConversationID: reply.ConversationID})
}

// isText accepts valid UTF-8 that content sniffing reports as text.
func isText(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	if len(data) == 0 {
		return true
	}
	return strings.HasPrefix(http.DetectContentType(data), "text/")
}

// handleNewConversation serves POST /api/conversations.
func (g *Gateway) handleNewConversation(w http.ResponseWriter, r *http.Request) {
	id, greeting := g.manager.NewConversation()
	g.metrics.RecordConversationCreated()
	g.writeJSON(w, http.StatusOK, NewConversationResponse{ConversationID: id, Greeting: greeting})
}

// handleStatus serves GET /api/conversations/{id}.
func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, g.manager.Status(r.PathValue("id")))
}

// handleClear serves DELETE /api/conversations/{id}.
func (g *Gateway) handleClear(w http.ResponseWriter, r *http.Request) {
	existed := g.manager.Clear(r.PathValue("id"))
	if existed {
		g.metrics.RecordConversationCleared()
	}
	g.writeJSON(w, http.StatusOK, ClearResponse{Existed: existed})
}

// handleHealth serves GET /health.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Env: HealthEnv{
			HasAPIKey: g.manager.Ready(),
			AppURL:    g.config.Server.AppURL,
		},
		Conversations: g.manager.Count(),
	})
}

// handleStats serves GET /stats.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, StatsResponse{
		UptimeSeconds: int64(time.Since(g.startedAt).Seconds()),
		Conversations: g.manager.Count(),
		Provider:      g.config.Upstream.Provider,
		Model:         g.config.Upstream.Model,
		Metrics:       g.metrics.Stats(),
	})
}
