// Package conversation owns the lifecycle of chat conversations.
//
// DESIGN: Manager sits between the HTTP layer and the store:
//   - NewConversation / Clear / Status: lifecycle and introspection
//   - Send: validate -> ensure -> screen -> append user -> window -> compose
//     -> upstream call -> append assistant -> hard cap
//
// Per id the state machine is absent -> active -> absent, re-enterable.
// When SerializeExchanges is on, a per-id lock is held for the whole Send,
// so turns of one conversation never interleave. Without it, individual
// store operations are still atomic but two concurrent sends on the same id
// may interleave their user/assistant messages.
package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/chat-gateway/internal/moderation"
	"github.com/compresr/chat-gateway/internal/store"
	"github.com/compresr/chat-gateway/internal/upstream"
)

// Request errors raised before any state is touched.
var (
	ErrValidation    = errors.New("message content is required")
	ErrConfiguration = errors.New("upstream credential is not configured")
)

// Attachment is text extracted from an uploaded file by the caller.
type Attachment struct {
	Name string
	Text string
}

// SendRequest is one user turn.
type SendRequest struct {
	ConversationID string // empty starts a new conversation
	Message        string
	Attachment     *Attachment
}

// Reply is the outcome of a successful Send.
type Reply struct {
	ConversationID   string
	Content          string
	Model            string
	HistoryMessages  int  // Stored messages when the request was composed
	SentMessages     int  // Messages forwarded upstream
	Trimmed          bool // Window dropped older turns from the request
	CappedMessages   int  // Messages dropped from the store by the hard cap
	Flagged          bool // User content was replaced by the moderation directive
	PromptTokens     int  // Estimated prompt size
	CompletionTokens int  // As reported by the provider, 0 if absent
	UpstreamLatency  time.Duration
}

// Status describes one conversation.
// LastActivity is the time of the status call when the conversation exists;
// per-message timestamps are not tracked.
type Status struct {
	Exists       bool       `json:"exists"`
	MessageCount int        `json:"message_count"`
	LastActivity *time.Time `json:"last_activity"`
}

// Manager coordinates the store, the send window and the upstream call.
type Manager struct {
	store     store.Store
	window    Window
	completer upstream.Completer
	model     string
	params    upstream.Params
	filter    moderation.Filter
	tokens    *upstream.TokenEstimator
	greeting  string
	serialize bool
	locks     *keyedMutex
	now       func() time.Time
}

// Options configures a Manager.
type Options struct {
	Store     store.Store
	Window    Window
	Completer upstream.Completer
	Model     string
	Params    upstream.Params
	Filter    moderation.Filter       // nil = passthrough
	Tokens    *upstream.TokenEstimator // nil = byte heuristic
	Greeting  string
	Serialize bool
}

// NewManager creates a manager.
func NewManager(opts Options) *Manager {
	m := &Manager{
		store:     opts.Store,
		window:    opts.Window,
		completer: opts.Completer,
		model:     opts.Model,
		params:    opts.Params,
		filter:    opts.Filter,
		tokens:    opts.Tokens,
		greeting:  opts.Greeting,
		serialize: opts.Serialize,
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
	if m.filter == nil {
		m.filter = moderation.Passthrough{}
	}
	if m.tokens == nil {
		m.tokens = upstream.NewTokenEstimator(upstream.EncodingNone)
	}
	if m.greeting == "" {
		m.greeting = DefaultGreeting
	}
	return m
}

// NewConversation opens a fresh conversation and returns its id and the greeting.
func (m *Manager) NewConversation() (string, string) {
	id := NewID()
	m.store.Ensure(id)
	log.Debug().Str("conversation_id", id).Msg("conversation created")
	return id, m.greeting
}

// Clear deletes a conversation. Reports whether it existed.
func (m *Manager) Clear(id string) bool {
	existed := m.store.Delete(id)
	log.Debug().Str("conversation_id", id).Bool("existed", existed).Msg("conversation cleared")
	return existed
}

// Status reports presence and size of a conversation.
func (m *Manager) Status(id string) Status {
	h, ok := m.store.Get(id)
	if !ok {
		return Status{}
	}
	now := m.now()
	return Status{
		Exists:       true,
		MessageCount: h.Turns(),
		LastActivity: &now,
	}
}

// History returns a copy of the stored history.
func (m *Manager) History(id string) (store.History, bool) {
	return m.store.Get(id)
}

// Count returns the number of live conversations.
func (m *Manager) Count() int {
	return m.store.Count()
}

// Close releases the underlying store. Every conversation is dropped.
func (m *Manager) Close() error {
	return m.store.Close()
}

// Ready reports whether chats can be served at all.
func (m *Manager) Ready() bool {
	return m.completer != nil && m.completer.HasCredentials()
}

// Send runs one user turn through the model and records both sides.
//
// On an upstream failure the user message stays in the history, subject to
// the hard cap, and the error is returned unchanged; nothing is retried.
func (m *Manager) Send(ctx context.Context, req SendRequest) (*Reply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrValidation
	}
	if !m.Ready() {
		return nil, ErrConfiguration
	}

	id := req.ConversationID
	if id == "" {
		id = NewID()
	}

	if m.serialize {
		unlock := m.locks.Lock(id)
		defer unlock()
	}

	m.store.Ensure(id)

	content, flagged := m.filter.Screen(userContent(req))
	if flagged {
		log.Info().Str("conversation_id", id).Msg("user message replaced by moderation directive")
	}
	m.store.Append(id, store.RoleUser, content)

	history := m.store.Ensure(id)
	sent := m.window.Select(history)
	chatReq := upstream.BuildRequest(sent, m.model, m.params)
	promptTokens := m.tokens.CountHistory(sent)

	log.Debug().
		Str("conversation_id", id).
		Int("history", len(history)).
		Int("sent", len(sent)).
		Int("prompt_tokens_est", promptTokens).
		Msg("sending to upstream")

	completion, err := m.completer.Complete(ctx, chatReq)
	if err != nil {
		// Failed turns still count against the hard cap.
		if dropped := m.store.EnforceCap(id); dropped > 0 {
			log.Debug().Str("conversation_id", id).Int("dropped", dropped).Msg("hard cap applied")
		}
		return nil, err
	}

	m.store.Append(id, store.RoleAssistant, completion.Content)
	capped := m.store.EnforceCap(id)
	if capped > 0 {
		log.Debug().Str("conversation_id", id).Int("dropped", capped).Msg("hard cap applied")
	}

	return &Reply{
		ConversationID:   id,
		Content:          completion.Content,
		Model:            completion.Model,
		HistoryMessages:  len(history),
		SentMessages:     len(sent),
		Trimmed:          len(sent) < len(history),
		CappedMessages:   capped,
		Flagged:          flagged,
		PromptTokens:     promptTokens,
		CompletionTokens: completion.CompletionTokens,
		UpstreamLatency:  completion.Latency,
	}, nil
}

// userContent joins the message with pre-extracted attachment text.
func userContent(req SendRequest) string {
	if req.Attachment == nil || strings.TrimSpace(req.Attachment.Text) == "" {
		return req.Message
	}
	name := req.Attachment.Name
	if name == "" {
		name = "attachment"
	}
	return req.Message + "\n\n[Attached file: " + name + "]\n" + req.Attachment.Text
}
