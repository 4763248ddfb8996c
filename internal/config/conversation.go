// Conversation, upstream and moderation configuration re-exports.
//
// DESIGN: These settings are defined next to the code that uses them.
// This file re-exports those types for use by the main Config struct.
package config

import (
	"github.com/compresr/chat-gateway/internal/conversation"
	"github.com/compresr/chat-gateway/internal/moderation"
	"github.com/compresr/chat-gateway/internal/store"
	"github.com/compresr/chat-gateway/internal/upstream"
)

// =============================================================================
// RE-EXPORTS
// =============================================================================

// UpstreamConfig is an alias for upstream.Config.
type UpstreamConfig = upstream.Config

// ConversationConfig is an alias for conversation.Config.
type ConversationConfig = conversation.Config

// WindowConfig is an alias for conversation.Window.
type WindowConfig = conversation.Window

// HardCapConfig is an alias for store.Cap.
type HardCapConfig = store.Cap

// ModerationConfig is an alias for moderation.Config.
type ModerationConfig = moderation.Config
