// Package monitoring - telemetry.go records chat events.
//
// DESIGN: Tracker writes one ChatEvent per exchange:
//   - JSONL file (one JSON object per line), appended immediately
//   - optional sqlite table (telemetry_sqlite.go) for ad hoc queries
//   - optional one-line summary on the global logger
//
// Sink failures are logged and never fail the chat.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Tracker handles telemetry event recording to file, sqlite and stdout.
type Tracker struct {
	config     TelemetryConfig
	logPath    string
	db         *eventDB
	eventCount int
	mu         sync.Mutex
}

// NewTracker creates a new telemetry tracker.
func NewTracker(cfg TelemetryConfig) (*Tracker, error) {
	t := &Tracker{
		config: cfg,
	}

	if !cfg.Enabled {
		return t, nil
	}

	if cfg.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0750); err != nil {
			return nil, err
		}
		t.logPath = cfg.LogPath
		// Create empty file if it doesn't exist
		if _, err := os.Stat(cfg.LogPath); os.IsNotExist(err) {
			if f, err := os.Create(cfg.LogPath); err == nil {
				f.Close()
			}
		}
	}

	if cfg.DBPath != "" {
		db, err := openEventDB(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		t.db = db
	}

	return t, nil
}

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

// RecordChat records a chat event.
func (t *Tracker) RecordChat(event *ChatEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.LogToStdout {
		log.Info().
			Str("conversation_id", event.ConversationID).
			Str("transport", string(event.Transport)).
			Int("sent_messages", event.SentMessages).
			Bool("success", event.Success).
			Msg("telemetry")
	}

	recorded := false
	if t.logPath != "" {
		if err := appendJSONL(t.logPath, event); err != nil {
			log.Error().Err(err).Str("path", t.logPath).Msg("telemetry: failed to write chat event")
		} else {
			recorded = true
		}
	}

	if t.db != nil {
		if err := t.db.insert(event); err != nil {
			log.Error().Err(err).Msg("telemetry: failed to insert chat event")
		} else {
			recorded = true
		}
	}

	if recorded {
		t.eventCount++
	}
}

// Events returns how many events were written to at least one sink.
func (t *Tracker) Events() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eventCount
}

// Close flushes the summary and closes the sqlite sink.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.eventCount > 0 {
		log.Info().
			Str("path", t.logPath).
			Int("events", t.eventCount).
			Msg("telemetry: session complete")
	}

	if t.db != nil {
		err := t.db.close()
		t.db = nil
		return err
	}
	return nil
}
