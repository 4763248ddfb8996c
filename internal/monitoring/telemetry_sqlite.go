package monitoring

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const chatEventsSchema = `
CREATE TABLE IF NOT EXISTS chat_events (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id          TEXT NOT NULL,
	conversation_id     TEXT NOT NULL,
	ts                  TEXT NOT NULL,
	transport           TEXT NOT NULL,
	provider            TEXT NOT NULL,
	model               TEXT,
	history_messages    INTEGER NOT NULL,
	sent_messages       INTEGER NOT NULL,
	trimmed             INTEGER NOT NULL,
	capped_messages     INTEGER NOT NULL,
	flagged             INTEGER NOT NULL,
	attachment          INTEGER NOT NULL,
	prompt_tokens       INTEGER NOT NULL,
	completion_tokens   INTEGER NOT NULL,
	success             INTEGER NOT NULL,
	error_category      TEXT,
	upstream_latency_ms INTEGER NOT NULL,
	total_latency_ms    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_events_conversation ON chat_events(conversation_id);
`

// eventDB is the sqlite sink for ChatEvent rows.
type eventDB struct {
	db *sql.DB
}

func openEventDB(path string) (*eventDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open sqlite %s: %w", path, err)
	}
	// One writer; the Tracker already serializes inserts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(chatEventsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("telemetry: create schema: %w", err)
	}
	return &eventDB{db: db}, nil
}

func (e *eventDB) insert(ev *ChatEvent) error {
	_, err := e.db.Exec(`INSERT INTO chat_events (
		request_id, conversation_id, ts, transport, provider, model,
		history_messages, sent_messages, trimmed, capped_messages, flagged, attachment,
		prompt_tokens, completion_tokens, success, error_category,
		upstream_latency_ms, total_latency_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RequestID, ev.ConversationID, ev.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		string(ev.Transport), ev.Provider, ev.Model,
		ev.HistoryMessages, ev.SentMessages, ev.Trimmed, ev.CappedMessages, ev.Flagged, ev.Attachment,
		ev.PromptTokens, ev.CompletionTokens, ev.Success, ev.ErrorCategory,
		ev.UpstreamLatency, ev.TotalLatency,
	)
	return err
}

func (e *eventDB) close() error {
	return e.db.Close()
}
