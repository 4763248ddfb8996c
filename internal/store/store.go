// Package store holds conversation histories in process memory.
//
// DESIGN: One map from conversation id to History, guarded by a single RWMutex:
//   - Ensure / Append / Delete mutate under the write lock
//   - Get / Len / Count read under the read lock
//   - Every History handed out is a copy, so callers can never alias stored state
//
// Two bounds apply independently: the per-request send window lives in the
// conversation package, the hard cap lives here and bounds resident size.
//
// Nothing is persisted. A restart drops every conversation.
package store

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Store defines conversation history storage.
type Store interface {
	// Ensure creates the entry seeded with the system prompt if absent.
	Ensure(id string) History

	// Append adds a user or assistant message to the end of the history,
	// creating it if needed. Other roles are dropped.
	Append(id string, role Role, content string)

	// Get returns a copy of the history without creating it.
	Get(id string) (History, bool)

	// Delete removes the entry and reports whether it existed.
	Delete(id string) bool

	// EnforceCap applies the hard cap to one history. Returns messages dropped.
	EnforceCap(id string) int

	// Len returns the stored length of one history (0 when absent).
	Len(id string) int

	// Count returns the number of live conversations.
	Count() int

	// Close releases the store.
	Close() error
}

// Cap bounds how many messages a single stored history may hold.
// When a history grows past Max it is cut to the system message plus the
// newest Keep messages. Max == 0 disables the cap.
type Cap struct {
	Max  int `yaml:"max"`
	Keep int `yaml:"keep"`
}

// Validate checks that the cut is strictly smaller than the trigger.
func (c Cap) Validate() error {
	if c.Max == 0 {
		return nil
	}
	if c.Max < 0 || c.Keep <= 0 {
		return fmt.Errorf("hard cap must be positive (max=%d keep=%d)", c.Max, c.Keep)
	}
	if c.Keep >= c.Max {
		return fmt.Errorf("hard cap keep (%d) must be smaller than max (%d)", c.Keep, c.Max)
	}
	return nil
}

// MemoryStore is the in-memory implementation of Store.
type MemoryStore struct {
	data         map[string]History
	systemPrompt string
	cap          Cap
	mu           sync.RWMutex
	closed       bool
}

// NewMemoryStore creates a store whose histories are seeded with systemPrompt.
func NewMemoryStore(systemPrompt string, hardCap Cap) *MemoryStore {
	return &MemoryStore{
		data:         make(map[string]History),
		systemPrompt: systemPrompt,
		cap:          hardCap,
	}
}

// Ensure returns the history for id, creating it if absent.
func (s *MemoryStore) Ensure(id string) History {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ensureLocked(id).Clone()
}

// ensureLocked must be called with the write lock held.
func (s *MemoryStore) ensureLocked(id string) History {
	h, ok := s.data[id]
	if ok {
		return h
	}
	h = History{{Role: RoleSystem, Content: s.systemPrompt}}
	if !s.closed {
		s.data[id] = h
	}
	return h
}

// Append adds a message at the end of the history for id.
// A missing history is created first, so append always implies ensure.
// The system message is only ever written by ensure; system and unknown
// roles are dropped so each history keeps exactly one.
func (s *MemoryStore) Append(id string, role Role, content string) {
	if role == RoleSystem || !role.Valid() {
		log.Warn().Str("conversation_id", id).Str("role", string(role)).Msg("store: append with disallowed role dropped")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	h := s.ensureLocked(id)
	s.data[id] = append(h, Message{Role: role, Content: content})
}

// Get returns a copy of the history for id.
func (s *MemoryStore) Get(id string) (History, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.data[id]
	if !ok {
		return nil, false
	}
	return h.Clone(), true
}

// Delete removes the history for id.
func (s *MemoryStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[id]; !ok {
		return false
	}
	delete(s.data, id)
	return true
}

// EnforceCap trims the stored history for id when it exceeds the hard cap.
func (s *MemoryStore) EnforceCap(id string) int {
	if s.cap.Max == 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.data[id]
	if !ok || len(h) <= s.cap.Max {
		return 0
	}

	kept := make(History, 0, s.cap.Keep+1)
	kept = append(kept, h[0])
	kept = append(kept, h[len(h)-s.cap.Keep:]...)
	s.data[id] = kept
	return len(h) - len(kept)
}

// Len returns the stored length of the history for id.
func (s *MemoryStore) Len(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[id])
}

// Count returns how many conversations are live.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close drops all conversations. Later writes are ignored.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		s.data = make(map[string]History)
	}
	return nil
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
