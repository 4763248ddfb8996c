package conversation

import (
	"fmt"

	"github.com/compresr/chat-gateway/internal/store"
)

// Window is the per-request trimming policy.
// A history longer than MaxTotal is sent as the system message plus the
// newest KeepRecent messages. KeepRecent < MaxTotal so a trimmed history
// does not immediately trip the trigger again on the next turn.
type Window struct {
	MaxTotal   int `yaml:"max_total"`
	KeepRecent int `yaml:"keep_recent"`
}

// Observed window presets.
var (
	WindowCompact = Window{MaxTotal: 11, KeepRecent: 10}
	WindowDefault = Window{MaxTotal: 15, KeepRecent: 14}
	WindowWide    = Window{MaxTotal: 20, KeepRecent: 19}
)

// Validate checks the window shape.
func (w Window) Validate() error {
	if w.MaxTotal < 2 {
		return fmt.Errorf("window max_total must be at least 2, got %d", w.MaxTotal)
	}
	if w.KeepRecent < 1 {
		return fmt.Errorf("window keep_recent must be positive, got %d", w.KeepRecent)
	}
	if w.KeepRecent >= w.MaxTotal {
		return fmt.Errorf("window keep_recent (%d) must be smaller than max_total (%d)", w.KeepRecent, w.MaxTotal)
	}
	return nil
}

// Select applies the window to history.
func (w Window) Select(history store.History) store.History {
	return SelectForSend(history, w.MaxTotal, w.KeepRecent)
}

// SelectForSend returns the messages to forward upstream.
//
// Histories within maxTotal come back whole. Longer ones come back as
// history[0] followed by the last keepRecent messages in original order.
// The result never shares memory with the input.
func SelectForSend(history store.History, maxTotal, keepRecent int) store.History {
	if len(history) <= maxTotal {
		return history.Clone()
	}
	if keepRecent > len(history)-1 {
		keepRecent = len(history) - 1
	}

	out := make(store.History, 0, keepRecent+1)
	out = append(out, history[0])
	out = append(out, history[len(history)-keepRecent:]...)
	return out
}
