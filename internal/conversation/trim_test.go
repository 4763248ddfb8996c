package conversation_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/chat-gateway/internal/conversation"
	"github.com/compresr/chat-gateway/internal/store"
)

// seedHistory builds a history of one system message plus n alternating turns.
func seedHistory(n int) store.History {
	h := store.History{{Role: store.RoleSystem, Content: "sys"}}
	for i := 1; i <= n; i++ {
		role := store.RoleUser
		if i%2 == 0 {
			role = store.RoleAssistant
		}
		h = append(h, store.Message{Role: role, Content: fmt.Sprintf("turn-%d", i)})
	}
	return h
}

func TestSelectForSend_UnderThresholdUnchanged(t *testing.T) {
	for n := 0; n <= 14; n++ {
		h := seedHistory(n)
		out := conversation.SelectForSend(h, 15, 14)
		assert.Equal(t, h, out, "n=%d", n)
	}
}

func TestSelectForSend_ReturnsCopy(t *testing.T) {
	h := seedHistory(3)
	out := conversation.SelectForSend(h, 15, 14)

	out[1].Content = "changed"
	assert.Equal(t, "turn-1", h[1].Content)
}

// TestSelectForSend_DropsOldestTurn seeds 1 system + 15 turns with trigger 15 / keep 14.
func TestSelectForSend_DropsOldestTurn(t *testing.T) {
	h := seedHistory(15)
	require.Len(t, h, 16)

	out := conversation.SelectForSend(h, 15, 14)

	require.Len(t, out, 15)
	assert.Equal(t, h[0], out[0])
	assert.Equal(t, h[2:], out[1:], "only the oldest turn is dropped")
	for _, m := range out {
		assert.NotEqual(t, "turn-1", m.Content)
	}
}

func TestSelectForSend_Shape(t *testing.T) {
	tests := []struct {
		name   string
		window conversation.Window
		turns  int
	}{
		{"default_just_over", conversation.WindowDefault, 15},
		{"default_far_over", conversation.WindowDefault, 60},
		{"wide", conversation.WindowWide, 25},
		{"compact", conversation.WindowCompact, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := seedHistory(tt.turns)
			out := tt.window.Select(h)

			require.Len(t, out, tt.window.KeepRecent+1)
			assert.Equal(t, store.RoleSystem, out[0].Role)
			assert.Equal(t, h[len(h)-tt.window.KeepRecent:], out[1:])
		})
	}
}

func TestSelectForSend_EmptyHistory(t *testing.T) {
	assert.Empty(t, conversation.SelectForSend(nil, 15, 14))
}

func TestWindow_Validate(t *testing.T) {
	assert.NoError(t, conversation.WindowDefault.Validate())
	assert.NoError(t, conversation.WindowWide.Validate())
	assert.NoError(t, conversation.WindowCompact.Validate())

	assert.Error(t, conversation.Window{MaxTotal: 10, KeepRecent: 10}.Validate())
	assert.Error(t, conversation.Window{MaxTotal: 10, KeepRecent: 0}.Validate())
	assert.Error(t, conversation.Window{MaxTotal: 1, KeepRecent: 0}.Validate())
}
