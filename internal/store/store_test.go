package store_test

// Store Tests - conversation history map
//
// Covers seeding, append-implies-ensure, copy-on-read, idempotent delete
// and the hard cap that bounds resident size per conversation.

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/chat-gateway/internal/store"
)

const prompt = "You are a threat intelligence assistant."

func newStore() *store.MemoryStore {
	return store.NewMemoryStore(prompt, store.Cap{Max: 30, Keep: 20})
}

// =============================================================================
// ENSURE / GET
// =============================================================================

func TestStore_EnsureSeedsSystemMessage(t *testing.T) {
	st := newStore()

	h := st.Ensure("conv_a")
	require.Len(t, h, 1)
	assert.Equal(t, store.Message{Role: store.RoleSystem, Content: prompt}, h[0])
}

func TestStore_EnsureIsIdempotent(t *testing.T) {
	st := newStore()

	st.Ensure("conv_a")
	st.Append("conv_a", store.RoleUser, "hi")
	h := st.Ensure("conv_a")

	require.Len(t, h, 2, "ensure must not reseed an existing history")
	assert.Equal(t, 1, countRole(h, store.RoleSystem))
}

func TestStore_GetDoesNotCreate(t *testing.T) {
	st := newStore()

	_, ok := st.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 0, st.Count())
}

// =============================================================================
// APPEND
// =============================================================================

func TestStore_AppendRoundTrip(t *testing.T) {
	st := newStore()
	msg := store.Message{Role: store.RoleUser, Content: "  what is CVE-2024-3094?\n"}

	st.Append("conv_a", msg.Role, msg.Content)

	h, ok := st.Get("conv_a")
	require.True(t, ok)
	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, msg, last, "content must be stored verbatim")
}

func TestStore_AppendImpliesEnsure(t *testing.T) {
	st := newStore()

	st.Append("conv_new", store.RoleUser, "hello")

	h, ok := st.Get("conv_new")
	require.True(t, ok)
	require.Len(t, h, 2)
	assert.Equal(t, store.RoleSystem, h[0].Role)
	assert.Equal(t, store.RoleUser, h[1].Role)
}

func TestStore_ReturnedHistoryIsACopy(t *testing.T) {
	st := newStore()
	st.Append("conv_a", store.RoleUser, "original")

	h, _ := st.Get("conv_a")
	h[1].Content = "mutated"
	_ = append(h, store.Message{Role: store.RoleUser, Content: "extra"})

	fresh, _ := st.Get("conv_a")
	require.Len(t, fresh, 2)
	assert.Equal(t, "original", fresh[1].Content)
}

// =============================================================================
// DELETE
// =============================================================================

func TestStore_DeleteIsIdempotent(t *testing.T) {
	st := newStore()
	st.Ensure("conv_a")

	assert.True(t, st.Delete("conv_a"))
	assert.False(t, st.Delete("conv_a"))
	assert.False(t, st.Delete("never_existed"))
}

func TestStore_ReenterAfterDelete(t *testing.T) {
	st := newStore()
	st.Append("conv_a", store.RoleUser, "first life")
	st.Delete("conv_a")

	h := st.Ensure("conv_a")
	assert.Len(t, h, 1, "a re-created conversation starts from the system message only")
}

// =============================================================================
// HARD CAP
// =============================================================================

func TestStore_EnforceCap(t *testing.T) {
	st := store.NewMemoryStore(prompt, store.Cap{Max: 30, Keep: 20})
	for i := 1; i <= 31; i++ {
		st.Append("conv_a", store.RoleUser, fmt.Sprintf("m%d", i))
	}
	require.Equal(t, 32, st.Len("conv_a"))

	dropped := st.EnforceCap("conv_a")

	h, _ := st.Get("conv_a")
	assert.Equal(t, 11, dropped)
	require.Len(t, h, 21)
	assert.Equal(t, store.RoleSystem, h[0].Role)
	assert.Equal(t, "m12", h[1].Content)
	assert.Equal(t, "m31", h[20].Content)
}

func TestStore_EnforceCapBelowLimit(t *testing.T) {
	st := newStore()
	st.Append("conv_a", store.RoleUser, "one")

	assert.Equal(t, 0, st.EnforceCap("conv_a"))
	assert.Equal(t, 0, st.EnforceCap("missing"))
	assert.Equal(t, 2, st.Len("conv_a"))
}

func TestStore_EnforceCapDisabled(t *testing.T) {
	st := store.NewMemoryStore(prompt, store.Cap{})
	for i := 0; i < 100; i++ {
		st.Append("conv_a", store.RoleUser, "x")
	}
	assert.Equal(t, 0, st.EnforceCap("conv_a"))
	assert.Equal(t, 101, st.Len("conv_a"))
}

func TestCap_Validate(t *testing.T) {
	tests := []struct {
		name      string
		cap       store.Cap
		expectErr bool
	}{
		{"disabled", store.Cap{}, false},
		{"valid", store.Cap{Max: 30, Keep: 20}, false},
		{"keep_equals_max", store.Cap{Max: 30, Keep: 30}, true},
		{"keep_above_max", store.Cap{Max: 10, Keep: 12}, true},
		{"zero_keep", store.Cap{Max: 10}, true},
		{"negative_max", store.Cap{Max: -1, Keep: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cap.Validate()
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// =============================================================================
// CONCURRENCY / LIFECYCLE
// =============================================================================

func TestStore_AppendRejectsSystemAndUnknownRoles(t *testing.T) {
	st := newStore()
	st.Ensure("x")

	st.Append("x", store.RoleSystem, "second system")
	st.Append("x", store.Role("bogus"), "bad role")
	st.Append("x", store.RoleUser, "hello")

	h, _ := st.Get("x")
	require.Len(t, h, 2)
	assert.Equal(t, 1, countRole(h, store.RoleSystem))
	assert.Equal(t, store.Message{Role: store.RoleSystem, Content: prompt}, h[0])
	assert.Equal(t, store.Message{Role: store.RoleUser, Content: "hello"}, h[1])
}

func TestStore_AppendSystemDoesNotCreate(t *testing.T) {
	st := newStore()

	st.Append("y", store.RoleSystem, "injected")

	_, ok := st.Get("y")
	assert.False(t, ok)
	assert.Equal(t, 0, st.Count())
}

func TestStore_ConcurrentAppends(t *testing.T) {
	st := newStore()
	st.Ensure("conv_a")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.Append("conv_a", store.RoleUser, "hi")
		}()
	}
	wg.Wait()

	h, _ := st.Get("conv_a")
	assert.Len(t, h, 51)
	assert.Equal(t, 1, countRole(h, store.RoleSystem))
}

func TestStore_Close(t *testing.T) {
	st := newStore()
	st.Ensure("conv_a")

	require.NoError(t, st.Close())
	assert.Equal(t, 0, st.Count())

	st.Append("conv_b", store.RoleUser, "ignored")
	assert.Equal(t, 0, st.Count())
}

func countRole(h store.History, role store.Role) int {
	n := 0
	for _, m := range h {
		if m.Role == role {
			n++
		}
	}
	return n
}
