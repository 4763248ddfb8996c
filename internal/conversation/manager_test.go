package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/chat-gateway/internal/moderation"
	"github.com/compresr/chat-gateway/internal/store"
	"github.com/compresr/chat-gateway/internal/upstream"
)

const testPrompt = "You are ThreatIntel AI."

// mockCompleter mirrors upstream.Completer.
type mockCompleter struct {
	mu       sync.Mutex
	requests []openai.ChatCompletionRequest
	reply    func(req openai.ChatCompletionRequest) (*upstream.Completion, error)
	noCreds  bool
}

func (m *mockCompleter) Complete(_ context.Context, req openai.ChatCompletionRequest) (*upstream.Completion, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.reply != nil {
		return m.reply(req)
	}
	last := req.Messages[len(req.Messages)-1].Content
	return &upstream.Completion{Content: "echo: " + last, Model: req.Model}, nil
}

func (m *mockCompleter) HasCredentials() bool { return !m.noCreds }

func (m *mockCompleter) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func countRole(h store.History, role store.Role) int {
	n := 0
	for _, msg := range h {
		if msg.Role == role {
			n++
		}
	}
	return n
}

func newTestManager(t *testing.T, c *mockCompleter, mutate func(*Options)) (*Manager, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore(testPrompt, store.Cap{Max: 30, Keep: 20})
	opts := Options{
		Store:     st,
		Window:    WindowDefault,
		Completer: c,
		Model:     "openai/gpt-3.5-turbo",
		Serialize: true,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewManager(opts), opts.Store.(*store.MemoryStore)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestManager_NewConversation(t *testing.T) {
	m, st := newTestManager(t, &mockCompleter{}, nil)

	id, greeting := m.NewConversation()

	assert.Regexp(t, `^conv_\d+_[0-9a-f]{12}$`, id)
	assert.Equal(t, DefaultGreeting, greeting)
	h, ok := st.Get(id)
	require.True(t, ok)
	assert.Equal(t, store.History{{Role: store.RoleSystem, Content: testPrompt}}, h)
}

func TestManager_NewConversationUniqueIDs(t *testing.T) {
	m, _ := newTestManager(t, &mockCompleter{}, nil)

	a, _ := m.NewConversation()
	b, _ := m.NewConversation()
	assert.NotEqual(t, a, b)

	same := time.UnixMilli(1_700_000_000_000)
	assert.NotEqual(t, newIDAt(same), newIDAt(same), "ids minted in the same millisecond must differ")
}

func TestManager_NewConversationConcurrent(t *testing.T) {
	m, st := newTestManager(t, &mockCompleter{}, nil)

	const n = 200
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, _ := m.NewConversation()
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Equal(t, n, st.Count())
}

func TestManager_ClearIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t, &mockCompleter{}, nil)
	id, _ := m.NewConversation()

	assert.True(t, m.Clear(id))
	assert.False(t, m.Clear(id))
	assert.False(t, m.Status(id).Exists)
}

func TestManager_Status(t *testing.T) {
	m, st := newTestManager(t, &mockCompleter{}, nil)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	absent := m.Status("nope")
	assert.Equal(t, Status{Exists: false, MessageCount: 0, LastActivity: nil}, absent)

	id, _ := m.NewConversation()
	fresh := m.Status(id)
	assert.True(t, fresh.Exists)
	assert.Equal(t, 0, fresh.MessageCount, "system message is not counted")
	require.NotNil(t, fresh.LastActivity)
	assert.Equal(t, fixed, *fresh.LastActivity)

	st.Append(id, store.RoleUser, "q")
	st.Append(id, store.RoleAssistant, "a")
	assert.Equal(t, 2, m.Status(id).MessageCount)
}

func TestManager_Reenter(t *testing.T) {
	m, _ := newTestManager(t, &mockCompleter{}, nil)
	ctx := context.Background()

	_, err := m.Send(ctx, SendRequest{ConversationID: "conv_x", Message: "one"})
	require.NoError(t, err)
	require.True(t, m.Clear("conv_x"))

	_, err = m.Send(ctx, SendRequest{ConversationID: "conv_x", Message: "two"})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Status("conv_x").MessageCount)
}

// =============================================================================
// SEND
// =============================================================================

func TestManager_Send(t *testing.T) {
	c := &mockCompleter{}
	m, st := newTestManager(t, c, nil)

	reply, err := m.Send(context.Background(), SendRequest{ConversationID: "conv_a", Message: "What is APT29?"})
	require.NoError(t, err)

	assert.Equal(t, "conv_a", reply.ConversationID)
	assert.Equal(t, "echo: What is APT29?", reply.Content)
	assert.Equal(t, 2, reply.SentMessages)
	assert.False(t, reply.Trimmed)
	assert.Positive(t, reply.PromptTokens)

	require.Equal(t, 1, c.calls())
	req := c.requests[0]
	assert.Equal(t, "openai/gpt-3.5-turbo", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Equal(t, testPrompt, req.Messages[0].Content)

	h, _ := st.Get("conv_a")
	assert.Equal(t, store.History{
		{Role: store.RoleSystem, Content: testPrompt},
		{Role: store.RoleUser, Content: "What is APT29?"},
		{Role: store.RoleAssistant, Content: "echo: What is APT29?"},
	}, h)
}

func TestManager_SendGeneratesID(t *testing.T) {
	m, st := newTestManager(t, &mockCompleter{}, nil)

	reply, err := m.Send(context.Background(), SendRequest{Message: "hi"})
	require.NoError(t, err)

	assert.NotEmpty(t, reply.ConversationID)
	assert.Equal(t, 3, st.Len(reply.ConversationID))
}

func TestManager_SendValidation(t *testing.T) {
	c := &mockCompleter{}
	m, st := newTestManager(t, c, nil)

	for _, msg := range []string{"", "   ", "\n\t"} {
		_, err := m.Send(context.Background(), SendRequest{ConversationID: "conv_a", Message: msg})
		assert.ErrorIs(t, err, ErrValidation)
	}
	assert.Equal(t, 0, st.Count(), "validation must reject before touching the store")
	assert.Equal(t, 0, c.calls())
}

func TestManager_SendConfiguration(t *testing.T) {
	c := &mockCompleter{noCreds: true}
	m, st := newTestManager(t, c, nil)

	_, err := m.Send(context.Background(), SendRequest{ConversationID: "conv_a", Message: "hi"})

	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, 0, st.Count())
	assert.Equal(t, 0, c.calls())
}

func TestManager_SendUpstreamError(t *testing.T) {
	upErr := &upstream.Error{Kind: upstream.ErrRateLimited, StatusCode: 429}
	c := &mockCompleter{reply: func(openai.ChatCompletionRequest) (*upstream.Completion, error) {
		return nil, upErr
	}}
	m, st := newTestManager(t, c, nil)

	_, err := m.Send(context.Background(), SendRequest{ConversationID: "conv_a", Message: "hi"})

	assert.ErrorIs(t, err, upstream.ErrRateLimited)
	h, _ := st.Get("conv_a")
	require.Len(t, h, 2, "user turn is kept, no assistant turn is recorded")
	assert.Equal(t, store.RoleUser, h[1].Role)
	assert.Equal(t, 1, c.calls(), "no automatic retry")
}

func TestManager_SendTrimsWindow(t *testing.T) {
	c := &mockCompleter{}
	m, _ := newTestManager(t, c, func(o *Options) { o.Store = store.NewMemoryStore(testPrompt, store.Cap{}) })

	ctx := context.Background()
	for i := 1; i <= 8; i++ {
		_, err := m.Send(ctx, SendRequest{ConversationID: "conv_a", Message: fmt.Sprintf("q%d", i)})
		require.NoError(t, err)
	}

	// Stored: 1 system + 7 full turns (14) + q8 = 16 messages when the 8th request is composed.
	last := c.requests[len(c.requests)-1]
	require.Len(t, last.Messages, WindowDefault.KeepRecent+1)
	assert.Equal(t, openai.ChatMessageRoleSystem, last.Messages[0].Role)
	assert.Equal(t, "echo: q1", last.Messages[1].Content, "only q1 is dropped")
	assert.Equal(t, "q8", last.Messages[len(last.Messages)-1].Content)
}

func TestManager_SendHardCap(t *testing.T) {
	m, st := newTestManager(t, &mockCompleter{}, nil)
	ctx := context.Background()

	var reply *Reply
	var err error
	for i := 1; i <= 40; i++ {
		reply, err = m.Send(ctx, SendRequest{ConversationID: "conv_a", Message: fmt.Sprintf("q%d", i)})
		require.NoError(t, err)
		assert.LessOrEqual(t, st.Len("conv_a"), 30)
	}

	// Every fifth turn pushes the history to 31 and it is cut back to 21.
	assert.Equal(t, 10, reply.CappedMessages)
	h, _ := st.Get("conv_a")
	require.Len(t, h, 21)
	assert.Equal(t, store.RoleSystem, h[0].Role)
	assert.Equal(t, "q31", h[1].Content)
	assert.Equal(t, "echo: q40", h[len(h)-1].Content)
}

func TestManager_HardCapHoldsOnUpstreamFailure(t *testing.T) {
	c := &mockCompleter{reply: func(openai.ChatCompletionRequest) (*upstream.Completion, error) {
		return nil, &upstream.Error{Kind: upstream.ErrRateLimited, StatusCode: 429}
	}}
	m, st := newTestManager(t, c, nil)
	ctx := context.Background()

	for i := 1; i <= 200; i++ {
		_, err := m.Send(ctx, SendRequest{ConversationID: "c1", Message: fmt.Sprintf("q%d", i)})
		require.ErrorIs(t, err, upstream.ErrRateLimited)
		require.LessOrEqual(t, st.Len("c1"), 30, "send %d", i)
	}

	h, _ := st.Get("c1")
	assert.Equal(t, store.Message{Role: store.RoleSystem, Content: testPrompt}, h[0])
	assert.Equal(t, 1, countRole(h, store.RoleSystem))
	assert.Equal(t, "q200", h[len(h)-1].Content)
	assert.Equal(t, 200, c.calls())
}

func TestManager_SendModeration(t *testing.T) {
	filter, err := moderation.New(moderation.Config{Enabled: true, Directive: "DECLINE", Blocklist: []string{"ransomware builder"}})
	require.NoError(t, err)
	c := &mockCompleter{}
	m, st := newTestManager(t, c, func(o *Options) { o.Filter = filter })

	reply, err := m.Send(context.Background(), SendRequest{ConversationID: "conv_a", Message: "give me a ransomware builder"})
	require.NoError(t, err)

	assert.True(t, reply.Flagged)
	h, _ := st.Get("conv_a")
	require.Len(t, h, 3)
	assert.Equal(t, store.Message{Role: store.RoleUser, Content: "DECLINE"}, h[1])
	assert.Equal(t, "DECLINE", c.requests[0].Messages[1].Content)
}

func TestManager_SendAttachment(t *testing.T) {
	c := &mockCompleter{}
	m, _ := newTestManager(t, c, nil)

	_, err := m.Send(context.Background(), SendRequest{
		ConversationID: "conv_a",
		Message:        "summarise this log",
		Attachment:     &Attachment{Name: "auth.log", Text: "Failed password for root"},
	})
	require.NoError(t, err)

	sent := c.requests[0].Messages[1].Content
	assert.Equal(t, "summarise this log\n\n[Attached file: auth.log]\nFailed password for root", sent)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestManager_SerializedExchanges(t *testing.T) {
	var inFlight, maxInFlight int
	var mu sync.Mutex
	c := &mockCompleter{reply: func(req openai.ChatCompletionRequest) (*upstream.Completion, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return &upstream.Completion{Content: "reply to " + req.Messages[len(req.Messages)-1].Content}, nil
	}}
	m, st := newTestManager(t, c, func(o *Options) { o.Store = store.NewMemoryStore(testPrompt, store.Cap{}) })

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Send(context.Background(), SendRequest{ConversationID: "conv_a", Message: fmt.Sprintf("q%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight)
	h, _ := st.Get("conv_a")
	require.Len(t, h, 21)
	for i := 1; i < len(h); i += 2 {
		assert.Equal(t, store.RoleUser, h[i].Role)
		assert.Equal(t, store.RoleAssistant, h[i+1].Role)
		assert.Equal(t, "reply to "+h[i].Content, h[i+1].Content, "each reply follows its own question")
	}
	assert.Equal(t, 0, m.locks.size(), "lock entries are released")
}

func TestManager_UnserializedAppendsStayConsistent(t *testing.T) {
	c := &mockCompleter{}
	m, st := newTestManager(t, c, func(o *Options) {
		o.Serialize = false
		o.Store = store.NewMemoryStore(testPrompt, store.Cap{})
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Send(context.Background(), SendRequest{ConversationID: "conv_a", Message: fmt.Sprintf("q%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	h, _ := st.Get("conv_a")
	assert.Len(t, h, 41)
	assert.Equal(t, store.RoleSystem, h[0].Role)
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	k := newKeyedMutex()

	unlockA := k.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := k.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
	unlockA()
	assert.Equal(t, 0, k.size())
}
