package local

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/abhirockzz/ele-chat/assistant"
	"github.com/abhirockzz/ele-chat/store"
)

// stubModel answers every call with reply, or fails with err.
type stubModel struct {
	mu     sync.Mutex
	reply  string
	err    error
	block  chan struct{}
	prompt []llms.MessageContent
}

func (m *stubModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	m.prompt = messages
	m.mu.Unlock()

	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func poll() assistant.PollConfig {
	return assistant.PollConfig{Interval: time.Millisecond, MaxInterval: 10 * time.Millisecond, Multiplier: 2, Timeout: 5 * time.Second}
}

func textOf(t *testing.T, mc llms.MessageContent) string {
	t.Helper()
	require.Len(t, mc.Parts, 1)
	part, ok := mc.Parts[0].(llms.TextContent)
	require.True(t, ok)
	return part.Text
}

func TestAssistantRun(t *testing.T) {
	ctx := context.Background()
	model := &stubModel{reply: "Hello!"}
	a := New(model, store.NewMemoryStore(time.Minute), WithInstructions("You are Ele."))
	t.Cleanup(a.Close)

	thread, err := a.CreateThread(ctx)
	require.NoError(t, err)

	require.NoError(t, a.CreateMessage(ctx, thread.ID, assistant.Message{Role: assistant.RoleUser, Content: "Hi"}))
	require.NoError(t, a.CreateMessage(ctx, thread.ID, assistant.Message{Role: assistant.RoleAssistant, Content: "Hey"}))
	require.NoError(t, a.CreateMessage(ctx, thread.ID, assistant.Message{Role: assistant.RoleUser, Content: "How are you?"}))

	run, err := a.CreateRun(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, assistant.RunStatusQueued, run.Status)

	run, err = assistant.WaitForRun(ctx, a, run, poll())
	require.NoError(t, err)
	assert.Equal(t, assistant.RunStatusCompleted, run.Status)

	messages, err := a.ListMessages(ctx, thread.ID)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, assistant.Message{Role: assistant.RoleAssistant, Content: "Hello!"}, messages[0])
	assert.Equal(t, "Hi", messages[3].Content)

	model.mu.Lock()
	defer model.mu.Unlock()
	require.Len(t, model.prompt, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.prompt[0].Role)
	assert.Equal(t, "You are Ele.", textOf(t, model.prompt[0]))
	assert.Equal(t, llms.ChatMessageTypeHuman, model.prompt[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, model.prompt[2].Role)
	assert.Equal(t, "How are you?", textOf(t, model.prompt[3]))
}

func TestAssistantEmptyReply(t *testing.T) {
	ctx := context.Background()
	a := New(&stubModel{reply: ""}, store.NewMemoryStore(time.Minute))
	t.Cleanup(a.Close)

	thread, err := a.CreateThread(ctx)
	require.NoError(t, err)
	require.NoError(t, a.CreateMessage(ctx, thread.ID, assistant.Message{Role: assistant.RoleUser, Content: "Hi"}))

	run, err := a.CreateRun(ctx, thread.ID)
	require.NoError(t, err)
	run, err = assistant.WaitForRun(ctx, a, run, poll())
	require.NoError(t, err)
	assert.Equal(t, assistant.RunStatusCompleted, run.Status)

	messages, err := a.ListMessages(ctx, thread.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, assistant.Message{Role: assistant.RoleAssistant, Content: assistant.NoValidResponse}, messages[0])
	assert.Equal(t, assistant.Message{Role: assistant.RoleUser, Content: "Hi"}, messages[1])
}

func TestAssistantRunFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("Model error fails the run", func(t *testing.T) {
		a := New(&stubModel{err: errors.New("model offline")}, store.NewMemoryStore(time.Minute))
		t.Cleanup(a.Close)

		thread, err := a.CreateThread(ctx)
		require.NoError(t, err)
		run, err := a.CreateRun(ctx, thread.ID)
		require.NoError(t, err)

		run, err = assistant.WaitForRun(ctx, a, run, poll())
		require.NoError(t, err)
		assert.Equal(t, assistant.RunStatusFailed, run.Status)
		assert.Contains(t, run.LastError, "model offline")
	})

	t.Run("Slow model expires the run", func(t *testing.T) {
		a := New(&stubModel{block: make(chan struct{})}, store.NewMemoryStore(time.Minute), WithRunTimeout(20*time.Millisecond))
		t.Cleanup(a.Close)

		thread, err := a.CreateThread(ctx)
		require.NoError(t, err)
		run, err := a.CreateRun(ctx, thread.ID)
		require.NoError(t, err)

		run, err = assistant.WaitForRun(ctx, a, run, poll())
		require.NoError(t, err)
		assert.Equal(t, assistant.RunStatusExpired, run.Status)
	})

	t.Run("Unknown thread", func(t *testing.T) {
		a := New(&stubModel{}, store.NewMemoryStore(time.Minute))

		err := a.CreateMessage(ctx, "thread_missing", assistant.Message{Role: assistant.RoleUser, Content: "Hi"})
		assert.ErrorIs(t, err, assistant.ErrUpstreamRequestFailed)
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = a.CreateRun(ctx, "thread_missing")
		assert.ErrorIs(t, err, assistant.ErrUpstreamRequestFailed)
	})

	t.Run("Invalid role", func(t *testing.T) {
		a := New(&stubModel{}, store.NewMemoryStore(time.Minute))
		thread, err := a.CreateThread(ctx)
		require.NoError(t, err)

		err = a.CreateMessage(ctx, thread.ID, assistant.Message{Role: "system", Content: "Hi"})
		assert.ErrorIs(t, err, assistant.ErrUpstreamRequestFailed)
	})
}
