package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhirockzz/ele-chat/assistant"
)

// exerciseThreadStore runs the behavior every ThreadStore must share.
func exerciseThreadStore(t *testing.T, s ThreadStore) {
	ctx := context.Background()

	t.Run("Messages keep insertion order", func(t *testing.T) {
		threadID := "thread_" + uuid.NewString()
		require.NoError(t, s.CreateThread(ctx, threadID))

		empty, err := s.Messages(ctx, threadID)
		require.NoError(t, err)
		assert.Empty(t, empty)

		contents := []string{"Hi", "Hello! How can I help?", "Tell me about Go"}
		for i, c := range contents {
			role := assistant.RoleUser
			if i%2 == 1 {
				role = assistant.RoleAssistant
			}
			require.NoError(t, s.AppendMessage(ctx, threadID, Message{ID: uuid.NewString(), Role: role, Content: c, CreatedAt: time.Now().UTC()}))
		}

		messages, err := s.Messages(ctx, threadID)
		require.NoError(t, err)
		require.Len(t, messages, len(contents))
		for i, c := range contents {
			assert.Equal(t, c, messages[i].Content)
		}
		assert.Equal(t, assistant.RoleAssistant, messages[1].Role)
	})

	t.Run("Runs are saved and replaced", func(t *testing.T) {
		threadID := "thread_" + uuid.NewString()
		require.NoError(t, s.CreateThread(ctx, threadID))

		run := Run{ID: "run_1", ThreadID: threadID, Status: assistant.RunStatusQueued, CreatedAt: time.Now().UTC()}
		require.NoError(t, s.SaveRun(ctx, run))

		run.Status = assistant.RunStatusCompleted
		require.NoError(t, s.SaveRun(ctx, run))

		got, err := s.Run(ctx, threadID, "run_1")
		require.NoError(t, err)
		assert.Equal(t, assistant.RunStatusCompleted, got.Status)

		_, err = s.Run(ctx, threadID, "run_missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Unknown thread", func(t *testing.T) {
		err := s.AppendMessage(ctx, "thread_missing", Message{Role: assistant.RoleUser, Content: "Hi"})
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.Messages(ctx, "thread_missing")
		assert.ErrorIs(t, err, ErrNotFound)

		err = s.SaveRun(ctx, Run{ID: "run_1", ThreadID: "thread_missing"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStore(t *testing.T) {
	exerciseThreadStore(t, NewMemoryStore(time.Minute))
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemoryStore(time.Minute)
	s.now = func() time.Time { return now }

	require.NoError(t, s.CreateThread(ctx, "thread_old"))
	now = now.Add(30 * time.Second)
	require.NoError(t, s.CreateThread(ctx, "thread_new"))

	now = now.Add(45 * time.Second)
	_, err := s.Messages(ctx, "thread_old")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Messages(ctx, "thread_new")
	assert.NoError(t, err)

	now = now.Add(time.Minute)
	assert.Equal(t, 1, s.Sweep())
	assert.Empty(t, s.threads)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	exerciseThreadStore(t, NewRedisStore(rdb, time.Minute))
}

func TestRedisStoreExpiry(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	s := NewRedisStore(rdb, time.Minute)
	require.NoError(t, s.CreateThread(ctx, "thread_1"))
	require.NoError(t, s.AppendMessage(ctx, "thread_1", Message{Role: assistant.RoleUser, Content: "Hi"}))
	require.NoError(t, s.SaveRun(ctx, Run{ID: "run_1", ThreadID: "thread_1", Status: assistant.RunStatusQueued}))

	assert.Equal(t, time.Minute, mr.TTL(messagesKey("thread_1")))
	assert.Equal(t, time.Minute, mr.TTL(runsKey("thread_1")))

	mr.FastForward(2 * time.Minute)

	_, err := s.Messages(ctx, "thread_1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Run(ctx, "thread_1", "run_1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	rdb.Close()

	_, err = NewRedisClient(context.Background(), "not a url")
	assert.Error(t, err)
}
