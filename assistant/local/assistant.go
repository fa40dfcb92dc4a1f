// Package local runs the assistant in process: threads live in a store.ThreadStore and runs are
// answered by any langchaingo model. It behaves like a hosted Assistants API, runs included, so
// the server polls it the same way.
package local

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"github.com/abhirockzz/ele-chat/assistant"
	"github.com/abhirockzz/ele-chat/store"
)

const defaultRunTimeout = 2 * time.Minute

type Option func(*Assistant)

// WithInstructions sets the system prompt sent ahead of every thread.
func WithInstructions(instructions string) Option {
	return func(a *Assistant) { a.instructions = instructions }
}

// WithRunTimeout bounds a single model call.
func WithRunTimeout(d time.Duration) Option {
	return func(a *Assistant) { a.runTimeout = d }
}

type Assistant struct {
	llm          llms.Model
	threads      store.ThreadStore
	instructions string
	runTimeout   time.Duration

	wg sync.WaitGroup
}

func New(llm llms.Model, threads store.ThreadStore, opts ...Option) *Assistant {
	a := &Assistant{
		llm:        llm,
		threads:    threads,
		runTimeout: defaultRunTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Assistant) CreateThread(ctx context.Context) (assistant.Thread, error) {
	id := "thread_" + uuid.NewString()
	if err := a.threads.CreateThread(ctx, id); err != nil {
		return assistant.Thread{}, fmt.Errorf("create thread: %w: %w", assistant.ErrUpstreamUnavailable, err)
	}
	return assistant.Thread{ID: id}, nil
}

func (a *Assistant) CreateMessage(ctx context.Context, threadID string, msg assistant.Message) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("create message: %w: %w", assistant.ErrUpstreamRequestFailed, err)
	}

	err := a.threads.AppendMessage(ctx, threadID, store.Message{
		ID:        "msg_" + uuid.NewString(),
		Role:      msg.Role,
		Content:   msg.Content,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("create message: %w: %w", assistant.ErrUpstreamRequestFailed, err)
	}
	return nil
}

// CreateRun queues a run and answers it in the background. Poll RetrieveRun for the outcome.
func (a *Assistant) CreateRun(ctx context.Context, threadID string) (assistant.Run, error) {
	run := store.Run{
		ID:        "run_" + uuid.NewString(),
		ThreadID:  threadID,
		Status:    assistant.RunStatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.threads.SaveRun(ctx, run); err != nil {
		return assistant.Run{}, fmt.Errorf("create run: %w: %w", assistant.ErrUpstreamRequestFailed, err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.execute(run)
	}()

	return toRun(run), nil
}

func (a *Assistant) RetrieveRun(ctx context.Context, threadID, runID string) (assistant.Run, error) {
	run, err := a.threads.Run(ctx, threadID, runID)
	if err != nil {
		return assistant.Run{}, fmt.Errorf("retrieve run: %w: %w", assistant.ErrUpstreamRequestFailed, err)
	}
	return toRun(run), nil
}

// ListMessages returns the thread newest first, like the hosted API does. An assistant message
// without text reads as assistant.NoValidResponse.
func (a *Assistant) ListMessages(ctx context.Context, threadID string) ([]assistant.Message, error) {
	stored, err := a.threads.Messages(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w: %w", assistant.ErrUpstreamRequestFailed, err)
	}

	messages := make([]assistant.Message, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		msg := assistant.Message{Role: stored[i].Role, Content: stored[i].Content}
		if msg.Role == assistant.RoleAssistant && msg.Content == "" {
			msg.Content = assistant.NoValidResponse
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Close waits for runs still executing.
func (a *Assistant) Close() {
	a.wg.Wait()
}

// execute is detached from the request that created the run, as a hosted run would be.
func (a *Assistant) execute(run store.Run) {
	ctx, cancel := context.WithTimeout(context.Background(), a.runTimeout)
	defer cancel()

	logger := log.With().Str("thread_id", run.ThreadID).Str("run_id", run.ID).Logger()

	run.Status = assistant.RunStatusInProgress
	if err := a.threads.SaveRun(ctx, run); err != nil {
		logger.Error().Err(err).Msg("Failed to mark run in progress")
		return
	}

	reply, err := a.generate(ctx, run.ThreadID)
	if err == nil {
		err = a.threads.AppendMessage(ctx, run.ThreadID, store.Message{
			ID:        "msg_" + uuid.NewString(),
			Role:      assistant.RoleAssistant,
			Content:   reply,
			CreatedAt: time.Now().UTC(),
		})
	}

	now := time.Now().UTC()
	run.CompletedAt = &now
	switch {
	case err == nil:
		run.Status = assistant.RunStatusCompleted
	case errors.Is(err, context.DeadlineExceeded):
		run.Status = assistant.RunStatusExpired
		run.LastError = err.Error()
	default:
		run.Status = assistant.RunStatusFailed
		run.LastError = err.Error()
	}
	if err != nil {
		logger.Error().Err(err).Str("status", string(run.Status)).Msg("Run did not complete")
	}

	// the run context may be spent, the final status still has to land
	saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer saveCancel()
	if err := a.threads.SaveRun(saveCtx, run); err != nil {
		logger.Error().Err(err).Msg("Failed to save run result")
	}
}

func (a *Assistant) generate(ctx context.Context, threadID string) (string, error) {
	stored, err := a.threads.Messages(ctx, threadID)
	if err != nil {
		return "", err
	}

	content := make([]llms.MessageContent, 0, len(stored)+1)
	if a.instructions != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, a.instructions))
	}
	for _, m := range stored {
		messageType := llms.ChatMessageTypeHuman
		if m.Role == assistant.RoleAssistant {
			messageType = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(messageType, m.Content))
	}

	resp, err := a.llm.GenerateContent(ctx, content)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return resp.Choices[0].Content, nil
}

func toRun(r store.Run) assistant.Run {
	return assistant.Run{
		ID:        r.ID,
		ThreadID:  r.ThreadID,
		Status:    r.Status,
		LastError: r.LastError,
	}
}
