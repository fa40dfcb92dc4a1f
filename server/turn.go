package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/abhirockzz/ele-chat/assistant"
)

// TurnResult holds either the assistant reply of a completed run, or the status of a run that
// ended any other way.
type TurnResult struct {
	Reply  *assistant.Message
	Status assistant.RunStatus
}

func (r TurnResult) Completed() bool {
	return r.Reply != nil
}

// Orchestrator plays one chat turn against the upstream assistant. Every turn gets a new
// thread; threads are never reused or deleted.
type Orchestrator struct {
	client  assistant.Client
	poll    assistant.PollConfig
	timeout time.Duration
}

func NewOrchestrator(client assistant.Client, poll assistant.PollConfig, timeout time.Duration) *Orchestrator {
	return &Orchestrator{
		client:  client,
		poll:    poll,
		timeout: timeout,
	}
}

// Take replays history into a fresh thread, runs the assistant and picks its reply. A turn that
// runs out of time in any step, or whose run outlives the poll deadline, ends with
// assistant.RunStatusTimedOut rather than an error.
func (o *Orchestrator) Take(ctx context.Context, history []assistant.Message) (TurnResult, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	result, err := o.take(ctx, history)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Turn timed out")
		return TurnResult{Status: assistant.RunStatusTimedOut}, nil
	}
	return result, err
}

func (o *Orchestrator) take(ctx context.Context, history []assistant.Message) (TurnResult, error) {
	logger := zerolog.Ctx(ctx)

	thread, err := o.client.CreateThread(ctx)
	if err != nil {
		return TurnResult{}, err
	}
	logger.Info().Str("thread_id", thread.ID).Msg("Thread created")

	for i, msg := range history {
		if err := o.client.CreateMessage(ctx, thread.ID, msg.Normalize()); err != nil {
			return TurnResult{}, fmt.Errorf("replay message %d of %d: %w", i+1, len(history), err)
		}
	}
	logger.Info().Str("thread_id", thread.ID).Int("messages", len(history)).Msg("All messages added to thread")

	run, err := o.client.CreateRun(ctx, thread.ID)
	if err != nil {
		return TurnResult{}, err
	}

	run, err = assistant.WaitForRun(ctx, o.client, run, o.poll)
	if errors.Is(err, assistant.ErrRunTimedOut) {
		logger.Warn().Err(err).Str("run_id", run.ID).Msg("Run timed out")
		return TurnResult{Status: assistant.RunStatusTimedOut}, nil
	}
	if err != nil {
		return TurnResult{}, err
	}
	logger.Info().Str("thread_id", thread.ID).Str("run_id", run.ID).Str("status", string(run.Status)).Msg("Run finished")

	if run.Status != assistant.RunStatusCompleted {
		if run.LastError != "" {
			logger.Warn().Str("run_id", run.ID).Str("last_error", run.LastError).Msg("Run did not complete")
		}
		return TurnResult{Status: run.Status}, nil
	}

	messages, err := o.client.ListMessages(ctx, thread.ID)
	if err != nil {
		return TurnResult{}, err
	}

	reply := SelectReply(messages)
	logger.Info().Str("thread_id", thread.ID).Int("reply_length", len(reply.Content)).Msg("Final assistant response")
	return TurnResult{Reply: &reply, Status: run.Status}, nil
}

// SelectReply keeps assistant messages in the order given, drops repeated contents and returns
// the first one left. With no assistant message it returns assistant.NoResponseAvailable.
func SelectReply(messages []assistant.Message) assistant.Message {
	unique := make([]assistant.Message, 0, len(messages))
	seen := make(map[string]struct{}, len(messages))
	for _, m := range messages {
		if m.Role != assistant.RoleAssistant {
			continue
		}
		if _, dup := seen[m.Content]; dup {
			continue
		}
		seen[m.Content] = struct{}{}
		unique = append(unique, m)
	}

	if len(unique) == 0 {
		return assistant.Message{Role: assistant.RoleAssistant, Content: assistant.NoResponseAvailable}
	}
	return unique[0]
}
