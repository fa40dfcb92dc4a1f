package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/abhirockzz/ele-chat/assistant"
)

const (
	Greeting    = "Hello human!"
	PendingText = "I am preparing your answer.."
)

var ErrTurnInProgress = errors.New("a turn is already in progress")

// IncompleteError is returned when the server answered with a run status instead of a reply.
type IncompleteError struct {
	Status assistant.RunStatus
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("turn did not complete: %s", e.Status)
}

// Reply is the server's answer to one turn: either a message or a non-completed status.
type Reply struct {
	Message *assistant.Message
	Status  assistant.RunStatus
}

// Sender delivers a full history to the bot and returns its reply.
type Sender interface {
	Send(ctx context.Context, history []assistant.Message) (Reply, error)
}

// Session runs submissions one at a time: Idle -> Sending -> Idle. A successful turn appends
// the user message and the reply to the store; any failure leaves the store untouched.
type Session struct {
	sender Sender
	store  *Store

	mu      sync.Mutex
	sending bool
	latest  string
}

func NewSession(sender Sender, store *Store) *Session {
	return &Session{sender: sender, store: store, latest: Greeting}
}

func (s *Session) Store() *Store {
	return s.store
}

// Sending reports whether a turn is in flight.
func (s *Session) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// Latest is the text of the most recent assistant answer, or the greeting before the first one.
func (s *Session) Latest() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

func (s *Session) Submit(ctx context.Context, text string) (assistant.Message, error) {
	s.mu.Lock()
	if s.sending {
		s.mu.Unlock()
		return assistant.Message{}, ErrTurnInProgress
	}
	s.sending = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sending = false
		s.mu.Unlock()
	}()

	logger := zerolog.Ctx(ctx)
	pending := s.store.Current().Append(assistant.Message{Role: assistant.RoleUser, Content: text}.Normalize())

	reply, err := s.sender.Send(ctx, pending.Messages())
	if err != nil {
		logger.Error().Err(err).Int("messages", pending.Len()).Msg("turn failed")
		return assistant.Message{}, err
	}
	if reply.Message == nil {
		logger.Warn().Str("status", string(reply.Status)).Msg("turn did not complete")
		return assistant.Message{}, &IncompleteError{Status: reply.Status}
	}

	answer := *reply.Message
	s.mu.Lock()
	s.latest = answer.Content
	s.mu.Unlock()

	s.store.Set(pending.Append(answer))
	return answer, nil
}
