// Package assistant describes the upstream conversational assistant the chat service talks to:
// threads that accumulate messages, and runs that make the assistant answer a thread.
package assistant

import (
	"context"
	"fmt"
)

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the roles a client may send.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

const (
	// NoInputMessage replaces empty message content before it is sent upstream.
	NoInputMessage = "No input message"
	// NoValidResponse is used for an assistant message that carries no text.
	NoValidResponse = "No valid response received"
	// NoResponseAvailable is the reply when a completed run produced no assistant message.
	NoResponseAvailable = "No response available"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Normalize returns m with empty content replaced by NoInputMessage.
func (m Message) Normalize() Message {
	if m.Content == "" {
		m.Content = NoInputMessage
	}
	return m
}

func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("invalid role %q, must be %q or %q", m.Role, RoleUser, RoleAssistant)
	}
	return nil
}

// Thread is an upstream conversation context.
type Thread struct {
	ID string `json:"id"`
}

type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusIncomplete     RunStatus = "incomplete"
	RunStatusExpired        RunStatus = "expired"

	// RunStatusTimedOut is never reported by an upstream. It marks a run we stopped waiting for.
	RunStatusTimedOut RunStatus = "timed_out"
)

// Terminal reports whether no further progress happens after s.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusQueued, RunStatusInProgress, RunStatusCancelling:
		return false
	}
	return true
}

type Run struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Status    RunStatus `json:"status"`
	LastError string    `json:"last_error,omitempty"`
}

// Client is the upstream capability: create a thread, fill it, run the assistant on it and read
// the result back.
//
// ListMessages returns messages as the upstream orders them, newest first.
type Client interface {
	CreateThread(ctx context.Context) (Thread, error)
	CreateMessage(ctx context.Context, threadID string, msg Message) error
	CreateRun(ctx context.Context, threadID string) (Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (Run, error)
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
}
