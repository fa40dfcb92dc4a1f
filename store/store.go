// Package store persists threads, their messages and their runs for the self-hosted assistant.
// Every backend expires a thread after a TTL instead of deleting it explicitly.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/abhirockzz/ele-chat/assistant"
)

var ErrNotFound = errors.New("thread not found")

// DefaultTTL is how long a thread lives when the backend is given no TTL.
const DefaultTTL = time.Hour

type Message struct {
	ID        string         `json:"id"`
	Role      assistant.Role `json:"role"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"createdAt"`
}

type Run struct {
	ID          string              `json:"id"`
	ThreadID    string              `json:"threadId"`
	Status      assistant.RunStatus `json:"status"`
	LastError   string              `json:"lastError,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	CompletedAt *time.Time          `json:"completedAt,omitempty"`
}

// ThreadStore keeps threads for a limited time.
//
// Messages returns messages in insertion order. Operations on an unknown or expired thread
// return ErrNotFound.
type ThreadStore interface {
	CreateThread(ctx context.Context, threadID string) error
	AppendMessage(ctx context.Context, threadID string, msg Message) error
	Messages(ctx context.Context, threadID string) ([]Message, error)
	SaveRun(ctx context.Context, run Run) error
	Run(ctx context.Context, threadID, runID string) (Run, error)
}
