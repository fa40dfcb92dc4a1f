package store

import (
	"context"
	"sync"
	"time"
)

type memoryThread struct {
	messages  []Message
	runs      map[string]Run
	expiresAt time.Time
}

// MemoryStore keeps threads in process memory. Expired threads are dropped lazily on access and
// by Sweep.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	threads map[string]*memoryThread
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:     ttl,
		threads: make(map[string]*memoryThread),
		now:     time.Now,
	}
}

func (s *MemoryStore) CreateThread(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threads[threadID] = &memoryThread{
		runs:      make(map[string]Run),
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, threadID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.thread(threadID)
	if err != nil {
		return err
	}
	t.messages = append(t.messages, msg)
	return nil
}

func (s *MemoryStore) Messages(_ context.Context, threadID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.thread(threadID)
	if err != nil {
		return nil, err
	}
	return append([]Message(nil), t.messages...), nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.thread(run.ThreadID)
	if err != nil {
		return err
	}
	t.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) Run(_ context.Context, threadID, runID string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.thread(threadID)
	if err != nil {
		return Run{}, err
	}
	run, ok := t.runs[runID]
	if !ok {
		return Run{}, ErrNotFound
	}
	return run, nil
}

// Sweep drops every expired thread and reports how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, t := range s.threads {
		if now.After(t.expiresAt) {
			delete(s.threads, id)
			removed++
		}
	}
	return removed
}

// thread must be called with the lock held.
func (s *MemoryStore) thread(threadID string) (*memoryThread, error) {
	t, ok := s.threads[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	if s.now().After(t.expiresAt) {
		delete(s.threads, threadID)
		return nil, ErrNotFound
	}
	return t, nil
}
