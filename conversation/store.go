package conversation

import "sync"

// Store holds the current History and notifies subscribers whenever it is replaced.
type Store struct {
	mu      sync.RWMutex
	current History
	subs    map[int]func(History)
	nextID  int
}

func NewStore(initial History) *Store {
	return &Store{current: initial, subs: make(map[int]func(History))}
}

func (s *Store) Current() History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set replaces the history and calls every subscriber with the new value. Subscribers run on
// the caller's goroutine, outside the store lock.
func (s *Store) Set(h History) {
	s.mu.Lock()
	s.current = h
	subs := make([]func(History), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(h)
	}
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn func(History)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}
