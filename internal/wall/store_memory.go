package wall

import (
	"context"
	"sync"
)

// InMemoryStore keeps wall messages in memory for tests/dev.
type InMemoryStore struct {
	mu       sync.RWMutex
	messages []*Message
}

// NewInMemoryStore constructs an empty in-memory wall store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *m
	s.messages = append(s.messages, &copied)
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Message, 0, len(s.messages))
	for _, m := range s.messages {
		copied := *m
		result = append(result, &copied)
	}
	return result, nil
}
