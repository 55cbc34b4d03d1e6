package user

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	id "chatwall/pkg/domain"
	"chatwall/pkg/platform/sentinel"
)

// InMemoryStore keeps users in memory for tests/dev.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[id.UserID]*User
}

// NewInMemoryStore constructs an empty in-memory user store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[id.UserID]*User)}
}

func (s *InMemoryStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("user %s: %w", u.ID, sentinel.ErrConflict)
	}
	copied := *u
	s.users[u.ID] = &copied
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, userID id.UserID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
}

func (s *InMemoryStore) FindByGoogleID(_ context.Context, googleID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.GoogleID == googleID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("google id %s: %w", googleID, sentinel.ErrNotFound)
}

func (s *InMemoryStore) SearchByEmailPrefix(_ context.Context, prefix string, limit int) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix = strings.ToLower(prefix)

	var matches []*User
	for _, u := range s.users {
		if strings.HasPrefix(strings.ToLower(u.Email), prefix) {
			copied := *u
			matches = append(matches, &copied)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Email < matches[j].Email })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *InMemoryStore) Update(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return fmt.Errorf("user %s: %w", u.ID, sentinel.ErrNotFound)
	}
	copied := *u
	s.users[u.ID] = &copied
	return nil
}
