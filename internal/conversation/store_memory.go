package conversation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	id "chatwall/pkg/domain"
	"chatwall/pkg/platform/sentinel"
)

// InMemoryStore keeps conversations and messages in memory for tests/dev.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[id.ConversationID]*Conversation
	messages      map[id.ConversationID][]*DirectMessage
}

// NewInMemoryStore constructs an empty in-memory conversation store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[id.ConversationID]*Conversation),
		messages:      make(map[id.ConversationID][]*DirectMessage),
	}
}

func (s *InMemoryStore) CreateConversation(_ context.Context, c *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[c.ID]; ok {
		return fmt.Errorf("conversation %s: %w", c.ID, sentinel.ErrConflict)
	}
	s.conversations[c.ID] = cloneConversation(c)
	return nil
}

func (s *InMemoryStore) FindConversation(_ context.Context, convID id.ConversationID) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.conversations[convID]; ok {
		return cloneConversation(c), nil
	}
	return nil, fmt.Errorf("conversation %s: %w", convID, sentinel.ErrNotFound)
}

func (s *InMemoryStore) FindBetween(_ context.Context, a, b id.UserID) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conversations {
		if c.HasParticipant(a) && c.HasParticipant(b) {
			return cloneConversation(c), nil
		}
	}
	return nil, fmt.Errorf("conversation between %s and %s: %w", a, b, sentinel.ErrNotFound)
}

func (s *InMemoryStore) ListForUser(_ context.Context, userID id.UserID, limit int) ([]*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Conversation
	for _, c := range s.conversations {
		if c.HasParticipant(userID) {
			result = append(result, cloneConversation(c))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastMessageAt.After(result[j].LastMessageAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *InMemoryStore) TouchLastMessage(_ context.Context, convID id.ConversationID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[convID]
	if !ok {
		return fmt.Errorf("conversation %s: %w", convID, sentinel.ErrNotFound)
	}
	c.LastMessageAt = at
	return nil
}

func (s *InMemoryStore) AppendMessage(_ context.Context, m *DirectMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[m.ConversationID]; !ok {
		return fmt.Errorf("conversation %s: %w", m.ConversationID, sentinel.ErrNotFound)
	}
	copied := *m
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], &copied)
	return nil
}

func (s *InMemoryStore) ListMessages(_ context.Context, convID id.ConversationID, limit int, before *id.MessageID) ([]*DirectMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[convID]

	cutoff := time.Time{}
	if before != nil {
		for _, m := range all {
			if m.ID == *before {
				cutoff = m.CreatedAt
				break
			}
		}
	}

	var result []*DirectMessage
	for _, m := range all {
		if !cutoff.IsZero() && !m.CreatedAt.Before(cutoff) {
			continue
		}
		copied := *m
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		// keep the newest messages of the window
		result = result[len(result)-limit:]
	}
	return result, nil
}

func (s *InMemoryStore) LastMessage(_ context.Context, convID id.ConversationID) (*DirectMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[convID]
	if len(all) == 0 {
		return nil, fmt.Errorf("messages in %s: %w", convID, sentinel.ErrNotFound)
	}
	var last *DirectMessage
	for _, m := range all {
		if last == nil || m.CreatedAt.After(last.CreatedAt) {
			last = m
		}
	}
	copied := *last
	return &copied, nil
}

func (s *InMemoryStore) UnreadCount(_ context.Context, convID id.ConversationID, receiverID id.UserID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, m := range s.messages[convID] {
		if m.ReceiverID == receiverID && !m.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) TotalUnread(_ context.Context, receiverID id.UserID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, msgs := range s.messages {
		for _, m := range msgs {
			if m.ReceiverID == receiverID && !m.IsRead {
				count++
			}
		}
	}
	return count, nil
}

func (s *InMemoryStore) MarkRead(_ context.Context, convID id.ConversationID, receiverID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	marked := 0
	for _, m := range s.messages[convID] {
		if m.ReceiverID == receiverID && !m.IsRead {
			m.IsRead = true
			m.ReadAt = &now
			marked++
		}
	}
	return marked, nil
}

func cloneConversation(c *Conversation) *Conversation {
	copied := *c
	copied.ParticipantIDs = append([]id.UserID(nil), c.ParticipantIDs...)
	return &copied
}
