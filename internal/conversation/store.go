package conversation

import (
	"context"
	"time"

	id "chatwall/pkg/domain"
)

// Store is the durable conversation directory plus its message log.
//
// Error Contract:
// - Return sentinel.ErrNotFound (wrapped) when the requested entity does not exist
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures
type Store interface {
	CreateConversation(ctx context.Context, c *Conversation) error
	FindConversation(ctx context.Context, convID id.ConversationID) (*Conversation, error)
	// FindBetween returns the conversation whose participant list contains both
	// users, if one exists.
	FindBetween(ctx context.Context, a, b id.UserID) (*Conversation, error)
	// ListForUser returns the user's conversations, most recent activity first.
	ListForUser(ctx context.Context, userID id.UserID, limit int) ([]*Conversation, error)
	TouchLastMessage(ctx context.Context, convID id.ConversationID, at time.Time) error

	AppendMessage(ctx context.Context, m *DirectMessage) error
	// ListMessages returns up to limit messages in chronological order. A
	// non-nil before cursor restricts results to messages older than it.
	ListMessages(ctx context.Context, convID id.ConversationID, limit int, before *id.MessageID) ([]*DirectMessage, error)
	LastMessage(ctx context.Context, convID id.ConversationID) (*DirectMessage, error)
	UnreadCount(ctx context.Context, convID id.ConversationID, receiverID id.UserID) (int, error)
	TotalUnread(ctx context.Context, receiverID id.UserID) (int, error)
	// MarkRead flags all unread messages addressed to receiverID and returns
	// how many were updated.
	MarkRead(ctx context.Context, convID id.ConversationID, receiverID id.UserID) (int, error)
}
