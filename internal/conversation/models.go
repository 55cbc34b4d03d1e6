package conversation

import (
	"time"

	"chatwall/internal/user"
	id "chatwall/pkg/domain"
)

// Conversation is a private chat between two users. ParticipantIDs is the
// authoritative access-control list; the realtime layer caches it with a TTL.
type Conversation struct {
	ID             id.ConversationID `json:"id"`
	ParticipantIDs []id.UserID       `json:"participantIds"`
	CreatedAt      time.Time         `json:"createdAt"`
	LastMessageAt  time.Time         `json:"lastMessageAt"`
}

// HasParticipant reports whether userID is on the participant list.
func (c *Conversation) HasParticipant(userID id.UserID) bool {
	for _, p := range c.ParticipantIDs {
		if p == userID {
			return true
		}
	}
	return false
}

// DirectMessage is one persisted message inside a conversation.
type DirectMessage struct {
	ID             id.MessageID      `json:"id"`
	ConversationID id.ConversationID `json:"conversationId"`
	SenderID       id.UserID         `json:"senderId"`
	ReceiverID     id.UserID         `json:"receiverId"`
	Text           string            `json:"text"`
	IsRead         bool              `json:"isRead"`
	ReadAt         *time.Time        `json:"readAt,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// HydratedMessage is a message with its sender joined in, the shape clients
// render directly.
type HydratedMessage struct {
	DirectMessage
	Sender user.Public `json:"sender"`
}

// Summary is one row of the conversation list: participants hydrated, the
// latest message, and the caller's unread count.
type Summary struct {
	Conversation
	Participants []user.Public      `json:"participants"`
	Messages     []*HydratedMessage `json:"messages"`
	UnreadCount  int                `json:"unreadCount"`
}

// Page is a single page of conversation history.
type Page struct {
	Conversation
	Participants []user.Public      `json:"participants"`
	Messages     []*HydratedMessage `json:"messages"`
	HasMore      bool               `json:"hasMore"`
}
