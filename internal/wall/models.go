package wall

import (
	"time"

	"chatwall/internal/user"
	id "chatwall/pkg/domain"
)

// Message is one persisted public wall post.
type Message struct {
	ID        id.MessageID `json:"id"`
	UserID    id.UserID    `json:"userId"`
	Text      string       `json:"text"`
	CreatedAt time.Time    `json:"createdAt"`
}

// HydratedMessage joins the sender in, the shape broadcast to clients.
type HydratedMessage struct {
	Message
	User user.Public `json:"user"`
}
