package wall

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"chatwall/internal/user"
	id "chatwall/pkg/domain"
	dErrors "chatwall/pkg/domain-errors"
)

// Users is the slice of the user directory this service needs for hydration.
type Users interface {
	GetByID(ctx context.Context, userID id.UserID) (*user.User, error)
}

// Service owns the public wall: durable appends and hydrated history.
type Service struct {
	store  Store
	users  Users
	logger *slog.Logger
}

func NewService(store Store, users Users, logger *slog.Logger) *Service {
	return &Service{store: store, users: users, logger: logger}
}

// Append persists a wall message for the given sender and returns it with the
// sender hydrated, ready for broadcast. Blank text is rejected before any
// store call.
func (s *Service) Append(ctx context.Context, senderID id.UserID, text string) (*HydratedMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "text is required")
	}

	m := &Message{
		ID:        id.NewMessageID(),
		UserID:    senderID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Append(ctx, m); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "append wall message", err)
	}
	return s.hydrate(ctx, m), nil
}

// History returns every wall message in chronological order.
func (s *Service) History(ctx context.Context) ([]*HydratedMessage, error) {
	messages, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load wall history", err)
	}
	result := make([]*HydratedMessage, 0, len(messages))
	for _, m := range messages {
		result = append(result, s.hydrate(ctx, m))
	}
	return result, nil
}

func (s *Service) hydrate(ctx context.Context, m *Message) *HydratedMessage {
	hydrated := &HydratedMessage{Message: *m}
	if u, err := s.users.GetByID(ctx, m.UserID); err == nil {
		hydrated.User = u.ToPublic()
	} else {
		hydrated.User = user.Public{ID: m.UserID, Name: "Unknown"}
	}
	return hydrated
}
