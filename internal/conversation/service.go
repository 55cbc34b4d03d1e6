package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"chatwall/internal/user"
	id "chatwall/pkg/domain"
	dErrors "chatwall/pkg/domain-errors"
	"chatwall/pkg/platform/sentinel"
)

const (
	listLimit          = 50
	defaultMessagePage = 50
	maxMessagePage     = 100
)

// Users is the slice of the user directory this service needs for hydration.
type Users interface {
	GetByID(ctx context.Context, userID id.UserID) (*user.User, error)
}

// Service owns conversation access control and the direct-message log.
type Service struct {
	store  Store
	users  Users
	logger *slog.Logger
}

func NewService(store Store, users Users, logger *slog.Logger) *Service {
	return &Service{store: store, users: users, logger: logger}
}

// ParticipantsOf exposes the durable participant list for the realtime access
// cache. Not-found maps to sentinel.ErrNotFound untranslated so callers can
// fail closed without treating it as an infrastructure fault.
func (s *Service) ParticipantsOf(ctx context.Context, convID id.ConversationID) ([]id.UserID, error) {
	c, err := s.store.FindConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	return c.ParticipantIDs, nil
}

// List returns the caller's most recent conversations with participants,
// latest message, and unread counts hydrated.
func (s *Service) List(ctx context.Context, userID id.UserID) ([]*Summary, error) {
	conversations, err := s.store.ListForUser(ctx, userID, listLimit)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "list conversations", err)
	}

	result := make([]*Summary, 0, len(conversations))
	for _, c := range conversations {
		summary := &Summary{
			Conversation: *c,
			Participants: s.hydrateParticipants(ctx, c.ParticipantIDs),
			Messages:     []*HydratedMessage{},
		}

		last, err := s.store.LastMessage(ctx, c.ID)
		if err == nil {
			summary.Messages = append(summary.Messages, s.hydrateMessage(ctx, last))
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(dErrors.CodeInternal, "load last message", err)
		}

		unread, err := s.store.UnreadCount(ctx, c.ID, userID)
		if err != nil {
			return nil, dErrors.Wrap(dErrors.CodeInternal, "count unread", err)
		}
		summary.UnreadCount = unread

		result = append(result, summary)
	}
	return result, nil
}

// CreateOrGetResult reports whether the pairwise conversation already existed.
type CreateOrGetResult struct {
	Conversation *Conversation    `json:"conversation"`
	Participants []user.Public    `json:"participants"`
	LastMessage  *HydratedMessage `json:"lastMessage"`
	IsNew        bool             `json:"isNew"`
}

// CreateOrGet returns the pairwise conversation between the caller and the
// other user, creating it on first contact.
func (s *Service) CreateOrGet(ctx context.Context, callerID, otherID id.UserID) (*CreateOrGetResult, error) {
	if callerID == otherID {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "cannot chat with yourself")
	}
	if _, err := s.users.GetByID(ctx, otherID); err != nil {
		return nil, err
	}

	existing, err := s.store.FindBetween(ctx, callerID, otherID)
	if err == nil {
		result := &CreateOrGetResult{
			Conversation: existing,
			Participants: s.hydrateParticipants(ctx, existing.ParticipantIDs),
		}
		if last, err := s.store.LastMessage(ctx, existing.ID); err == nil {
			result.LastMessage = s.hydrateMessage(ctx, last)
		}
		return result, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "find conversation", err)
	}

	now := time.Now().UTC()
	created := &Conversation{
		ID:             id.NewConversationID(),
		ParticipantIDs: []id.UserID{callerID, otherID},
		CreatedAt:      now,
		LastMessageAt:  now,
	}
	if err := s.store.CreateConversation(ctx, created); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "create conversation", err)
	}

	s.logger.InfoContext(ctx, "conversation created",
		"conversation_id", created.ID, "caller_id", callerID, "other_id", otherID)

	return &CreateOrGetResult{
		Conversation: created,
		Participants: s.hydrateParticipants(ctx, created.ParticipantIDs),
		IsNew:        true,
	}, nil
}

// Messages returns one page of history for a participant and marks the
// caller's incoming messages as read.
func (s *Service) Messages(ctx context.Context, convID id.ConversationID, callerID id.UserID, limit int, before *id.MessageID) (*Page, error) {
	c, err := s.authorizedConversation(ctx, convID, callerID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultMessagePage
	}
	if limit > maxMessagePage {
		limit = maxMessagePage
	}

	messages, err := s.store.ListMessages(ctx, convID, limit, before)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "list messages", err)
	}

	// Mark incoming as read; a failure here must not fail the page load.
	if _, err := s.store.MarkRead(ctx, convID, callerID); err != nil {
		s.logger.WarnContext(ctx, "mark read failed", "conversation_id", convID, "error", err)
	}

	hydrated := make([]*HydratedMessage, 0, len(messages))
	for _, m := range messages {
		hydrated = append(hydrated, s.hydrateMessage(ctx, m))
	}

	return &Page{
		Conversation: *c,
		Participants: s.hydrateParticipants(ctx, c.ParticipantIDs),
		Messages:     hydrated,
		HasMore:      len(messages) == limit,
	}, nil
}

// Send persists a direct message after re-checking the sender's membership.
func (s *Service) Send(ctx context.Context, convID id.ConversationID, senderID id.UserID, text string) (*HydratedMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "text is required")
	}

	c, err := s.authorizedConversation(ctx, convID, senderID)
	if err != nil {
		return nil, err
	}

	var receiverID id.UserID
	for _, p := range c.ParticipantIDs {
		if p != senderID {
			receiverID = p
			break
		}
	}
	if receiverID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInternal, "receiver not found")
	}

	m := &DirectMessage{
		ID:             id.NewMessageID(),
		ConversationID: convID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Text:           text,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, m); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "append message", err)
	}

	if err := s.store.TouchLastMessage(ctx, convID, m.CreatedAt); err != nil {
		s.logger.WarnContext(ctx, "touch last message failed", "conversation_id", convID, "error", err)
	}

	return s.hydrateMessage(ctx, m), nil
}

// TotalUnread counts every unread message addressed to the user.
func (s *Service) TotalUnread(ctx context.Context, userID id.UserID) (int, error) {
	count, err := s.store.TotalUnread(ctx, userID)
	if err != nil {
		return 0, dErrors.Wrap(dErrors.CodeInternal, "total unread", err)
	}
	return count, nil
}

// MarkRead flags the caller's unread messages in one conversation.
func (s *Service) MarkRead(ctx context.Context, convID id.ConversationID, callerID id.UserID) (int, error) {
	marked, err := s.store.MarkRead(ctx, convID, callerID)
	if err != nil {
		return 0, dErrors.Wrap(dErrors.CodeInternal, "mark read", err)
	}
	return marked, nil
}

// authorizedConversation loads the conversation and enforces membership.
// A missing conversation and a conversation the caller is not part of are
// indistinguishable to the caller (fail closed).
func (s *Service) authorizedConversation(ctx context.Context, convID id.ConversationID, callerID id.UserID) (*Conversation, error) {
	c, err := s.store.FindConversation(ctx, convID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeForbidden, "forbidden")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "find conversation", err)
	}
	if !c.HasParticipant(callerID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "forbidden")
	}
	return c, nil
}

func (s *Service) hydrateParticipants(ctx context.Context, ids []id.UserID) []user.Public {
	result := make([]user.Public, 0, len(ids))
	for _, userID := range ids {
		u, err := s.users.GetByID(ctx, userID)
		if err != nil {
			// Deleted users stay silently absent from the hydrated list.
			continue
		}
		result = append(result, u.ToPublic())
	}
	return result
}

func (s *Service) hydrateMessage(ctx context.Context, m *DirectMessage) *HydratedMessage {
	hydrated := &HydratedMessage{DirectMessage: *m}
	if u, err := s.users.GetByID(ctx, m.SenderID); err == nil {
		hydrated.Sender = u.ToPublic()
	} else {
		hydrated.Sender = user.Public{ID: m.SenderID, Name: "Unknown"}
	}
	return hydrated
}
