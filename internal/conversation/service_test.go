package conversation

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatwall/internal/user"
	id "chatwall/pkg/domain"
	dErrors "chatwall/pkg/domain-errors"
	"chatwall/pkg/platform/sentinel"
)

type usersStub struct {
	users map[id.UserID]*user.User
}

func (s *usersStub) GetByID(_ context.Context, userID id.UserID) (*user.User, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return u, nil
}

func (s *usersStub) add(name string) id.UserID {
	userID := id.NewUserID()
	s.users[userID] = &user.User{ID: userID, Name: name, Email: name + "@example.com"}
	return userID
}

func newTestService() (*Service, *usersStub) {
	users := &usersStub{users: make(map[id.UserID]*user.User)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(NewInMemoryStore(), users, logger), users
}

func TestService_CreateOrGet(t *testing.T) {
	ctx := context.Background()
	svc, users := newTestService()
	alice := users.add("alice")
	bob := users.add("bob")

	t.Run("self chat is rejected", func(t *testing.T) {
		_, err := svc.CreateOrGet(ctx, alice, alice)
		require.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("unknown peer is rejected", func(t *testing.T) {
		_, err := svc.CreateOrGet(ctx, alice, id.NewUserID())
		require.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("first contact creates, second returns the same conversation", func(t *testing.T) {
		created, err := svc.CreateOrGet(ctx, alice, bob)
		require.NoError(t, err)
		require.True(t, created.IsNew)
		require.Len(t, created.Participants, 2)

		// Either side asking again lands in the same conversation.
		again, err := svc.CreateOrGet(ctx, bob, alice)
		require.NoError(t, err)
		require.False(t, again.IsNew)
		require.Equal(t, created.Conversation.ID, again.Conversation.ID)
	})
}

func TestService_Send(t *testing.T) {
	ctx := context.Background()
	svc, users := newTestService()
	alice := users.add("alice")
	bob := users.add("bob")
	eve := users.add("eve")

	res, err := svc.CreateOrGet(ctx, alice, bob)
	require.NoError(t, err)
	convID := res.Conversation.ID

	t.Run("blank text is rejected before any store call", func(t *testing.T) {
		_, err := svc.Send(ctx, convID, alice, "   ")
		require.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("non-participant and missing conversation are indistinguishable", func(t *testing.T) {
		_, errOutsider := svc.Send(ctx, convID, eve, "let me in")
		_, errMissing := svc.Send(ctx, id.NewConversationID(), eve, "anyone there")
		require.True(t, dErrors.HasCode(errOutsider, dErrors.CodeForbidden))
		require.True(t, dErrors.HasCode(errMissing, dErrors.CodeForbidden))
		require.Equal(t, errOutsider.Error(), errMissing.Error())
	})

	t.Run("message is persisted with the receiver derived", func(t *testing.T) {
		msg, err := svc.Send(ctx, convID, alice, "  hi bob  ")
		require.NoError(t, err)
		require.Equal(t, "hi bob", msg.Text)
		require.Equal(t, alice, msg.SenderID)
		require.Equal(t, bob, msg.ReceiverID)
		require.Equal(t, "alice", msg.Sender.Name)
		require.False(t, msg.IsRead)
	})
}

func TestService_MessagesAndRead(t *testing.T) {
	ctx := context.Background()
	svc, users := newTestService()
	alice := users.add("alice")
	bob := users.add("bob")

	res, err := svc.CreateOrGet(ctx, alice, bob)
	require.NoError(t, err)
	convID := res.Conversation.ID

	for _, text := range []string{"one", "two", "three"} {
		_, err := svc.Send(ctx, convID, alice, text)
		require.NoError(t, err)
		time.Sleep(time.Millisecond) // distinct CreatedAt for cursor pagination
	}

	unread, err := svc.TotalUnread(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, 3, unread)

	page, err := svc.Messages(ctx, convID, bob, 0, nil)
	require.NoError(t, err)
	require.Len(t, page.Messages, 3)
	require.Equal(t, "one", page.Messages[0].Text, "history is chronological")
	require.False(t, page.HasMore)

	// Loading the page marked bob's incoming messages as read.
	unread, err = svc.TotalUnread(ctx, bob)
	require.NoError(t, err)
	require.Zero(t, unread)

	t.Run("outsider cannot read history", func(t *testing.T) {
		_, err := svc.Messages(ctx, convID, id.NewUserID(), 0, nil)
		require.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("pagination walks backwards through history", func(t *testing.T) {
		page, err := svc.Messages(ctx, convID, bob, 2, nil)
		require.NoError(t, err)
		require.Len(t, page.Messages, 2)
		require.Equal(t, "two", page.Messages[0].Text)
		require.True(t, page.HasMore)

		older, err := svc.Messages(ctx, convID, bob, 2, &page.Messages[0].ID)
		require.NoError(t, err)
		require.Len(t, older.Messages, 1)
		require.Equal(t, "one", older.Messages[0].Text)
	})
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	svc, users := newTestService()
	alice := users.add("alice")
	bob := users.add("bob")
	carol := users.add("carol")

	withBob, err := svc.CreateOrGet(ctx, alice, bob)
	require.NoError(t, err)
	_, err = svc.CreateOrGet(ctx, alice, carol)
	require.NoError(t, err)

	_, err = svc.Send(ctx, withBob.Conversation.ID, bob, "hey alice")
	require.NoError(t, err)

	summaries, err := svc.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// The conversation with the latest message sorts first.
	require.Equal(t, withBob.Conversation.ID, summaries[0].ID)
	require.Equal(t, 1, summaries[0].UnreadCount)
	require.Len(t, summaries[0].Messages, 1)
	require.Equal(t, "hey alice", summaries[0].Messages[0].Text)
	require.Zero(t, summaries[1].UnreadCount)
	require.Empty(t, summaries[1].Messages)
}

func TestService_ParticipantsOf(t *testing.T) {
	ctx := context.Background()
	svc, users := newTestService()
	alice := users.add("alice")
	bob := users.add("bob")

	res, err := svc.CreateOrGet(ctx, alice, bob)
	require.NoError(t, err)

	participants, err := svc.ParticipantsOf(ctx, res.Conversation.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []id.UserID{alice, bob}, participants)

	_, err = svc.ParticipantsOf(ctx, id.NewConversationID())
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}
