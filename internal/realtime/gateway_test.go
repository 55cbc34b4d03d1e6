package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatwall/internal/user"
	"chatwall/internal/wall"
	id "chatwall/pkg/domain"
	dErrors "chatwall/pkg/domain-errors"
)

type accessKey struct {
	user id.UserID
	conv id.ConversationID
}

type fakeAuthorizer struct {
	allowed map[accessKey]bool
	calls   int
}

func (a *fakeAuthorizer) Authorize(_ context.Context, userID id.UserID, convID id.ConversationID) bool {
	a.calls++
	return a.allowed[accessKey{userID, convID}]
}

func (a *fakeAuthorizer) allow(userID id.UserID, convID id.ConversationID) {
	if a.allowed == nil {
		a.allowed = make(map[accessKey]bool)
	}
	a.allowed[accessKey{userID, convID}] = true
}

type fakeWall struct {
	err   error
	calls int
}

func (w *fakeWall) Append(_ context.Context, senderID id.UserID, text string) (*wall.HydratedMessage, error) {
	w.calls++
	if w.err != nil {
		return nil, w.err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "text is required")
	}
	return &wall.HydratedMessage{
		Message: wall.Message{
			ID:        id.NewMessageID(),
			UserID:    senderID,
			Text:      text,
			CreatedAt: time.Now().UTC(),
		},
		User: user.Public{ID: senderID, Name: "tester"},
	}, nil
}

type fakeVerifier struct {
	identities map[string]Identity
}

func (v *fakeVerifier) Verify(_ context.Context, credential string) (Identity, error) {
	identity, ok := v.identities[credential]
	if !ok {
		return Identity{}, errors.New("invalid token")
	}
	return identity, nil
}

func newTestGateway(cache Authorizer, wallSvc Wall, verifier Verifier) *Gateway {
	if cache == nil {
		cache = &fakeAuthorizer{}
	}
	if wallSvc == nil {
		wallSvc = &fakeWall{}
	}
	if verifier == nil {
		verifier = &fakeVerifier{}
	}
	return NewGateway(NewRegistry(), cache, verifier, wallSvc, "http://localhost:5173", testLogger(), testMetrics())
}

// connect registers a client the way a completed handshake would.
func connect(g *Gateway, identity Identity) *Client {
	c := newClient(identity, nil)
	g.registry.Register(c)
	g.metrics.SocketConnections.Inc()
	return c
}

// recv drains one frame from the client's outbound buffer. Dispatch is
// synchronous, so anything broadcast is already queued.
func recv(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case frame := <-c.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	default:
		t.Fatal("expected a frame, outbound buffer is empty")
		return Envelope{}
	}
}

func requireNoFrames(t *testing.T, c *Client) {
	t.Helper()
	select {
	case frame := <-c.send:
		t.Fatalf("expected no frames, got %s", frame)
	default:
	}
}

func event(name string, payload any) Envelope {
	raw, _ := json.Marshal(payload)
	return Envelope{Event: name, Payload: raw}
}

func TestGateway_HandshakeRejectsBadCredentials(t *testing.T) {
	identity := Identity{ID: id.NewUserID(), Name: "alice"}
	g := newTestGateway(nil, nil, &fakeVerifier{identities: map[string]Identity{"good-token": identity}})

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		rec := httptest.NewRecorder()
		g.HandleWS(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Zero(t, g.registry.Count())
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws?token=forged", nil)
		rec := httptest.NewRecorder()
		g.HandleWS(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Zero(t, g.registry.Count())
	})

	t.Run("cookie credential is accepted for verification", func(t *testing.T) {
		// A valid cookie still fails at the upgrade in this test setup,
		// but it must get past the credential check.
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.AddCookie(&http.Cookie{Name: "auth_token", Value: "forged"})
		rec := httptest.NewRecorder()
		g.HandleWS(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestGateway_WallMessagePersistsThenBroadcasts(t *testing.T) {
	wallSvc := &fakeWall{}
	g := newTestGateway(nil, wallSvc, nil)

	sender := connect(g, Identity{ID: id.NewUserID(), Name: "alice"})
	peer := connect(g, Identity{ID: id.NewUserID(), Name: "bob"})

	g.dispatch(sender, event(EventWallMessage, WallPayload{Text: "hello wall"}))

	require.Equal(t, 1, wallSvc.calls)
	for _, c := range []*Client{sender, peer} {
		env := recv(t, c)
		require.Equal(t, EventWallMessage, env.Event)
		var msg wall.HydratedMessage
		require.NoError(t, json.Unmarshal(env.Payload, &msg))
		require.Equal(t, "hello wall", msg.Text)
		require.Equal(t, sender.identity.ID, msg.UserID)
		require.False(t, msg.ID.IsNil(), "clients must see the stored record")
		requireNoFrames(t, c)
	}
}

func TestGateway_WallMessageBlankText(t *testing.T) {
	wallSvc := &fakeWall{}
	g := newTestGateway(nil, wallSvc, nil)

	sender := connect(g, Identity{ID: id.NewUserID()})
	peer := connect(g, Identity{ID: id.NewUserID()})

	g.dispatch(sender, event(EventWallMessage, WallPayload{Text: "   \n\t"}))

	env := recv(t, sender)
	require.Equal(t, EventError, env.Event)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	require.Equal(t, "text is required", p.Error)
	requireNoFrames(t, peer)
}

func TestGateway_WallMessagePersistFailure(t *testing.T) {
	wallSvc := &fakeWall{err: errors.New("db down")}
	g := newTestGateway(nil, wallSvc, nil)

	sender := connect(g, Identity{ID: id.NewUserID()})
	peer := connect(g, Identity{ID: id.NewUserID()})

	g.dispatch(sender, event(EventWallMessage, WallPayload{Text: "lost"}))

	env := recv(t, sender)
	require.Equal(t, EventError, env.Event)
	requireNoFrames(t, peer)
}

func TestGateway_JoinRoomAuthorization(t *testing.T) {
	convID := id.NewConversationID()
	cache := &fakeAuthorizer{}
	g := newTestGateway(cache, nil, nil)

	member := connect(g, Identity{ID: id.NewUserID(), Name: "alice"})
	outsider := connect(g, Identity{ID: id.NewUserID(), Name: "eve"})
	cache.allow(member.identity.ID, convID)

	g.dispatch(member, event(EventJoinRoom, JoinPayload{RoomID: convID.String()}))
	g.dispatch(outsider, event(EventJoinRoom, JoinPayload{RoomID: convID.String()}))

	room := ConversationRoom(convID)
	require.True(t, g.registry.InRoom(member, room))
	require.False(t, g.registry.InRoom(outsider, room))

	// The denial is silent; the outsider cannot probe for conversations.
	requireNoFrames(t, outsider)

	// A join for a room that is not a conversation UUID is dropped.
	g.dispatch(member, event(EventJoinRoom, JoinPayload{RoomID: "not-a-room"}))
	require.Len(t, g.registry.MembersOf(room), 1)
}

func TestGateway_DirectMessageRequiresFreshAccess(t *testing.T) {
	convID := id.NewConversationID()
	cache := &fakeAuthorizer{}
	g := newTestGateway(cache, nil, nil)

	alice := connect(g, Identity{ID: id.NewUserID(), Name: "alice"})
	bob := connect(g, Identity{ID: id.NewUserID(), Name: "bob"})
	eve := connect(g, Identity{ID: id.NewUserID(), Name: "eve"})

	cache.allow(alice.identity.ID, convID)
	cache.allow(bob.identity.ID, convID)

	room := ConversationRoom(convID)
	g.dispatch(alice, event(EventJoinRoom, JoinPayload{RoomID: convID.String()}))
	g.dispatch(bob, event(EventJoinRoom, JoinPayload{RoomID: convID.String()}))

	// Eve got into the room before her access was revoked.
	g.registry.JoinRoom(eve, room)

	payload := DirectPayload{
		ConversationID: convID.String(),
		Message:        json.RawMessage(`{"text":"hi bob"}`),
	}

	t.Run("relay re-checks sender access", func(t *testing.T) {
		g.dispatch(eve, event(EventDirectMessage, payload))

		env := recv(t, eve)
		require.Equal(t, EventError, env.Event)
		requireNoFrames(t, alice)
		requireNoFrames(t, bob)
	})

	t.Run("authorized relay excludes the sender", func(t *testing.T) {
		g.dispatch(alice, event(EventDirectMessage, payload))

		env := recv(t, bob)
		require.Equal(t, EventDirectMessage, env.Event)
		var relayed DirectPayload
		require.NoError(t, json.Unmarshal(env.Payload, &relayed))
		require.Equal(t, convID.String(), relayed.ConversationID)
		require.JSONEq(t, `{"text":"hi bob"}`, string(relayed.Message))

		requireNoFrames(t, alice)
		requireNoFrames(t, bob)
	})
}

func TestGateway_RoomIsolation(t *testing.T) {
	convA := id.NewConversationID()
	convB := id.NewConversationID()
	cache := &fakeAuthorizer{}
	g := newTestGateway(cache, nil, nil)

	alice := connect(g, Identity{ID: id.NewUserID()})
	bob := connect(g, Identity{ID: id.NewUserID()})
	carol := connect(g, Identity{ID: id.NewUserID()})

	cache.allow(alice.identity.ID, convA)
	cache.allow(bob.identity.ID, convA)
	cache.allow(carol.identity.ID, convB)

	g.dispatch(alice, event(EventJoinRoom, JoinPayload{RoomID: convA.String()}))
	g.dispatch(bob, event(EventJoinRoom, JoinPayload{RoomID: convA.String()}))
	g.dispatch(carol, event(EventJoinRoom, JoinPayload{RoomID: convB.String()}))

	g.dispatch(alice, event(EventDirectMessage, DirectPayload{
		ConversationID: convA.String(),
		Message:        json.RawMessage(`{"text":"private"}`),
	}))

	env := recv(t, bob)
	require.Equal(t, EventDirectMessage, env.Event)
	requireNoFrames(t, carol)
}

func TestGateway_TypingIndicators(t *testing.T) {
	convID := id.NewConversationID()
	cache := &fakeAuthorizer{}
	g := newTestGateway(cache, nil, nil)

	alice := connect(g, Identity{ID: id.NewUserID(), Name: "alice"})
	bob := connect(g, Identity{ID: id.NewUserID(), Name: "bob"})
	cache.allow(alice.identity.ID, convID)
	cache.allow(bob.identity.ID, convID)

	g.dispatch(alice, event(EventJoinRoom, JoinPayload{RoomID: convID.String()}))
	g.dispatch(bob, event(EventJoinRoom, JoinPayload{RoomID: convID.String()}))

	g.dispatch(alice, event(EventTyping, TypingPayload{ConversationID: convID.String()}))

	env := recv(t, bob)
	require.Equal(t, EventUserTyping, env.Event)
	var p UserTypingPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	require.Equal(t, alice.identity.ID, p.UserID)
	require.Equal(t, "alice", p.UserName)
	requireNoFrames(t, alice)

	g.dispatch(alice, event(EventStopTyping, TypingPayload{ConversationID: convID.String()}))
	env = recv(t, bob)
	require.Equal(t, EventUserStopTyping, env.Event)
}

func TestGateway_TypingDroppedUnderBackpressure(t *testing.T) {
	convID := id.NewConversationID()
	cache := &fakeAuthorizer{}
	g := newTestGateway(cache, nil, nil)

	alice := connect(g, Identity{ID: id.NewUserID(), Name: "alice"})
	slow := connect(g, Identity{ID: id.NewUserID(), Name: "slow"})
	cache.allow(alice.identity.ID, convID)
	cache.allow(slow.identity.ID, convID)

	g.dispatch(alice, event(EventJoinRoom, JoinPayload{RoomID: convID.String()}))
	g.dispatch(slow, event(EventJoinRoom, JoinPayload{RoomID: convID.String()}))

	for i := 0; i < sendBuffer; i++ {
		slow.send <- []byte(fmt.Sprintf("backlog-%d", i))
	}

	g.dispatch(alice, event(EventTyping, TypingPayload{ConversationID: convID.String()}))

	// The ephemeral indicator is skipped; the connection stays up.
	require.Equal(t, 2, g.registry.Count())
	require.Len(t, slow.send, sendBuffer)
}

func TestGateway_FullBufferDisconnectsOnMessageFanOut(t *testing.T) {
	g := newTestGateway(nil, &fakeWall{}, nil)

	alice := connect(g, Identity{ID: id.NewUserID(), Name: "alice"})
	dead := connect(g, Identity{ID: id.NewUserID(), Name: "dead"})

	for i := 0; i < sendBuffer; i++ {
		dead.send <- []byte("backlog")
	}

	g.dispatch(alice, event(EventWallMessage, WallPayload{Text: "hello"}))

	require.Equal(t, 1, g.registry.Count(), "stalled connection is torn down")
	env := recv(t, alice)
	require.Equal(t, EventWallMessage, env.Event)
}

// Broadcasts run in other connections' goroutines and can overlap teardown
// of a member they are about to deliver to. A disconnect concurrent with
// fan-out must never take the process down or affect the remaining members.
func TestGateway_BroadcastDuringDisconnect(t *testing.T) {
	g := newTestGateway(nil, &fakeWall{}, nil)

	sender := connect(g, Identity{ID: id.NewUserID(), Name: "sender"})
	members := make([]*Client, 200)
	for i := range members {
		members[i] = connect(g, Identity{ID: id.NewUserID()})
	}
	survivor := connect(g, Identity{ID: id.NewUserID(), Name: "survivor"})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			g.dispatch(sender, event(EventWallMessage, WallPayload{Text: "burst"}))
		}
	}()
	go func() {
		defer wg.Done()
		for _, m := range members {
			g.disconnect(m)
		}
	}()
	wg.Wait()

	require.Equal(t, 2, g.registry.Count(), "sender and survivor remain")

	// Drain the survivor: it must only ever have received wall messages,
	// and a fresh broadcast still reaches it.
	for len(survivor.send) > 0 {
		env := recv(t, survivor)
		require.Equal(t, EventWallMessage, env.Event)
	}
	g.dispatch(sender, event(EventWallMessage, WallPayload{Text: "after the churn"}))
	env := recv(t, survivor)
	require.Equal(t, EventWallMessage, env.Event)

	// Disconnecting twice stays a no-op.
	g.disconnect(members[0])
	require.Equal(t, 2, g.registry.Count())
}

func TestGateway_UnknownEventDropped(t *testing.T) {
	g := newTestGateway(nil, nil, nil)
	c := connect(g, Identity{ID: id.NewUserID()})

	g.dispatch(c, Envelope{Event: "shutdown", Payload: json.RawMessage(`{}`)})
	requireNoFrames(t, c)
}
