package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"chatwall/internal/platform/metrics"
	"chatwall/internal/platform/middleware"
	"chatwall/internal/transport/http/shared"
	"chatwall/internal/wall"
	id "chatwall/pkg/domain"
	dErrors "chatwall/pkg/domain-errors"
)

// eventTimeout bounds the persistence and directory work a single socket
// event may do.
const eventTimeout = 5 * time.Second

// Verifier turns a raw credential into a connection identity.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

// Wall persists public messages and returns them ready for fan-out.
type Wall interface {
	Append(ctx context.Context, senderID id.UserID, text string) (*wall.HydratedMessage, error)
}

// Gateway owns the websocket endpoint: it authenticates handshakes, keeps
// the registry current, and routes events between clients.
type Gateway struct {
	registry *Registry
	cache    Authorizer
	verifier Verifier
	wall     Wall
	logger   *slog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

func NewGateway(registry *Registry, cache Authorizer, verifier Verifier, wallSvc Wall, allowedOrigin string, logger *slog.Logger, m *metrics.Metrics) *Gateway {
	return &Gateway{
		registry: registry,
		cache:    cache,
		verifier: verifier,
		wall:     wallSvc,
		logger:   logger,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigin),
		},
	}
}

func originChecker(allowed string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if strings.EqualFold(origin, allowed) {
			return true
		}
		// Same-host requests (e.g. served frontend) are always fine.
		return strings.EqualFold(origin, "http://"+r.Host) || strings.EqualFold(origin, "https://"+r.Host)
	}
}

// HandleWS upgrades GET /ws. The credential comes from the token query
// parameter or, failing that, the auth cookie; an invalid or missing
// credential is rejected before the upgrade so no unauthenticated connection
// ever reaches the registry.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	credential := r.URL.Query().Get("token")
	if credential == "" {
		credential, _ = middleware.TokenFromRequest(r)
	}
	if credential == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing credentials"))
		return
	}

	identity, err := g.verifier.Verify(r.Context(), credential)
	if err != nil {
		g.logger.Debug("socket handshake rejected", "error", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials"))
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(identity, conn)
	g.registry.Register(c)
	g.metrics.SocketConnections.Inc()
	g.logger.Info("socket connected", "user_id", identity.ID, "connection_id", c.id)

	go c.writePump(g.logger)
	go c.readPump(g)
}

// disconnect tears a connection down exactly once, no matter how many paths
// race to it (read error, dead outbound buffer, server shutdown). The send
// channel stays open; broadcasters racing teardown observe done instead.
func (g *Gateway) disconnect(c *Client) {
	c.closeOnce.Do(func() {
		g.registry.Unregister(c)
		close(c.done)
		g.metrics.SocketConnections.Dec()
		g.logger.Info("socket disconnected", "user_id", c.identity.ID, "connection_id", c.id)
	})
}

func (g *Gateway) dispatch(c *Client, env Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch env.Event {
	case EventJoinRoom:
		g.handleJoin(ctx, c, env.Payload)
	case EventLeaveRoom:
		g.handleLeave(c, env.Payload)
	case EventWallMessage:
		g.handleWall(ctx, c, env.Payload)
	case EventDirectMessage:
		g.handleDirect(ctx, c, env.Payload)
	case EventTyping:
		g.handleTyping(ctx, c, env.Payload, EventUserTyping)
	case EventStopTyping:
		g.handleTyping(ctx, c, env.Payload, EventUserStopTyping)
	default:
		g.metrics.RejectedEvents.WithLabelValues("unknown_event").Inc()
		g.logger.Debug("unknown event dropped", "event", env.Event, "user_id", c.identity.ID)
	}
}

// handleJoin places the client in a room. Denials are silent: the requester
// learns nothing about whether the conversation exists.
func (g *Gateway) handleJoin(ctx context.Context, c *Client, raw json.RawMessage) {
	var p JoinPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		g.metrics.RejectedEvents.WithLabelValues("malformed").Inc()
		return
	}
	room, convID, err := ParseRoomID(p.RoomID)
	if err != nil {
		g.metrics.RejectedEvents.WithLabelValues("malformed").Inc()
		return
	}
	if room != GlobalRoom && !g.cache.Authorize(ctx, c.identity.ID, convID) {
		g.metrics.RejectedEvents.WithLabelValues("forbidden").Inc()
		g.logger.Warn("join denied", "user_id", c.identity.ID, "room", room)
		return
	}
	g.registry.JoinRoom(c, room)
}

func (g *Gateway) handleLeave(c *Client, raw json.RawMessage) {
	var p JoinPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	room, _, err := ParseRoomID(p.RoomID)
	if err != nil {
		return
	}
	// Leaving the global room is allowed; it only mutes the wall feed.
	g.registry.LeaveRoom(c, room)
}

// handleWall persists the message first, then fans the stored record out to
// the whole global room, sender included. Clients render only what came back
// from the server, so everyone sees the same ID and timestamp.
func (g *Gateway) handleWall(ctx context.Context, c *Client, raw json.RawMessage) {
	var p WallPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		g.metrics.RejectedEvents.WithLabelValues("malformed").Inc()
		return
	}

	start := time.Now()
	msg, err := g.wall.Append(ctx, c.identity.ID, p.Text)
	g.metrics.PersistDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			g.metrics.RejectedEvents.WithLabelValues("invalid").Inc()
			g.sendError(c, "text is required")
			return
		}
		g.metrics.RejectedEvents.WithLabelValues("persist_failed").Inc()
		g.sendError(c, "message could not be saved")
		return
	}

	g.broadcast(GlobalRoom, nil, EventWallMessage, msg, false)
}

// handleDirect relays an already-persisted conversation message to the other
// participants. Membership is re-checked against the cache on every relay;
// being in the room is not enough.
func (g *Gateway) handleDirect(ctx context.Context, c *Client, raw json.RawMessage) {
	var p DirectPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		g.metrics.RejectedEvents.WithLabelValues("malformed").Inc()
		return
	}
	convID, err := id.ParseConversationID(p.ConversationID)
	if err != nil {
		g.metrics.RejectedEvents.WithLabelValues("malformed").Inc()
		return
	}
	if !g.cache.Authorize(ctx, c.identity.ID, convID) {
		g.metrics.RejectedEvents.WithLabelValues("forbidden").Inc()
		g.logger.Warn("direct message relay denied", "user_id", c.identity.ID, "conversation_id", convID)
		g.sendError(c, "not a participant of this conversation")
		return
	}

	g.broadcastRaw(ConversationRoom(convID), c, EventDirectMessage, raw, false)
}

// handleTyping relays a typing indicator to the conversation room. These are
// ephemeral: under backpressure they are dropped rather than queued.
func (g *Gateway) handleTyping(ctx context.Context, c *Client, raw json.RawMessage, outEvent string) {
	var p TypingPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	convID, err := id.ParseConversationID(p.ConversationID)
	if err != nil {
		return
	}
	if !g.cache.Authorize(ctx, c.identity.ID, convID) {
		g.metrics.RejectedEvents.WithLabelValues("forbidden").Inc()
		return
	}

	out := UserTypingPayload{UserID: c.identity.ID, UserName: c.identity.Name}
	g.broadcast(ConversationRoom(convID), c, outEvent, out, true)
}

// broadcast marshals the envelope once and delivers it to every room member
// except the sender (pass nil to include the sender). When droppable is
// false, a member whose outbound buffer is full is treated as dead and torn
// down so the rest of the room is never stalled behind it.
func (g *Gateway) broadcast(room RoomID, except *Client, event string, payload any, droppable bool) {
	body, err := json.Marshal(payload)
	if err != nil {
		g.logger.Error("broadcast payload marshal failed", "event", event, "error", err)
		return
	}
	g.broadcastRaw(room, except, event, body, droppable)
}

func (g *Gateway) broadcastRaw(room RoomID, except *Client, event string, payload json.RawMessage, droppable bool) {
	frame, err := json.Marshal(Envelope{Event: event, Payload: payload})
	if err != nil {
		g.logger.Error("broadcast frame marshal failed", "event", event, "error", err)
		return
	}
	for _, member := range g.registry.MembersOf(room) {
		if except != nil && member.id == except.id {
			continue
		}
		select {
		case <-member.done:
			// Torn down after the membership snapshot; nothing to deliver.
		case member.send <- frame:
			g.metrics.MessagesFannedOut.WithLabelValues(event).Inc()
		default:
			if droppable {
				continue
			}
			g.logger.Warn("outbound buffer full, dropping connection", "user_id", member.identity.ID, "connection_id", member.id)
			g.disconnect(member)
		}
	}
}

// sendError delivers a private error event to one client, best effort.
func (g *Gateway) sendError(c *Client, msg string) {
	body, _ := json.Marshal(ErrorPayload{Error: msg})
	frame, _ := json.Marshal(Envelope{Event: EventError, Payload: body})
	select {
	case <-c.done:
	case c.send <- frame:
	default:
	}
}
