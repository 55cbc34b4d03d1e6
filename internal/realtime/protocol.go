package realtime

import (
	"encoding/json"

	id "chatwall/pkg/domain"
	dErrors "chatwall/pkg/domain-errors"
)

// Inbound event names.
const (
	EventJoinRoom      = "join-room"
	EventLeaveRoom     = "leave-room"
	EventWallMessage   = "wall-message"
	EventDirectMessage = "direct-message"
	EventTyping        = "typing"
	EventStopTyping    = "stop-typing"
)

// Outbound event names. Wall and direct messages reuse the inbound names so
// clients handle one vocabulary.
const (
	EventUserTyping     = "user-typing"
	EventUserStopTyping = "user-stopped-typing"
	EventError          = "error"
)

// Envelope is the wire frame: an event name plus its JSON payload.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RoomID identifies a broadcast group: the public wall or one conversation.
// Modelling the wall as just another room keeps a single fan-out path.
type RoomID string

// GlobalRoom is the public wall. Every authenticated connection is a member
// from the moment it registers.
const GlobalRoom RoomID = "global"

// ConversationRoom derives the room for a private conversation.
func ConversationRoom(convID id.ConversationID) RoomID {
	return RoomID("conv:" + convID.String())
}

// ParseRoomID maps a wire identifier to a room. Clients send either the
// literal "global" or a conversation UUID.
func ParseRoomID(raw string) (RoomID, id.ConversationID, error) {
	if raw == string(GlobalRoom) {
		return GlobalRoom, id.ConversationID{}, nil
	}
	convID, err := id.ParseConversationID(raw)
	if err != nil {
		return "", id.ConversationID{}, dErrors.New(dErrors.CodeInvalidInput, "unknown room")
	}
	return ConversationRoom(convID), convID, nil
}

// Identity is the read-only snapshot bound to a connection at handshake time.
type Identity struct {
	ID        id.UserID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
}

// Inbound payloads.

type JoinPayload struct {
	RoomID string `json:"roomId"`
}

type WallPayload struct {
	Text string `json:"text"`
}

// DirectPayload relays an already-persisted message. The message body is
// opaque to the gateway: it is fan-out payload, never a write.
type DirectPayload struct {
	ConversationID string          `json:"conversationId"`
	Message        json.RawMessage `json:"message"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
}

// Outbound payloads.

type UserTypingPayload struct {
	UserID   id.UserID `json:"userId"`
	UserName string    `json:"userName,omitempty"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}
