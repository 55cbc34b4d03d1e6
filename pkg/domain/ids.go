package domain

import (
	"github.com/google/uuid"

	dErrors "chatwall/pkg/domain-errors"
)

// Typed IDs enforce at compile time that a conversation ID is never passed
// where a user ID is expected. Construct via the Parse functions at trust
// boundaries; direct casting bypasses validation.

type UserID uuid.UUID

type ConversationID uuid.UUID

type MessageID uuid.UUID

// ParseUserID validates and returns a UserID.
// IDs must be valid, non-empty, non-nil UUIDs.
func ParseUserID(s string) (UserID, error) {
	id, err := parseUUID(s)
	if err != nil {
		return UserID{}, err
	}
	return UserID(id), nil
}

// ParseConversationID validates and returns a ConversationID.
func ParseConversationID(s string) (ConversationID, error) {
	id, err := parseUUID(s)
	if err != nil {
		return ConversationID{}, err
	}
	return ConversationID(id), nil
}

// ParseMessageID validates and returns a MessageID.
func ParseMessageID(s string) (MessageID, error) {
	id, err := parseUUID(s)
	if err != nil {
		return MessageID{}, err
	}
	return MessageID(id), nil
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is required")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid id", err)
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "nil id")
	}
	return id, nil
}

// NewUserID generates a fresh user ID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewConversationID generates a fresh conversation ID.
func NewConversationID() ConversationID { return ConversationID(uuid.New()) }

// NewMessageID generates a fresh message ID.
func NewMessageID() MessageID { return MessageID(uuid.New()) }

func (id UserID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id ConversationID) String() string { return uuid.UUID(id).String() }

func (id ConversationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id MessageID) String() string { return uuid.UUID(id).String() }

func (id MessageID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// MarshalText lets typed IDs serialize as plain UUID strings in JSON.
func (id UserID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id ConversationID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ConversationID) UnmarshalText(b []byte) error {
	parsed, err := ParseConversationID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id MessageID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *MessageID) UnmarshalText(b []byte) error {
	parsed, err := ParseMessageID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
