package user

import (
	"context"

	id "chatwall/pkg/domain"
)

// Error Contract:
// All store methods follow this pattern:
// - Return sentinel.ErrNotFound (wrapped) when the requested entity does not exist
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures
type Store interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, userID id.UserID) (*User, error)
	FindByGoogleID(ctx context.Context, googleID string) (*User, error)
	SearchByEmailPrefix(ctx context.Context, prefix string, limit int) ([]*User, error)
	Update(ctx context.Context, u *User) error
}
