package realtime

import (
	"context"

	"chatwall/internal/user"
	id "chatwall/pkg/domain"
)

// UserSource loads the profile snapshot bound to a new connection.
type UserSource interface {
	GetByID(ctx context.Context, userID id.UserID) (*user.User, error)
}

// TokenParser extracts the authenticated user from a raw credential.
type TokenParser interface {
	ExtractUserID(token string) (id.UserID, error)
}

// identityVerifier verifies a credential and resolves it to a live user.
// A valid token for a deleted user is still a rejection.
type identityVerifier struct {
	tokens TokenParser
	users  UserSource
}

func NewIdentityVerifier(tokens TokenParser, users UserSource) Verifier {
	return &identityVerifier{tokens: tokens, users: users}
}

func (v *identityVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	userID, err := v.tokens.ExtractUserID(credential)
	if err != nil {
		return Identity{}, err
	}
	u, err := v.users.GetByID(ctx, userID)
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
	}, nil
}
