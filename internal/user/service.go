package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	id "chatwall/pkg/domain"
	dErrors "chatwall/pkg/domain-errors"
	"chatwall/pkg/platform/sentinel"
)

const searchLimit = 20

// Service exposes the user directory: point lookups, email-prefix search,
// profile edits, and find-or-create for the OAuth callback.
type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// GetByID returns a user by id.
func (s *Service) GetByID(ctx context.Context, userID id.UserID) (*User, error) {
	u, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "lookup user", err)
	}
	return u, nil
}

// Search finds users whose email starts with the given prefix.
func (s *Service) Search(ctx context.Context, prefix string) ([]*User, error) {
	if prefix == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "search query is required")
	}
	users, err := s.store.SearchByEmailPrefix(ctx, prefix, searchLimit)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "search users", err)
	}
	return users, nil
}

// ProfileUpdate carries the editable profile fields. Nil means unchanged.
type ProfileUpdate struct {
	Bio       *string
	AvatarURL *string
}

// UpdateProfile applies a validated profile edit for the given user.
// Validation happens at the handler; this re-checks the length invariant.
func (s *Service) UpdateProfile(ctx context.Context, userID id.UserID, update ProfileUpdate) (*User, error) {
	u, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if update.Bio != nil {
		if len(*update.Bio) > 300 {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "bio exceeds 300 characters")
		}
		u.Bio = *update.Bio
	}
	if update.AvatarURL != nil {
		u.AvatarURL = *update.AvatarURL
	}

	if err := s.store.Update(ctx, u); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "update user", err)
	}
	return u, nil
}

// FindOrCreateByGoogle resolves the OAuth profile to a directory user,
// creating one on first login.
func (s *Service) FindOrCreateByGoogle(ctx context.Context, profile GoogleProfile) (*User, error) {
	if profile.Sub == "" || profile.Email == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "incomplete google profile")
	}

	existing, err := s.store.FindByGoogleID(ctx, profile.Sub)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "lookup google user", err)
	}

	u := &User{
		ID:        id.NewUserID(),
		GoogleID:  profile.Sub,
		Email:     profile.Email,
		Name:      profile.Name,
		AvatarURL: profile.Picture,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, fmt.Sprintf("create user %s", u.Email), err)
	}

	s.logger.InfoContext(ctx, "user created", "user_id", u.ID, "email", u.Email)
	return u, nil
}
