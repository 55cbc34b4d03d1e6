package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	id "chatwall/pkg/domain"
	"chatwall/pkg/platform/sentinel"
)

// PostgresStore persists users in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgreSQL-backed user store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const userColumns = `id, google_id, email, name, avatar_url, bio, created_at`

func (s *PostgresStore) Create(ctx context.Context, u *User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, google_id, email, name, avatar_url, bio, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID.String(), u.GoogleID, u.Email, u.Name, u.AvatarURL, u.Bio, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, userID.String())
	return scanUser(row, fmt.Sprintf("user %s", userID))
}

func (s *PostgresStore) FindByGoogleID(ctx context.Context, googleID string) (*User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE google_id = $1`, googleID)
	return scanUser(row, "user by google id")
}

func (s *PostgresStore) SearchByEmailPrefix(ctx context.Context, prefix string, limit int) ([]*User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE lower(email) LIKE lower($1) || '%'
		 ORDER BY email
		 LIMIT $2`, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows, "user row")
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, u *User) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET email = $2, name = $3, avatar_url = $4, bio = $5 WHERE id = $1`,
		u.ID.String(), u.Email, u.Name, u.AvatarURL, u.Bio)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", u.ID, sentinel.ErrNotFound)
	}
	return nil
}

func scanUser(row pgx.Row, what string) (*User, error) {
	var u User
	var rawID string
	err := row.Scan(&rawID, &u.GoogleID, &u.Email, &u.Name, &u.AvatarURL, &u.Bio, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", what, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan %s: %w", what, err)
	}
	u.ID, err = id.ParseUserID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", what, err)
	}
	return &u, nil
}
