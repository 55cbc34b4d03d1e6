package wall

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	id "chatwall/pkg/domain"
)

// PostgresStore persists wall messages in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgreSQL-backed wall store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, m *Message) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO wall_messages (id, user_id, text, created_at)
		 VALUES ($1, $2, $3, $4)`,
		m.ID.String(), m.UserID.String(), m.Text, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert wall message: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, text, created_at FROM wall_messages ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list wall messages: %w", err)
	}
	defer rows.Close()

	var result []*Message
	for rows.Next() {
		var m Message
		var rawID, rawUser string
		if err := rows.Scan(&rawID, &rawUser, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan wall message: %w", err)
		}
		if m.ID, err = id.ParseMessageID(rawID); err != nil {
			return nil, fmt.Errorf("scan wall message: %w", err)
		}
		if m.UserID, err = id.ParseUserID(rawUser); err != nil {
			return nil, fmt.Errorf("scan wall message: %w", err)
		}
		result = append(result, &m)
	}
	return result, rows.Err()
}
