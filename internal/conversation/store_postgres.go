package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	id "chatwall/pkg/domain"
	"chatwall/pkg/platform/sentinel"
)

// PostgresStore persists conversations and direct messages in PostgreSQL.
// participant_ids is a uuid[] column; membership checks use array containment.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgreSQL-backed conversation store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateConversation(ctx context.Context, c *Conversation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, participant_ids, created_at, last_message_at)
		 VALUES ($1, $2, $3, $4)`,
		c.ID.String(), participantStrings(c.ParticipantIDs), c.CreatedAt, c.LastMessageAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindConversation(ctx context.Context, convID id.ConversationID) (*Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, participant_ids, created_at, last_message_at
		 FROM conversations WHERE id = $1`, convID.String())
	return scanConversation(row, fmt.Sprintf("conversation %s", convID))
}

func (s *PostgresStore) FindBetween(ctx context.Context, a, b id.UserID) (*Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, participant_ids, created_at, last_message_at
		 FROM conversations
		 WHERE participant_ids @> ARRAY[$1::uuid, $2::uuid]
		 LIMIT 1`, a.String(), b.String())
	return scanConversation(row, "conversation between users")
}

func (s *PostgresStore) ListForUser(ctx context.Context, userID id.UserID, limit int) ([]*Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, participant_ids, created_at, last_message_at
		 FROM conversations
		 WHERE participant_ids @> ARRAY[$1::uuid]
		 ORDER BY last_message_at DESC
		 LIMIT $2`, userID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var result []*Conversation
	for rows.Next() {
		c, err := scanConversation(rows, "conversation row")
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *PostgresStore) TouchLastMessage(ctx context.Context, convID id.ConversationID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET last_message_at = $2 WHERE id = $1`,
		convID.String(), at)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", convID, sentinel.ErrNotFound)
	}
	return nil
}

const messageColumns = `id, conversation_id, sender_id, receiver_id, text, is_read, read_at, created_at`

func (s *PostgresStore) AppendMessage(ctx context.Context, m *DirectMessage) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO direct_messages (id, conversation_id, sender_id, receiver_id, text, is_read, read_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID.String(), m.ConversationID.String(), m.SenderID.String(), m.ReceiverID.String(),
		m.Text, m.IsRead, m.ReadAt, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert direct message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, convID id.ConversationID, limit int, before *id.MessageID) ([]*DirectMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM direct_messages WHERE conversation_id = $1`
	args := []any{convID.String()}
	if before != nil {
		query += ` AND created_at < (SELECT created_at FROM direct_messages WHERE id = $2)`
		args = append(args, before.String())
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var result []*DirectMessage
	for rows.Next() {
		m, err := scanMessage(rows, "message row")
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// newest-first from the query; flip to chronological order
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}

func (s *PostgresStore) LastMessage(ctx context.Context, convID id.ConversationID) (*DirectMessage, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM direct_messages
		 WHERE conversation_id = $1
		 ORDER BY created_at DESC LIMIT 1`, convID.String())
	return scanMessage(row, fmt.Sprintf("last message of %s", convID))
}

func (s *PostgresStore) UnreadCount(ctx context.Context, convID id.ConversationID, receiverID id.UserID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM direct_messages
		 WHERE conversation_id = $1 AND receiver_id = $2 AND NOT is_read`,
		convID.String(), receiverID.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) TotalUnread(ctx context.Context, receiverID id.UserID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM direct_messages
		 WHERE receiver_id = $1 AND NOT is_read`, receiverID.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("total unread: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) MarkRead(ctx context.Context, convID id.ConversationID, receiverID id.UserID) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE direct_messages SET is_read = TRUE, read_at = now()
		 WHERE conversation_id = $1 AND receiver_id = $2 AND NOT is_read`,
		convID.String(), receiverID.String())
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func participantStrings(ids []id.UserID) []string {
	out := make([]string, len(ids))
	for i, p := range ids {
		out[i] = p.String()
	}
	return out
}

func scanConversation(row pgx.Row, what string) (*Conversation, error) {
	var c Conversation
	var rawID string
	var rawParticipants []string
	err := row.Scan(&rawID, &rawParticipants, &c.CreatedAt, &c.LastMessageAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", what, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan %s: %w", what, err)
	}
	if c.ID, err = id.ParseConversationID(rawID); err != nil {
		return nil, fmt.Errorf("scan %s: %w", what, err)
	}
	for _, raw := range rawParticipants {
		p, err := id.ParseUserID(raw)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		c.ParticipantIDs = append(c.ParticipantIDs, p)
	}
	return &c, nil
}

func scanMessage(row pgx.Row, what string) (*DirectMessage, error) {
	var m DirectMessage
	var rawID, rawConv, rawSender, rawReceiver string
	err := row.Scan(&rawID, &rawConv, &rawSender, &rawReceiver, &m.Text, &m.IsRead, &m.ReadAt, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", what, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan %s: %w", what, err)
	}
	if m.ID, err = id.ParseMessageID(rawID); err != nil {
		return nil, fmt.Errorf("scan %s: %w", what, err)
	}
	if m.ConversationID, err = id.ParseConversationID(rawConv); err != nil {
		return nil, fmt.Errorf("scan %s: %w", what, err)
	}
	if m.SenderID, err = id.ParseUserID(rawSender); err != nil {
		return nil, fmt.Errorf("scan %s: %w", what, err)
	}
	if m.ReceiverID, err = id.ParseUserID(rawReceiver); err != nil {
		return nil, fmt.Errorf("scan %s: %w", what, err)
	}
	return &m, nil
}
