package wall

import "context"

// Store is the durable log of public wall messages.
//
// Error Contract: same as every store in this repo — sentinel.ErrNotFound for
// missing entities, wrapped infrastructure errors otherwise.
type Store interface {
	Append(ctx context.Context, m *Message) error
	// List returns messages in chronological order.
	List(ctx context.Context) ([]*Message, error)
}
