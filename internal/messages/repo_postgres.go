package messages

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo reads stored message templates from Postgres.
//
// Assumed table:
//
//	messages (
//	  id UUID PRIMARY KEY,
//	  name TEXT NOT NULL,
//	  body TEXT NOT NULL,
//	  channel TEXT NOT NULL DEFAULT 'voice',
//	  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Get(ctx context.Context, id string) (Message, error) {
	const q = `
SELECT id, name, body, channel, created_at
FROM messages
WHERE id = $1
`
	var m Message
	err := r.db.QueryRowContext(ctx, q, id).Scan(&m.ID, &m.Name, &m.Body, &m.Channel, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, err
	}
	return m, nil
}
