package runs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// PostgresStore persists runs in Postgres.
//
// Assumed table:
//
//	runs (
//	  id UUID PRIMARY KEY,
//	  snapshot_id UUID,
//	  message_id UUID,
//	  group_id UUID,
//	  channel TEXT NOT NULL,
//	  gather_digit BOOLEAN NOT NULL DEFAULT FALSE,
//	  custom_data JSONB,
//	  status TEXT NOT NULL,
//	  total INT NOT NULL DEFAULT 0,
//	  completed INT NOT NULL DEFAULT 0,
//	  answered INT NOT NULL DEFAULT 0,
//	  started_at TIMESTAMPTZ NOT NULL,
//	  completed_at TIMESTAMPTZ
//	)
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Create(ctx context.Context, r Run) error {
	custom, err := marshalCustom(r.CustomData)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO runs (
  id, snapshot_id, message_id, group_id, channel, gather_digit,
  custom_data, status, total, completed, answered, started_at, completed_at
) VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13)
`
	_, err = s.db.ExecContext(ctx, q,
		r.ID, r.SnapshotID, r.MessageID, r.GroupID, r.Channel, r.GatherDigit,
		custom, r.Status, r.Total, r.Completed, r.Answered, r.StartedAt, r.CompletedAt,
	)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Run, error) {
	const q = `
SELECT id, COALESCE(snapshot_id::text, ''), COALESCE(message_id::text, ''),
       COALESCE(group_id::text, ''), channel, gather_digit, custom_data,
       status, total, completed, answered, started_at, completed_at
FROM runs
WHERE id = $1
`
	var r Run
	var custom []byte
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&r.ID, &r.SnapshotID, &r.MessageID, &r.GroupID, &r.Channel,
		&r.GatherDigit, &custom, &r.Status, &r.Total, &r.Completed,
		&r.Answered, &r.StartedAt, &r.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, err
	}
	if len(custom) > 0 {
		if err := json.Unmarshal(custom, &r.CustomData); err != nil {
			return Run{}, err
		}
	}
	return r, nil
}

func (s *PostgresStore) Update(ctx context.Context, r Run) error {
	const q = `
UPDATE runs
SET status = $2, total = $3, completed = $4, answered = $5, completed_at = $6
WHERE id = $1
`
	res, err := s.db.ExecContext(ctx, q, r.ID, r.Status, r.Total, r.Completed, r.Answered, r.CompletedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalCustom(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}
