package attempts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// PostgresStore persists attempts in Postgres.
//
// Assumed table:
//
//	attempts (
//	  id UUID PRIMARY KEY,
//	  contact_id UUID NOT NULL,
//	  endpoint_id UUID,
//	  number TEXT,
//	  run_id UUID,
//	  provider_tx_id TEXT,
//	  channel TEXT NOT NULL,
//	  status TEXT NOT NULL,
//	  answered BOOLEAN NOT NULL DEFAULT FALSE,
//	  digit TEXT,
//	  snapshot_id UUID,
//	  custom_data JSONB,
//	  detail TEXT,
//	  started_at TIMESTAMPTZ NOT NULL,
//	  updated_at TIMESTAMPTZ NOT NULL
//	)
//
// with indexes on (run_id) and (provider_tx_id).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

const attemptColumns = `
id, contact_id, COALESCE(endpoint_id::text, ''), COALESCE(number, ''),
COALESCE(run_id::text, ''), COALESCE(provider_tx_id, ''), channel, status,
answered, COALESCE(digit, ''), COALESCE(snapshot_id::text, ''), custom_data,
COALESCE(detail, ''), started_at, updated_at`

func (s *PostgresStore) Append(ctx context.Context, a Attempt) error {
	if a.ID == "" || a.ContactID == "" {
		return ErrInvalidInput
	}
	custom, err := marshalCustom(a.CustomData)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO attempts (
  id, contact_id, endpoint_id, number, run_id, provider_tx_id, channel,
  status, answered, digit, snapshot_id, custom_data, detail, started_at, updated_at
) VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''),
          $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''), $12, NULLIF($13, ''), $14, $15)
`
	_, err = s.db.ExecContext(ctx, q,
		a.ID, a.ContactID, a.EndpointID, a.Number, a.RunID, a.ProviderTxID,
		a.Channel, a.Status, a.Answered, a.Digit, a.SnapshotID, custom,
		a.Detail, a.StartedAt, a.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Attempt, error) {
	const q = `SELECT ` + attemptColumns + ` FROM attempts WHERE id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) Update(ctx context.Context, a Attempt) error {
	custom, err := marshalCustom(a.CustomData)
	if err != nil {
		return err
	}
	const q = `
UPDATE attempts
SET provider_tx_id = NULLIF($2, ''), status = $3, answered = $4,
    digit = NULLIF($5, ''), custom_data = $6, detail = NULLIF($7, ''),
    updated_at = $8
WHERE id = $1
`
	res, err := s.db.ExecContext(ctx, q,
		a.ID, a.ProviderTxID, a.Status, a.Answered, a.Digit, custom, a.Detail, a.UpdatedAt,
	)
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

func (s *PostgresStore) ListByRun(ctx context.Context, runID string) ([]Attempt, error) {
	const q = `SELECT ` + attemptColumns + ` FROM attempts WHERE run_id = $1 ORDER BY started_at, id`
	rows, err := s.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanAll(rows)
}

func (s *PostgresStore) ListByContact(ctx context.Context, runID, contactID string) ([]Attempt, error) {
	const q = `SELECT ` + attemptColumns + ` FROM attempts WHERE run_id = $1 AND contact_id = $2 ORDER BY started_at, id`
	rows, err := s.db.QueryContext(ctx, q, runID, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanAll(rows)
}

func (s *PostgresStore) FindByProviderTx(ctx context.Context, providerTxID string) (Attempt, bool, error) {
	if providerTxID == "" {
		return Attempt{}, false, nil
	}
	const q = `SELECT ` + attemptColumns + ` FROM attempts WHERE provider_tx_id = $1`
	a, err := s.scanOne(s.db.QueryRowContext(ctx, q, providerTxID))
	if errors.Is(err, ErrNotFound) {
		return Attempt{}, false, nil
	}
	if err != nil {
		return Attempt{}, false, err
	}
	return a, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanOne(row rowScanner) (Attempt, error) {
	var a Attempt
	var custom []byte
	err := row.Scan(
		&a.ID, &a.ContactID, &a.EndpointID, &a.Number, &a.RunID,
		&a.ProviderTxID, &a.Channel, &a.Status, &a.Answered, &a.Digit,
		&a.SnapshotID, &custom, &a.Detail, &a.StartedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrNotFound
	}
	if err != nil {
		return Attempt{}, err
	}
	if len(custom) > 0 {
		if err := json.Unmarshal(custom, &a.CustomData); err != nil {
			return Attempt{}, err
		}
	}
	return a, nil
}

func (s *PostgresStore) scanAll(rows *sql.Rows) ([]Attempt, error) {
	var out []Attempt
	for rows.Next() {
		a, err := s.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func marshalCustom(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}
