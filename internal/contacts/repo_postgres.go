package contacts

import (
	"context"
	"database/sql"

	"alert-dialer/pkg/utils"
)

// PostgresRepo reads contacts and endpoints from Postgres.
//
// Assumed tables:
// - contacts (id, name, notes, created_at, updated_at)
// - endpoints (id, contact_id, number, priority, position)
// - group_members (group_id, contact_id)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

// Both reads run in one read-only transaction so the contact rows and
// their endpoints come from the same snapshot; a batch resolved mid-edit
// must not mix old contacts with new endpoints.

func (r *PostgresRepo) GetByIDs(ctx context.Context, ids []string) ([]Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const q = `
SELECT id, name, COALESCE(notes, ''), created_at, updated_at
FROM contacts
WHERE id = ANY($1)
`
	var out []Contact
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		out, err = loadWithEndpoints(ctx, tx, q, ids)
		return err
	})
	return out, err
}

func (r *PostgresRepo) ListByGroup(ctx context.Context, groupID string) ([]Contact, error) {
	const q = `
SELECT c.id, c.name, COALESCE(c.notes, ''), c.created_at, c.updated_at
FROM contacts c
JOIN group_members gm ON gm.contact_id = c.id
WHERE gm.group_id = $1
`
	var out []Contact
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		out, err = loadWithEndpoints(ctx, tx, q, groupID)
		return err
	})
	return out, err
}

func loadWithEndpoints(ctx context.Context, tx *sql.Tx, query string, arg any) ([]Contact, error) {
	rows, err := tx.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contact
	index := make(map[string]int)
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Notes, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		index[c.ID] = len(out)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]string, len(out))
	for i, c := range out {
		ids[i] = c.ID
	}

	// Eager-load endpoints in one query; workers must never re-fetch.
	const epq = `
SELECT id, contact_id, number, priority, position
FROM endpoints
WHERE contact_id = ANY($1)
ORDER BY contact_id, priority, position
`
	epRows, err := tx.QueryContext(ctx, epq, ids)
	if err != nil {
		return nil, err
	}
	defer epRows.Close()

	for epRows.Next() {
		var e Endpoint
		if err := epRows.Scan(&e.ID, &e.ContactID, &e.Number, &e.Priority, &e.Position); err != nil {
			return nil, err
		}
		if i, ok := index[e.ContactID]; ok {
			out[i].Endpoints = append(out[i].Endpoints, e)
		}
	}
	return out, epRows.Err()
}
