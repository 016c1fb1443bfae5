package messages

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

// SnapshotStore persists captured snapshots so answer webhooks can
// render the exact content a run was dispatched with.
type SnapshotStore interface {
	Save(ctx context.Context, s Snapshot) error
	Get(ctx context.Context, id string) (Snapshot, error)
}

var ErrSnapshotNotFound = errors.New("messages: snapshot not found")

type MemorySnapshotStore struct {
	mu   sync.Mutex
	rows map[string]Snapshot
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{rows: make(map[string]Snapshot)}
}

func (s *MemorySnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[snap.ID] = snap
	return nil
}

func (s *MemorySnapshotStore) Get(ctx context.Context, id string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.rows[id]
	if !ok {
		return Snapshot{}, ErrSnapshotNotFound
	}
	return snap, nil
}

// PostgresSnapshotStore persists snapshots in Postgres.
//
// Assumed table:
//
//	message_snapshots (
//	  id UUID PRIMARY KEY,
//	  message_id UUID,
//	  body TEXT NOT NULL,
//	  kind TEXT NOT NULL,
//	  taken_at TIMESTAMPTZ NOT NULL
//	)
type PostgresSnapshotStore struct {
	db *sql.DB
}

func NewPostgresSnapshotStore(db *sql.DB) *PostgresSnapshotStore {
	return &PostgresSnapshotStore{db: db}
}

func (s *PostgresSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	const q = `
INSERT INTO message_snapshots (id, message_id, body, kind, taken_at)
VALUES ($1, NULLIF($2, ''), $3, $4, $5)
`
	_, err := s.db.ExecContext(ctx, q, snap.ID, snap.MessageID, snap.Body, snap.Kind, snap.TakenAt)
	return err
}

func (s *PostgresSnapshotStore) Get(ctx context.Context, id string) (Snapshot, error) {
	const q = `
SELECT id, COALESCE(message_id::text, ''), body, kind, taken_at
FROM message_snapshots
WHERE id = $1
`
	var snap Snapshot
	err := s.db.QueryRowContext(ctx, q, id).Scan(&snap.ID, &snap.MessageID, &snap.Body, &snap.Kind, &snap.TakenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
