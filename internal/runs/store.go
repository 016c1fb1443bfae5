package runs

import (
	"context"
	"errors"
	"sync"
)

// Store is the persistence contract for run records.
type Store interface {
	Create(ctx context.Context, r Run) error
	Get(ctx context.Context, id string) (Run, error)
	Update(ctx context.Context, r Run) error
}

var ErrNotFound = errors.New("runs: not found")

// MemoryStore is an in-memory run store useful for tests.

type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]Run
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Run)}
}

func (s *MemoryStore) Create(ctx context.Context, r Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[r.ID] = cloneRun(r)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return cloneRun(r), nil
}

func (s *MemoryStore) Update(ctx context.Context, r Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[r.ID]; !ok {
		return ErrNotFound
	}
	s.rows[r.ID] = cloneRun(r)
	return nil
}

func cloneRun(r Run) Run {
	out := r
	if r.CustomData != nil {
		out.CustomData = make(map[string]string, len(r.CustomData))
		for k, v := range r.CustomData {
			out.CustomData[k] = v
		}
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
