package attempts

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory attempt log useful for tests.
// It preserves append order, which ListByRun relies on for reporting.

type MemoryStore struct {
	mu    sync.Mutex
	order []string
	rows  map[string]Attempt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Attempt)}
}

func (s *MemoryStore) Append(ctx context.Context, a Attempt) error {
	if a.ID == "" || a.ContactID == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[a.ID]; !ok {
		s.order = append(s.order, a.ID)
	}
	s.rows[a.ID] = cloneAttempt(a)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	return cloneAttempt(a), nil
}

func (s *MemoryStore) Update(ctx context.Context, a Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[a.ID]; !ok {
		return ErrNotFound
	}
	s.rows[a.ID] = cloneAttempt(a)
	return nil
}

func (s *MemoryStore) ListByRun(ctx context.Context, runID string) ([]Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Attempt
	for _, id := range s.order {
		if a := s.rows[id]; a.RunID == runID {
			out = append(out, cloneAttempt(a))
		}
	}
	return out, nil
}

func (s *MemoryStore) ListByContact(ctx context.Context, runID, contactID string) ([]Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Attempt
	for _, id := range s.order {
		a := s.rows[id]
		if a.RunID == runID && a.ContactID == contactID {
			out = append(out, cloneAttempt(a))
		}
	}
	return out, nil
}

func (s *MemoryStore) FindByProviderTx(ctx context.Context, providerTxID string) (Attempt, bool, error) {
	if providerTxID == "" {
		return Attempt{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		if a := s.rows[id]; a.ProviderTxID == providerTxID {
			return cloneAttempt(a), true, nil
		}
	}
	return Attempt{}, false, nil
}

func cloneAttempt(a Attempt) Attempt {
	out := a
	if a.CustomData != nil {
		out.CustomData = make(map[string]string, len(a.CustomData))
		for k, v := range a.CustomData {
			out.CustomData[k] = v
		}
	}
	return out
}
