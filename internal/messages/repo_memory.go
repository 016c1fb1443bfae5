package messages

import (
	"context"
	"sync"
)

// MemoryRepo is a simple in-memory repository useful for tests.

type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]Message
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: make(map[string]Message)}
}

func (r *MemoryRepo) Put(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[m.ID] = m
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	return m, nil
}
