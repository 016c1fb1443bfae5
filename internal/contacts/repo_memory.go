package contacts

import (
	"context"
	"sync"
)

// MemoryRepo is a simple in-memory repository useful for tests.
// It is not intended for production use.

type MemoryRepo struct {
	mu       sync.Mutex
	contacts map[string]Contact
	groups   map[string][]string // group id -> contact ids
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		contacts: make(map[string]Contact),
		groups:   make(map[string][]string),
	}
}

func (r *MemoryRepo) Put(c Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts[c.ID] = c
}

func (r *MemoryRepo) AddToGroup(groupID, contactID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[groupID] = append(r.groups[groupID], contactID)
}

func (r *MemoryRepo) GetByIDs(ctx context.Context, ids []string) ([]Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Contact, 0, len(ids))
	for _, id := range ids {
		if c, ok := r.contacts[id]; ok {
			out = append(out, cloneContact(c))
		}
	}
	return out, nil
}

func (r *MemoryRepo) ListByGroup(ctx context.Context, groupID string) ([]Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.groups[groupID]
	out := make([]Contact, 0, len(ids))
	for _, id := range ids {
		if c, ok := r.contacts[id]; ok {
			out = append(out, cloneContact(c))
		}
	}
	return out, nil
}

func cloneContact(c Contact) Contact {
	out := c
	out.Endpoints = make([]Endpoint, len(c.Endpoints))
	copy(out.Endpoints, c.Endpoints)
	return out
}
