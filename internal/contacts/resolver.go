package contacts

import (
	"context"
	"errors"
	"sort"
)

// Repository is the persistence contract the resolver reads from.
//
// Implementations must return contacts with endpoints eagerly loaded so
// concurrent workers never re-fetch mid-dial.
type Repository interface {
	GetByIDs(ctx context.Context, ids []string) ([]Contact, error)
	ListByGroup(ctx context.Context, groupID string) ([]Contact, error)
}

var ErrNoTarget = errors.New("contacts: target requires contact ids or a group id")

// TargetSpec selects the audience for a run: either an explicit set of
// contact ids or a group. Explicit ids take precedence when both are set.
type TargetSpec struct {
	ContactIDs []string
	GroupID    string
}

func (t TargetSpec) Empty() bool {
	return len(t.ContactIDs) == 0 && t.GroupID == ""
}

// Resolver turns a TargetSpec into a deduplicated batch of contacts with
// endpoints pre-sorted in dial order.
type Resolver struct {
	repo Repository
}

func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the unique set of contacts for the target. An empty
// result (empty id set, group with no members) is a valid outcome, not
// an error; callers must handle a zero-length batch.
func (r *Resolver) Resolve(ctx context.Context, spec TargetSpec) ([]Contact, error) {
	if r.repo == nil {
		return nil, errors.New("contacts: repository not configured")
	}
	if spec.Empty() {
		return nil, ErrNoTarget
	}

	var (
		out []Contact
		err error
	)
	if len(spec.ContactIDs) > 0 {
		out, err = r.repo.GetByIDs(ctx, dedupe(spec.ContactIDs))
	} else {
		out, err = r.repo.ListByGroup(ctx, spec.GroupID)
	}
	if err != nil {
		return nil, err
	}

	for i := range out {
		SortEndpoints(out[i].Endpoints)
	}
	return out, nil
}

// SortEndpoints orders endpoints by priority ascending, insertion order
// as the tie-break. Dial order depends on this being stable.
func SortEndpoints(eps []Endpoint) {
	sort.SliceStable(eps, func(i, j int) bool {
		if eps[i].Priority != eps[j].Priority {
			return eps[i].Priority < eps[j].Priority
		}
		return eps[i].Position < eps[j].Position
	})
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
