package attempts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence contract for the attempt log.
//
// Append never overwrites; Update is reserved for moving an existing
// row toward a terminal state (worker poll path or provider callback
// path, converging on the same row via the provider tx id).
type Store interface {
	Append(ctx context.Context, a Attempt) error
	Get(ctx context.Context, id string) (Attempt, error)
	Update(ctx context.Context, a Attempt) error
	ListByRun(ctx context.Context, runID string) ([]Attempt, error)
	ListByContact(ctx context.Context, runID, contactID string) ([]Attempt, error)
	FindByProviderTx(ctx context.Context, providerTxID string) (Attempt, bool, error)
}

var (
	ErrNotFound     = errors.New("attempts: not found")
	ErrInvalidInput = errors.New("attempts: invalid attempt")
)

// New builds a log row with generated id and timestamps.
func New(contactID string, now time.Time) Attempt {
	return Attempt{
		ID:        uuid.NewString(),
		ContactID: contactID,
		StartedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

// ApplyTerminal merges a terminal state onto the attempt following the
// superset rule: completed implies answered regardless of who sets it,
// and a confirmed row is never downgraded to an unanswered state.
// It reports whether the attempt changed.
func ApplyTerminal(a *Attempt, status Status, digit string, now time.Time) bool {
	if !status.Terminal() {
		return false
	}

	confirmedBefore := a.Confirmed()
	changed := false

	if digit != "" && a.Digit != digit {
		a.Digit = digit
		changed = true
	}
	if status == StatusCompleted || status == StatusDelivered || digit != "" {
		if status == StatusCompleted || digit != "" {
			if !a.Answered {
				a.Answered = true
				changed = true
			}
		}
		if a.Status != status && status != "" {
			a.Status = status
			changed = true
		}
	} else if !confirmedBefore && a.Status != status {
		// Unconfirmed terminal states (no_answer, busy, failed, error)
		// never overwrite a confirmation.
		a.Status = status
		changed = true
	}

	if changed {
		a.UpdatedAt = now.UTC()
	}
	return changed
}
