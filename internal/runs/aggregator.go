package runs

import (
	"context"
	"errors"
	"time"

	"alert-dialer/internal/attempts"
)

// Aggregator derives run counters from the attempt log.
//
// Recompute is a pure function of durable state: concurrent calls are
// safe via last-writer-wins because each call writes counters derived
// from its own full log read. No increments, no locks.
type Aggregator struct {
	runs     Store
	attempts attempts.Store

	clock func() time.Time
}

func NewAggregator(runs Store, log attempts.Store) *Aggregator {
	return &Aggregator{runs: runs, attempts: log, clock: time.Now}
}

// Recompute reads every attempt under runID, rederives the counters and
// persists them. It is called after each attempt settles and whenever a
// provider webhook mutates an attempt, so drift from races is corrected
// on the next pass.
//
// A run transitions to completed exactly when completed == total and
// total > 0; a zero-total run stays in_progress until contacts are
// actually dispatched.
func (g *Aggregator) Recompute(ctx context.Context, runID string) (Run, error) {
	if runID == "" {
		return Run{}, errors.New("runs: run id required")
	}
	if g.runs == nil || g.attempts == nil {
		return Run{}, errors.New("runs: aggregator not configured")
	}

	run, err := g.runs.Get(ctx, runID)
	if err != nil {
		return Run{}, err
	}

	rows, err := g.attempts.ListByRun(ctx, runID)
	if err != nil {
		return Run{}, err
	}

	run.Total = len(rows)
	run.Completed = 0
	run.Answered = 0
	for _, a := range rows {
		if a.Status.Terminal() {
			run.Completed++
		}
		if a.Answered {
			run.Answered++
		}
	}

	if run.Status.Open() && run.Total > 0 && run.Completed == run.Total {
		run.Status = StatusCompleted
		if run.CompletedAt == nil {
			now := g.clock().UTC()
			run.CompletedAt = &now
		}
	}

	if err := g.runs.Update(ctx, run); err != nil {
		return Run{}, err
	}
	return run, nil
}
