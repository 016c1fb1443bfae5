package dialer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"alert-dialer/internal/attempts"
	"alert-dialer/internal/config"
	"alert-dialer/internal/contacts"
	"alert-dialer/internal/gateway"
	"alert-dialer/internal/messages"
	"alert-dialer/internal/runs"
)

// Recomputer settles run counters after an attempt reaches a terminal
// state.
type Recomputer interface {
	Recompute(ctx context.Context, runID string) (runs.Run, error)
}

// Job carries the run-scoped inputs for one contact's delivery. The
// snapshot is captured once at dispatch time; retries never re-fetch
// content.
type Job struct {
	RunID       string
	Snapshot    messages.Snapshot
	GatherDigit bool
	CustomData  map[string]string
}

// Dialer attempts delivery to one contact across its prioritized
// endpoints: strictly sequential within a contact (first answer wins),
// backoff between unanswered endpoints, one log row per real attempt.
type Dialer struct {
	gw  gateway.DeliveryGateway
	log attempts.Store
	agg Recomputer
	cfg config.DialerConfig

	logger *slog.Logger
	clock  func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(gw gateway.DeliveryGateway, log attempts.Store, agg Recomputer, cfg config.DialerConfig, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{
		gw:     gw,
		log:    log,
		agg:    agg,
		cfg:    cfg,
		logger: logger,
		clock:  time.Now,
		sleep:  sleepCtx,
	}
}

type outcome int

const (
	outcomeAnswered outcome = iota
	outcomeNoAnswer
	outcomeRejected
	outcomeTransient
)

// DialContact runs the per-contact state machine. It returns whether
// the contact confirmed (answer/digit). A contact with zero endpoints
// is a valid no-op: no attempt rows are created.
//
// Per-endpoint failures are contained here; only store-level failures
// propagate, and the dispatcher contains those per contact.
func (d *Dialer) DialContact(ctx context.Context, contact contacts.Contact, job Job) (bool, error) {
	eps := make([]contacts.Endpoint, len(contact.Endpoints))
	copy(eps, contact.Endpoints)
	contacts.SortEndpoints(eps)

	if len(eps) == 0 {
		d.logger.Debug("contact has no endpoints", "contact_id", contact.ID)
		return false, nil
	}

	for i, ep := range eps {
		out, err := d.dialEndpoint(ctx, contact, ep, job)
		if err != nil {
			return false, err
		}

		switch out {
		case outcomeAnswered:
			return true, nil
		case outcomeRejected:
			// Rejection is deterministic; move on without backoff.
			continue
		case outcomeNoAnswer, outcomeTransient:
			if i+1 < len(eps) && d.cfg.DialBackoff > 0 {
				if err := d.sleep(ctx, d.cfg.DialBackoff); err != nil {
					return false, err
				}
			}
		}
	}

	if err := d.writeFallback(ctx, contact, job, attempts.ChannelVoice); err != nil {
		return false, err
	}
	return false, nil
}

func (d *Dialer) dialEndpoint(ctx context.Context, contact contacts.Contact, ep contacts.Endpoint, job Job) (outcome, error) {
	now := d.clock()

	a := attempts.New(contact.ID, now)
	a.EndpointID = ep.ID
	a.Number = ep.Number
	a.RunID = job.RunID
	a.Channel = attempts.ChannelVoice
	a.SnapshotID = job.Snapshot.ID
	a.CustomData = job.CustomData

	txID, err := d.gw.PlaceCall(ctx, gateway.PlaceCallRequest{
		To:          ep.Number,
		AttemptID:   a.ID,
		SnapshotID:  job.Snapshot.ID,
		GatherDigit: job.GatherDigit,
		Timeout:     d.cfg.CallTimeout,
	})
	if err != nil {
		a.Status = attempts.StatusError
		a.Detail = err.Error()
		if aerr := d.log.Append(ctx, a); aerr != nil {
			return outcomeTransient, aerr
		}
		d.recompute(ctx, job.RunID)

		if gateway.IsRejected(err) {
			d.logger.Warn("call rejected", "contact_id", contact.ID, "number", ep.Number, "err", err)
			return outcomeRejected, nil
		}
		d.logger.Warn("call placement failed", "contact_id", contact.ID, "number", ep.Number, "err", err)
		return outcomeTransient, nil
	}

	a.ProviderTxID = txID
	a.Status = attempts.StatusInitiated
	if err := d.log.Append(ctx, a); err != nil {
		return outcomeTransient, err
	}

	out, err := d.waitForAnswer(ctx, a.ID, txID)
	if err != nil {
		return outcomeNoAnswer, err
	}
	d.recompute(ctx, job.RunID)
	return out, nil
}

// waitForAnswer is the bounded poll loop: sleep a fixed interval, apply
// the provider's best-effort state, then re-check the attempt row —
// which an inbound webhook may have resolved concurrently. Silence
// after the iteration cap means no-answer, not success.
func (d *Dialer) waitForAnswer(ctx context.Context, attemptID, txID string) (outcome, error) {
	iterations := d.cfg.PollIterations()

	for i := 0; i < iterations; i++ {
		if err := d.sleep(ctx, d.cfg.PollInterval); err != nil {
			return outcomeNoAnswer, err
		}

		if st, perr := d.gw.PollStatus(ctx, gateway.StatusQuery{ProviderTxID: txID, Channel: gateway.ChannelKindVoice}); perr == nil {
			if err := d.applyPolledState(ctx, attemptID, st); err != nil {
				return outcomeNoAnswer, err
			}
		} else {
			// Poll is best-effort; the webhook path still converges.
			d.logger.Debug("status poll failed", "provider_tx_id", txID, "err", perr)
		}

		cur, err := d.log.Get(ctx, attemptID)
		if err != nil {
			return outcomeNoAnswer, err
		}
		if cur.Confirmed() {
			return outcomeAnswered, nil
		}
		if cur.Status == attempts.StatusNoAnswer || cur.Status == attempts.StatusBusy || cur.Status == attempts.StatusFailed {
			return outcomeNoAnswer, nil
		}
	}

	// Timed out without a terminal signal.
	cur, err := d.log.Get(ctx, attemptID)
	if err != nil {
		return outcomeNoAnswer, err
	}
	if cur.Confirmed() {
		return outcomeAnswered, nil
	}
	if attempts.ApplyTerminal(&cur, attempts.StatusNoAnswer, "", d.clock()) {
		if err := d.log.Update(ctx, cur); err != nil {
			return outcomeNoAnswer, err
		}
	}
	return outcomeNoAnswer, nil
}

func (d *Dialer) applyPolledState(ctx context.Context, attemptID string, st gateway.DeliveryState) error {
	status, ok := StatusFromState(st)
	if !ok {
		return nil
	}
	cur, err := d.log.Get(ctx, attemptID)
	if err != nil {
		return err
	}
	if attempts.ApplyTerminal(&cur, status, "", d.clock()) {
		return d.log.Update(ctx, cur)
	}
	return nil
}

// writeFallback logs the single "reach manually" row after a contact
// exhausted every endpoint. A webhook racing the final poll may have
// confirmed the contact late, and a concurrent writer may have already
// logged the fallback; both suppress the row.
func (d *Dialer) writeFallback(ctx context.Context, contact contacts.Contact, job Job, ch attempts.Channel) error {
	if job.RunID == "" {
		return nil
	}

	prior, err := d.log.ListByContact(ctx, job.RunID, contact.ID)
	if err != nil {
		return err
	}
	for _, a := range prior {
		if a.Confirmed() || a.Status == attempts.StatusManual {
			return nil
		}
	}

	a := attempts.New(contact.ID, d.clock())
	a.RunID = job.RunID
	a.Channel = ch
	a.Status = attempts.StatusManual
	a.SnapshotID = job.Snapshot.ID
	a.CustomData = job.CustomData
	a.Detail = "all endpoints exhausted without confirmation"
	if err := d.log.Append(ctx, a); err != nil {
		return err
	}
	d.recompute(ctx, job.RunID)
	return nil
}

func (d *Dialer) recompute(ctx context.Context, runID string) {
	if runID == "" || d.agg == nil {
		return
	}
	if _, err := d.agg.Recompute(ctx, runID); err != nil {
		d.logger.Error("run recompute failed", "run_id", runID, "err", err)
	}
}

// StatusFromState maps a provider delivery state to a terminal attempt
// status. Non-terminal states return false.
func StatusFromState(st gateway.DeliveryState) (attempts.Status, bool) {
	switch st {
	case gateway.StateCompleted:
		return attempts.StatusCompleted, true
	case gateway.StateNoAnswer:
		return attempts.StatusNoAnswer, true
	case gateway.StateBusy:
		return attempts.StatusBusy, true
	case gateway.StateFailed, gateway.StateCanceled, gateway.StateUndelivered:
		return attempts.StatusFailed, true
	case gateway.StateDelivered:
		return attempts.StatusDelivered, true
	default:
		return "", false
	}
}

var errSleepInterrupted = errors.New("dialer: wait interrupted")

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return errSleepInterrupted
	case <-t.C:
		return nil
	}
}
