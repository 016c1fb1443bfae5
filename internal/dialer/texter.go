package dialer

import (
	"context"
	"log/slog"
	"time"

	"alert-dialer/internal/attempts"
	"alert-dialer/internal/config"
	"alert-dialer/internal/contacts"
	"alert-dialer/internal/gateway"
)

// Texter delivers the snapshot body over SMS. Unlike voice, a single
// accepted send satisfies the contact: SMS endpoints after the first
// accepted one are not tried, because the message is queued on the
// provider side and the delivery receipt arrives asynchronously.
type Texter struct {
	gw  gateway.DeliveryGateway
	log attempts.Store
	agg Recomputer
	cfg config.DialerConfig

	logger *slog.Logger
	clock  func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewTexter(gw gateway.DeliveryGateway, log attempts.Store, agg Recomputer, cfg config.DialerConfig, logger *slog.Logger) *Texter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Texter{
		gw:     gw,
		log:    log,
		agg:    agg,
		cfg:    cfg,
		logger: logger,
		clock:  time.Now,
		sleep:  sleepCtx,
	}
}

// TextContact sends the snapshot body to the contact's highest-priority
// reachable endpoint, walking down the list on rejection or transient
// failure. It returns whether a delivery receipt confirmed the message
// within the poll window; an accepted-but-unreceipted send returns
// false with the attempt row left open for the webhook to settle.
func (t *Texter) TextContact(ctx context.Context, contact contacts.Contact, job Job) (bool, error) {
	eps := make([]contacts.Endpoint, len(contact.Endpoints))
	copy(eps, contact.Endpoints)
	contacts.SortEndpoints(eps)

	if len(eps) == 0 {
		t.logger.Debug("contact has no endpoints", "contact_id", contact.ID)
		return false, nil
	}

	for i, ep := range eps {
		accepted, delivered, err := t.textEndpoint(ctx, contact, ep, job)
		if err != nil {
			return false, err
		}
		if accepted {
			return delivered, nil
		}
		if i+1 < len(eps) && t.cfg.DialBackoff > 0 {
			if err := t.sleep(ctx, t.cfg.DialBackoff); err != nil {
				return false, err
			}
		}
	}

	if err := t.writeFallback(ctx, contact, job); err != nil {
		return false, err
	}
	return false, nil
}

func (t *Texter) textEndpoint(ctx context.Context, contact contacts.Contact, ep contacts.Endpoint, job Job) (accepted, delivered bool, err error) {
	a := attempts.New(contact.ID, t.clock())
	a.EndpointID = ep.ID
	a.Number = ep.Number
	a.RunID = job.RunID
	a.Channel = attempts.ChannelSMS
	a.SnapshotID = job.Snapshot.ID
	a.CustomData = job.CustomData

	txID, err := t.gw.SendMessage(ctx, gateway.SendMessageRequest{
		To:        ep.Number,
		Body:      job.Snapshot.Body,
		AttemptID: a.ID,
	})
	if err != nil {
		a.Status = attempts.StatusError
		a.Detail = err.Error()
		if aerr := t.log.Append(ctx, a); aerr != nil {
			return false, false, aerr
		}
		t.recompute(ctx, job.RunID)
		t.logger.Warn("sms send failed", "contact_id", contact.ID, "number", ep.Number, "err", err)
		return false, false, nil
	}

	a.ProviderTxID = txID
	a.Status = attempts.StatusSent
	if err := t.log.Append(ctx, a); err != nil {
		return true, false, err
	}

	delivered, err = t.waitForReceipt(ctx, a.ID, txID)
	if err != nil {
		return true, false, err
	}
	t.recompute(ctx, job.RunID)
	return true, delivered, nil
}

// waitForReceipt polls for the delivery receipt within the same bounded
// window the voice path uses. Exhausting the window leaves the row open
// (status sent); the receipt webhook settles it later.
func (t *Texter) waitForReceipt(ctx context.Context, attemptID, txID string) (bool, error) {
	iterations := t.cfg.PollIterations()

	for i := 0; i < iterations; i++ {
		if err := t.sleep(ctx, t.cfg.PollInterval); err != nil {
			return false, err
		}

		if st, perr := t.gw.PollStatus(ctx, gateway.StatusQuery{ProviderTxID: txID, Channel: gateway.ChannelKindSMS}); perr == nil {
			if status, ok := StatusFromState(st); ok {
				cur, err := t.log.Get(ctx, attemptID)
				if err != nil {
					return false, err
				}
				if attempts.ApplyTerminal(&cur, status, "", t.clock()) {
					if err := t.log.Update(ctx, cur); err != nil {
						return false, err
					}
				}
			}
		} else {
			t.logger.Debug("receipt poll failed", "provider_tx_id", txID, "err", perr)
		}

		cur, err := t.log.Get(ctx, attemptID)
		if err != nil {
			return false, err
		}
		if cur.Confirmed() {
			return true, nil
		}
		if cur.Status == attempts.StatusFailed {
			return false, nil
		}
	}
	return false, nil
}

// writeFallback logs the manual-contact row when every endpoint refused
// the send. Mirrors the voice fallback guard: suppressed by any prior
// confirmation or an existing manual row for this contact and run.
func (t *Texter) writeFallback(ctx context.Context, contact contacts.Contact, job Job) error {
	if job.RunID == "" {
		return nil
	}

	prior, err := t.log.ListByContact(ctx, job.RunID, contact.ID)
	if err != nil {
		return err
	}
	for _, a := range prior {
		if a.Confirmed() || a.Status == attempts.StatusManual {
			return nil
		}
	}

	a := attempts.New(contact.ID, t.clock())
	a.RunID = job.RunID
	a.Channel = attempts.ChannelSMS
	a.Status = attempts.StatusManual
	a.SnapshotID = job.Snapshot.ID
	a.CustomData = job.CustomData
	a.Detail = "all endpoints exhausted without confirmation"
	if err := t.log.Append(ctx, a); err != nil {
		return err
	}
	t.recompute(ctx, job.RunID)
	return nil
}

func (t *Texter) recompute(ctx context.Context, runID string) {
	if runID == "" || t.agg == nil {
		return
	}
	if _, err := t.agg.Recompute(ctx, runID); err != nil {
		t.logger.Error("run recompute failed", "run_id", runID, "err", err)
	}
}
