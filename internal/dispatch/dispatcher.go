package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"alert-dialer/internal/config"
	"alert-dialer/internal/contacts"
)

// Work delivers to one contact. Implementations are the voice and SMS
// per-contact state machines; they own their retries and logging, the
// dispatcher only owns scheduling.
type Work func(ctx context.Context, c contacts.Contact) error

// Proceed is checked before each contact is started. Returning false
// stops new work without interrupting contacts already in flight; the
// orchestrator uses it to honor run cancellation.
type Proceed func(ctx context.Context) bool

// Dispatcher fans a contact batch out over a fixed pool of bots. Each
// bot owns a round-robin partition of the batch and dials up to
// CallsPerBot contacts concurrently, so the fleet never exceeds
// BotCount*CallsPerBot simultaneous contacts. An optional Limiter adds
// a cap shared across processes.
type Dispatcher struct {
	cfg     config.DialerConfig
	limiter Limiter
	logger  *slog.Logger

	// acquireWait is the pause between shared-cap acquire attempts.
	acquireWait time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func New(cfg config.DialerConfig, limiter Limiter, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		cfg:         cfg,
		limiter:     limiter,
		logger:      logger,
		acquireWait: 250 * time.Millisecond,
		sleep:       sleepCtx,
	}
}

// Run processes the batch and blocks until every started contact has
// finished. A panicking or failing contact never takes its siblings
// down; the failure is logged and the batch continues.
func (d *Dispatcher) Run(ctx context.Context, batch []contacts.Contact, work Work, proceed Proceed) {
	if len(batch) == 0 || work == nil {
		return
	}

	bots := d.cfg.BotCount
	if bots <= 0 {
		bots = 1
	}
	if bots > len(batch) {
		bots = len(batch)
	}
	perBot := d.cfg.CallsPerBot
	if perBot <= 0 {
		perBot = 1
	}

	buckets := make([][]contacts.Contact, bots)
	for i, c := range batch {
		buckets[i%bots] = append(buckets[i%bots], c)
	}

	var wg sync.WaitGroup
	for i, bucket := range buckets {
		wg.Add(1)
		go func(bot int, bucket []contacts.Contact) {
			defer wg.Done()
			d.runBot(ctx, bot, bucket, perBot, work, proceed)
		}(i, bucket)
	}
	wg.Wait()
}

func (d *Dispatcher) runBot(ctx context.Context, bot int, bucket []contacts.Contact, perBot int, work Work, proceed Proceed) {
	sem := make(chan struct{}, perBot)
	var wg sync.WaitGroup

	for _, c := range bucket {
		if ctx.Err() != nil {
			break
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}

		// Re-checked once a slot frees: a cancellation that landed while
		// we were blocked must not start more contacts.
		if proceed != nil && !proceed(ctx) {
			<-sem
			d.logger.Info("dispatch stopped early", "bot", bot, "remaining_skipped", true)
			break
		}

		wg.Add(1)
		go func(c contacts.Contact) {
			defer wg.Done()
			defer func() { <-sem }()
			d.runContact(ctx, bot, c, work)
		}(c)
	}
	wg.Wait()
}

func (d *Dispatcher) runContact(ctx context.Context, bot int, c contacts.Contact, work Work) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("contact delivery panicked", "bot", bot, "contact_id", c.ID, "panic", r)
		}
	}()

	if d.limiter != nil {
		if !d.acquire(ctx, c.ID) {
			d.logger.Warn("shared cap never freed, skipping contact", "bot", bot, "contact_id", c.ID)
			return
		}
		defer func() {
			if err := d.limiter.Release(context.WithoutCancel(ctx)); err != nil {
				d.logger.Error("shared cap release failed", "contact_id", c.ID, "err", err)
			}
		}()
	}

	if err := work(ctx, c); err != nil {
		d.logger.Error("contact delivery failed", "bot", bot, "contact_id", c.ID, "err", err)
	}
}

// acquire spins on the shared cap until a slot frees or ctx ends.
func (d *Dispatcher) acquire(ctx context.Context, contactID string) bool {
	for {
		ok, err := d.limiter.Acquire(ctx)
		if err != nil {
			// A broken limiter must not stall an emergency run.
			d.logger.Error("shared cap acquire failed, proceeding uncapped", "contact_id", contactID, "err", err)
			return true
		}
		if ok {
			return true
		}
		if err := d.sleep(ctx, d.acquireWait); err != nil {
			return false
		}
	}
}

func sleepCtx(ctx context.Context, dur time.Duration) error {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
