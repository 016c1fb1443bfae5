package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"alert-dialer/internal/attempts"
	"alert-dialer/internal/contacts"
	"alert-dialer/internal/dialer"
	"alert-dialer/internal/dispatch"
	"alert-dialer/internal/gateway"
	"alert-dialer/internal/messages"
	"alert-dialer/internal/runs"
)

// VoiceDialer and TextSender are the per-contact delivery machines the
// engine schedules.
type VoiceDialer interface {
	DialContact(ctx context.Context, c contacts.Contact, job dialer.Job) (bool, error)
}

type TextSender interface {
	TextContact(ctx context.Context, c contacts.Contact, job dialer.Job) (bool, error)
}

var (
	ErrContactNotFound   = errors.New("orchestrator: contact not found")
	ErrUnknownProviderTx = errors.New("orchestrator: unknown provider transaction")
	ErrRunClosed         = errors.New("orchestrator: run is not in progress")
)

// Engine is the orchestration facade: it resolves targets, captures the
// message snapshot, creates the run record and hands the batch to the
// dispatcher. It also terminates the two provider feedback paths
// (webhooks and snapshot rendering) so HTTP handlers stay thin.
type Engine struct {
	resolver  *contacts.Resolver
	templates messages.Repository
	snapshots messages.SnapshotStore
	runStore  runs.Store
	log       attempts.Store
	agg       dialer.Recomputer
	voice     VoiceDialer
	text      TextSender
	disp      *dispatch.Dispatcher

	logger *slog.Logger
	clock  func() time.Time

	background sync.WaitGroup
}

type Deps struct {
	Resolver  *contacts.Resolver
	Templates messages.Repository
	Snapshots messages.SnapshotStore
	Runs      runs.Store
	Attempts  attempts.Store
	Agg       dialer.Recomputer
	Voice     VoiceDialer
	Text      TextSender
	Dispatch  *dispatch.Dispatcher
	Logger    *slog.Logger
}

func New(d Deps) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		resolver:  d.Resolver,
		templates: d.Templates,
		snapshots: d.Snapshots,
		runStore:  d.Runs,
		log:       d.Attempts,
		agg:       d.Agg,
		voice:     d.Voice,
		text:      d.Text,
		disp:      d.Dispatch,
		logger:    logger,
		clock:     time.Now,
	}
}

// Wait blocks until all background deliveries have drained. Used on
// shutdown and in tests.
func (e *Engine) Wait() { e.background.Wait() }

// StartRunInput selects who to reach and what to say. Exactly one of
// Source.MessageID / Source.Inline must be set; Target follows the
// resolver's precedence rules.
type StartRunInput struct {
	Target      contacts.TargetSpec
	Source      messages.Source
	Channel     messages.Channel
	GatherDigit bool
	CustomData  map[string]string
}

// StartRun validates the input, snapshots the content, persists the run
// and kicks off delivery in the background. The returned run is the
// freshly created record; callers poll GetRunStatus for progress.
func (e *Engine) StartRun(ctx context.Context, in StartRunInput) (runs.Run, error) {
	channel := in.Channel
	if channel == "" {
		channel = messages.ChannelVoice
	}
	if !messages.ValidChannel(channel) {
		return runs.Run{}, errors.New("orchestrator: invalid channel")
	}

	now := e.clock()
	snap, err := messages.Resolve(ctx, e.templates, in.Source, now)
	if err != nil {
		return runs.Run{}, err
	}

	batch, err := e.resolver.Resolve(ctx, in.Target)
	if err != nil {
		return runs.Run{}, err
	}

	if err := e.snapshots.Save(ctx, snap); err != nil {
		return runs.Run{}, err
	}

	run := runs.Run{
		ID:          uuid.NewString(),
		SnapshotID:  snap.ID,
		MessageID:   snap.MessageID,
		Channel:     string(channel),
		GatherDigit: in.GatherDigit,
		CustomData:  in.CustomData,
		Status:      runs.StatusInProgress,
		StartedAt:   now.UTC(),
	}
	if len(in.Target.ContactIDs) == 0 {
		run.GroupID = in.Target.GroupID
	}
	if err := e.runStore.Create(ctx, run); err != nil {
		return runs.Run{}, err
	}

	job := dialer.Job{
		RunID:       run.ID,
		Snapshot:    snap,
		GatherDigit: in.GatherDigit,
		CustomData:  in.CustomData,
	}

	e.background.Add(1)
	go func() {
		defer e.background.Done()
		// The run outlives the HTTP request that started it.
		e.deliverBatch(context.WithoutCancel(ctx), run.ID, channel, batch, job)
	}()

	e.logger.Info("run started",
		"run_id", run.ID, "channel", channel, "contacts", len(batch), "snapshot_id", snap.ID)
	return run, nil
}

func (e *Engine) deliverBatch(ctx context.Context, runID string, channel messages.Channel, batch []contacts.Contact, job dialer.Job) {
	proceed := func(ctx context.Context) bool {
		run, err := e.runStore.Get(ctx, runID)
		if err != nil {
			e.logger.Error("run lookup failed during dispatch", "run_id", runID, "err", err)
			return true
		}
		return run.Status != runs.StatusCancelled
	}

	e.disp.Run(ctx, batch, e.contactWork(channel, job), proceed)

	e.recompute(ctx, runID)
	e.logger.Info("run dispatch finished", "run_id", runID)
}

// contactWork binds the channel semantics: voice dials, sms texts, and
// both texts first then dials so the callee has the message in hand
// when the phone rings.
func (e *Engine) contactWork(channel messages.Channel, job dialer.Job) dispatch.Work {
	return func(ctx context.Context, c contacts.Contact) error {
		switch channel {
		case messages.ChannelSMS:
			_, err := e.text.TextContact(ctx, c, job)
			return err
		case messages.ChannelBoth:
			if _, err := e.text.TextContact(ctx, c, job); err != nil {
				e.logger.Error("sms leg failed", "contact_id", c.ID, "err", err)
			}
			_, err := e.voice.DialContact(ctx, c, job)
			return err
		default:
			_, err := e.voice.DialContact(ctx, c, job)
			return err
		}
	}
}

// GetRunStatus returns the run with its derived counters.
func (e *Engine) GetRunStatus(ctx context.Context, runID string) (runs.Run, error) {
	return e.runStore.Get(ctx, runID)
}

// ListRunAttempts returns the full attempt log for a run in append order.
func (e *Engine) ListRunAttempts(ctx context.Context, runID string) ([]attempts.Attempt, error) {
	if _, err := e.runStore.Get(ctx, runID); err != nil {
		return nil, err
	}
	return e.log.ListByRun(ctx, runID)
}

// CancelRun flips an in-progress run to cancelled. In-flight contacts
// finish; no new contacts are started. Cancelling a settled run fails.
func (e *Engine) CancelRun(ctx context.Context, runID string) (runs.Run, error) {
	run, err := e.runStore.Get(ctx, runID)
	if err != nil {
		return runs.Run{}, err
	}
	if run.Status != runs.StatusInProgress {
		return runs.Run{}, ErrRunClosed
	}
	run.Status = runs.StatusCancelled
	if err := e.runStore.Update(ctx, run); err != nil {
		return runs.Run{}, err
	}
	e.logger.Info("run cancelled", "run_id", runID)
	return run, nil
}

// DialSingle places an immediate voice call to one contact outside any
// run. It blocks until the contact answers or every endpoint is
// exhausted, and reports whether the contact confirmed.
func (e *Engine) DialSingle(ctx context.Context, contactID string, src messages.Source, gatherDigit bool) (bool, error) {
	c, snap, err := e.prepareSingle(ctx, contactID, src)
	if err != nil {
		return false, err
	}
	return e.voice.DialContact(ctx, c, dialer.Job{Snapshot: snap, GatherDigit: gatherDigit})
}

// TextSingle sends one SMS outside any run and reports whether delivery
// was confirmed within the receipt window.
func (e *Engine) TextSingle(ctx context.Context, contactID string, src messages.Source) (bool, error) {
	c, snap, err := e.prepareSingle(ctx, contactID, src)
	if err != nil {
		return false, err
	}
	return e.text.TextContact(ctx, c, dialer.Job{Snapshot: snap})
}

func (e *Engine) prepareSingle(ctx context.Context, contactID string, src messages.Source) (contacts.Contact, messages.Snapshot, error) {
	if contactID == "" {
		return contacts.Contact{}, messages.Snapshot{}, ErrContactNotFound
	}
	snap, err := messages.Resolve(ctx, e.templates, src, e.clock())
	if err != nil {
		return contacts.Contact{}, messages.Snapshot{}, err
	}
	batch, err := e.resolver.Resolve(ctx, contacts.TargetSpec{ContactIDs: []string{contactID}})
	if err != nil {
		return contacts.Contact{}, messages.Snapshot{}, err
	}
	if len(batch) == 0 {
		return contacts.Contact{}, messages.Snapshot{}, ErrContactNotFound
	}
	if err := e.snapshots.Save(ctx, snap); err != nil {
		return contacts.Contact{}, messages.Snapshot{}, err
	}
	return batch[0], snap, nil
}

// CustomAttemptInput records a contact attempt made outside the engine
// (radio, door knock, third-party system) so the run's log stays the
// single source of truth.
type CustomAttemptInput struct {
	ContactID  string
	RunID      string
	Detail     string
	Confirmed  bool
	CustomData map[string]string
}

// SendCustom appends a custom attempt row and settles the owning run's
// counters.
func (e *Engine) SendCustom(ctx context.Context, in CustomAttemptInput) (attempts.Attempt, error) {
	if in.ContactID == "" {
		return attempts.Attempt{}, ErrContactNotFound
	}
	a := attempts.New(in.ContactID, e.clock())
	a.RunID = in.RunID
	a.Status = attempts.StatusCustom
	a.Answered = in.Confirmed
	a.Detail = in.Detail
	a.CustomData = in.CustomData
	if err := e.log.Append(ctx, a); err != nil {
		return attempts.Attempt{}, err
	}
	e.recompute(ctx, in.RunID)
	return a, nil
}

// ApplyProviderStatus is the webhook entry point. It locates the
// attempt by provider transaction id and merges the reported state,
// then settles the owning run. Unknown transactions are an error the
// handler may choose to swallow; Twilio retries otherwise.
func (e *Engine) ApplyProviderStatus(ctx context.Context, upd gateway.StatusUpdate) error {
	if upd.ProviderTxID == "" {
		return ErrUnknownProviderTx
	}
	a, ok, err := e.log.FindByProviderTx(ctx, upd.ProviderTxID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownProviderTx
	}

	status, terminal := dialer.StatusFromState(upd.State)
	if !terminal && upd.Digit == "" {
		// Progress-only callback (queued, ringing); the row stays open.
		return nil
	}
	if !terminal {
		status = attempts.StatusCompleted
	}

	if attempts.ApplyTerminal(&a, status, upd.Digit, e.clock()) {
		if err := e.log.Update(ctx, a); err != nil {
			return err
		}
		e.recompute(ctx, a.RunID)
	}
	return nil
}

// SnapshotBody serves the answer webhook: the prompt rendered to the
// callee is always the content captured at dispatch time.
func (e *Engine) SnapshotBody(ctx context.Context, snapshotID string) (string, error) {
	snap, err := e.snapshots.Get(ctx, snapshotID)
	if err != nil {
		return "", err
	}
	return snap.Body, nil
}

func (e *Engine) recompute(ctx context.Context, runID string) {
	if runID == "" || e.agg == nil {
		return
	}
	if _, err := e.agg.Recompute(ctx, runID); err != nil {
		e.logger.Error("run recompute failed", "run_id", runID, "err", err)
	}
}
