package dialer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"alert-dialer/internal/attempts"
	"alert-dialer/internal/config"
	"alert-dialer/internal/contacts"
	"alert-dialer/internal/gateway"
	"alert-dialer/internal/messages"
	"alert-dialer/internal/runs"
)

// script describes how the fake gateway behaves for one number: the
// placement result and the sequence of polled states (the last one
// repeats once the sequence is exhausted).
type script struct {
	txID   string
	err    error
	states []gateway.DeliveryState
}

type fakeGateway struct {
	mu      sync.Mutex
	scripts map[string]script

	calls []gateway.PlaceCallRequest
	sends []gateway.SendMessageRequest
	polls map[string]int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		scripts: make(map[string]script),
		polls:   make(map[string]int),
	}
}

func (f *fakeGateway) Name() string                          { return "fake" }
func (f *fakeGateway) HealthCheck(ctx context.Context) error { return nil }

func (f *fakeGateway) PlaceCall(ctx context.Context, req gateway.PlaceCallRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	sc, ok := f.scripts[req.To]
	if !ok {
		return "", gateway.NewTransient("calls.create", errors.New("no script for "+req.To))
	}
	if sc.err != nil {
		return "", sc.err
	}
	return sc.txID, nil
}

func (f *fakeGateway) SendMessage(ctx context.Context, req gateway.SendMessageRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, req)
	sc, ok := f.scripts[req.To]
	if !ok {
		return "", gateway.NewTransient("messages.create", errors.New("no script for "+req.To))
	}
	if sc.err != nil {
		return "", sc.err
	}
	return sc.txID, nil
}

func (f *fakeGateway) PollStatus(ctx context.Context, q gateway.StatusQuery) (gateway.DeliveryState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sc := range f.scripts {
		if sc.txID != q.ProviderTxID {
			continue
		}
		if len(sc.states) == 0 {
			return gateway.StateUnknown, nil
		}
		i := f.polls[q.ProviderTxID]
		f.polls[q.ProviderTxID]++
		if i >= len(sc.states) {
			i = len(sc.states) - 1
		}
		return sc.states[i], nil
	}
	return gateway.StateUnknown, errors.New("unknown tx " + q.ProviderTxID)
}

type fixture struct {
	gw     *fakeGateway
	log    *attempts.MemoryStore
	runs   *runs.MemoryStore
	dialer *Dialer
	texter *Texter
	slept  []time.Duration
}

func testConfig() config.DialerConfig {
	return config.DialerConfig{
		BotCount:     2,
		CallsPerBot:  2,
		CallTimeout:  4 * time.Second,
		PollInterval: 2 * time.Second,
		DialBackoff:  7 * time.Second,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		gw:   newFakeGateway(),
		log:  attempts.NewMemoryStore(),
		runs: runs.NewMemoryStore(),
	}
	agg := runs.NewAggregator(fx.runs, fx.log)
	fx.dialer = New(fx.gw, fx.log, agg, testConfig(), nil)
	fx.texter = NewTexter(fx.gw, fx.log, agg, testConfig(), nil)

	record := func(ctx context.Context, d time.Duration) error {
		fx.slept = append(fx.slept, d)
		return nil
	}
	fx.dialer.sleep = record
	fx.texter.sleep = record
	return fx
}

func (fx *fixture) startRun(t *testing.T, id string) {
	t.Helper()
	err := fx.runs.Create(context.Background(), runs.Run{ID: id, Status: runs.StatusInProgress})
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
}

func (fx *fixture) attemptsForRun(t *testing.T, runID string) []attempts.Attempt {
	t.Helper()
	rows, err := fx.log.ListByRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	return rows
}

func (fx *fixture) sleptBackoff() int {
	n := 0
	for _, d := range fx.slept {
		if d == testConfig().DialBackoff {
			n++
		}
	}
	return n
}

func twoEndpointContact() contacts.Contact {
	// Inserted out of priority order on purpose: the dialer must sort.
	return contacts.Contact{
		ID: "c1",
		Endpoints: []contacts.Endpoint{
			{ID: "e2", ContactID: "c1", Number: "+15550002", Priority: 2, Position: 0},
			{ID: "e1", ContactID: "c1", Number: "+15550001", Priority: 1, Position: 1},
		},
	}
}

func testJob(runID string) Job {
	return Job{
		RunID:       runID,
		Snapshot:    messages.Snapshot{ID: "snap-1", Body: "evacuate now", Kind: "inline"},
		GatherDigit: true,
	}
}

func TestDialContact_AnswerStopsEscalation(t *testing.T) {
	fx := newFixture(t)
	fx.startRun(t, "r1")
	fx.gw.scripts["+15550001"] = script{txID: "CA1", states: []gateway.DeliveryState{gateway.StateInProgress, gateway.StateCompleted}}
	fx.gw.scripts["+15550002"] = script{txID: "CA2", states: []gateway.DeliveryState{gateway.StateCompleted}}

	answered, err := fx.dialer.DialContact(context.Background(), twoEndpointContact(), testJob("r1"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !answered {
		t.Fatalf("expected answered")
	}

	if len(fx.gw.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(fx.gw.calls))
	}
	if fx.gw.calls[0].To != "+15550001" {
		t.Fatalf("must dial priority 1 first, got %s", fx.gw.calls[0].To)
	}

	rows := fx.attemptsForRun(t, "r1")
	if len(rows) != 1 {
		t.Fatalf("expected 1 attempt row, got %d", len(rows))
	}
	if rows[0].Status != attempts.StatusCompleted || !rows[0].Answered {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
}

func TestDialContact_EscalatesOnNoAnswer(t *testing.T) {
	fx := newFixture(t)
	fx.startRun(t, "r1")
	fx.gw.scripts["+15550001"] = script{txID: "CA1", states: []gateway.DeliveryState{gateway.StateNoAnswer}}
	fx.gw.scripts["+15550002"] = script{txID: "CA2", states: []gateway.DeliveryState{gateway.StateCompleted}}

	answered, err := fx.dialer.DialContact(context.Background(), twoEndpointContact(), testJob("r1"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !answered {
		t.Fatalf("expected second endpoint to answer")
	}

	rows := fx.attemptsForRun(t, "r1")
	if len(rows) != 2 {
		t.Fatalf("expected 2 attempt rows, got %d", len(rows))
	}
	if rows[0].Status != attempts.StatusNoAnswer || rows[0].Number != "+15550001" {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[1].Status != attempts.StatusCompleted || rows[1].Number != "+15550002" {
		t.Fatalf("unexpected second row: %+v", rows[1])
	}
	if fx.sleptBackoff() != 1 {
		t.Fatalf("expected 1 backoff sleep, got %d", fx.sleptBackoff())
	}
}

func TestDialContact_FallbackAfterExhaustion(t *testing.T) {
	fx := newFixture(t)
	fx.startRun(t, "r1")
	fx.gw.scripts["+15550001"] = script{txID: "CA1", states: []gateway.DeliveryState{gateway.StateNoAnswer}}
	fx.gw.scripts["+15550002"] = script{txID: "CA2", states: []gateway.DeliveryState{gateway.StateBusy}}

	answered, err := fx.dialer.DialContact(context.Background(), twoEndpointContact(), testJob("r1"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if answered {
		t.Fatalf("expected unanswered")
	}

	rows := fx.attemptsForRun(t, "r1")
	if len(rows) != 3 {
		t.Fatalf("expected 2 dial rows + 1 manual row, got %d", len(rows))
	}
	last := rows[len(rows)-1]
	if last.Status != attempts.StatusManual {
		t.Fatalf("expected manual fallback row, got %s", last.Status)
	}
	if last.EndpointID != "" || last.Number != "" {
		t.Fatalf("fallback row must not reference an endpoint: %+v", last)
	}

	run, err := fx.runs.Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Total != 3 || run.Completed != 3 || run.Answered != 0 {
		t.Fatalf("unexpected run counters: %+v", run)
	}
	if run.Status != runs.StatusCompleted {
		t.Fatalf("all-terminal run should complete, got %s", run.Status)
	}
}

func TestDialContact_FallbackWrittenOnce(t *testing.T) {
	fx := newFixture(t)
	fx.startRun(t, "r1")
	fx.gw.scripts["+15550001"] = script{txID: "CA1", states: []gateway.DeliveryState{gateway.StateNoAnswer}}
	fx.gw.scripts["+15550002"] = script{txID: "CA2", states: []gateway.DeliveryState{gateway.StateNoAnswer}}

	contact := twoEndpointContact()
	if _, err := fx.dialer.DialContact(context.Background(), contact, testJob("r1")); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, err := fx.dialer.DialContact(context.Background(), contact, testJob("r1")); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	manual := 0
	for _, a := range fx.attemptsForRun(t, "r1") {
		if a.Status == attempts.StatusManual {
			manual++
		}
	}
	if manual != 1 {
		t.Fatalf("expected exactly 1 manual row, got %d", manual)
	}
}

func TestDialContact_RejectedNumberSkipsBackoff(t *testing.T) {
	fx := newFixture(t)
	fx.startRun(t, "r1")
	fx.gw.scripts["+15550001"] = script{err: gateway.NewRejected("calls.create", errors.New("invalid number"))}
	fx.gw.scripts["+15550002"] = script{txID: "CA2", states: []gateway.DeliveryState{gateway.StateCompleted}}

	answered, err := fx.dialer.DialContact(context.Background(), twoEndpointContact(), testJob("r1"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !answered {
		t.Fatalf("expected fallback to second endpoint to answer")
	}

	rows := fx.attemptsForRun(t, "r1")
	if len(rows) != 2 {
		t.Fatalf("expected error row + completed row, got %d rows", len(rows))
	}
	if rows[0].Status != attempts.StatusError || rows[0].Detail == "" {
		t.Fatalf("rejection must log an error row with detail: %+v", rows[0])
	}
	if fx.sleptBackoff() != 0 {
		t.Fatalf("rejection must not back off, got %d backoff sleeps", fx.sleptBackoff())
	}
}

func TestDialContact_TransientFailureBacksOff(t *testing.T) {
	fx := newFixture(t)
	fx.startRun(t, "r1")
	fx.gw.scripts["+15550001"] = script{err: gateway.NewTransient("calls.create", errors.New("rate limited"))}
	fx.gw.scripts["+15550002"] = script{txID: "CA2", states: []gateway.DeliveryState{gateway.StateCompleted}}

	answered, err := fx.dialer.DialContact(context.Background(), twoEndpointContact(), testJob("r1"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !answered {
		t.Fatalf("expected second endpoint to answer")
	}
	if fx.sleptBackoff() != 1 {
		t.Fatalf("expected 1 backoff sleep after transient failure, got %d", fx.sleptBackoff())
	}
}

func TestDialContact_PollWindowExhaustedMeansNoAnswer(t *testing.T) {
	fx := newFixture(t)
	fx.startRun(t, "r1")
	fx.gw.scripts["+15550001"] = script{txID: "CA1", states: []gateway.DeliveryState{gateway.StateInProgress}}

	contact := contacts.Contact{
		ID:        "c1",
		Endpoints: []contacts.Endpoint{{ID: "e1", ContactID: "c1", Number: "+15550001", Priority: 1}},
	}
	answered, err := fx.dialer.DialContact(context.Background(), contact, testJob("r1"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if answered {
		t.Fatalf("silence must not count as an answer")
	}

	// ceil(4s/2s)+1 polls before giving up.
	if got := fx.gw.polls["CA1"]; got != 3 {
		t.Fatalf("expected 3 polls, got %d", got)
	}

	rows := fx.attemptsForRun(t, "r1")
	if rows[0].Status != attempts.StatusNoAnswer {
		t.Fatalf("timed-out attempt must end no_answer, got %s", rows[0].Status)
	}
}

func TestDialContact_WebhookConfirmationWinsOverPolling(t *testing.T) {
	fx := newFixture(t)
	fx.startRun(t, "r1")
	fx.gw.scripts["+15550001"] = script{txID: "CA1", states: []gateway.DeliveryState{gateway.StateInProgress}}

	// Simulate a gather webhook landing between polls.
	sleeps := 0
	fx.dialer.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		if sleeps == 2 {
			a, ok, err := fx.log.FindByProviderTx(context.Background(), "CA1")
			if err != nil || !ok {
				t.Fatalf("attempt not found for webhook: %v", err)
			}
			attempts.ApplyTerminal(&a, attempts.StatusCompleted, "1", time.Now())
			if err := fx.log.Update(context.Background(), a); err != nil {
				t.Fatalf("webhook update: %v", err)
			}
		}
		return nil
	}

	contact := contacts.Contact{
		ID:        "c1",
		Endpoints: []contacts.Endpoint{{ID: "e1", ContactID: "c1", Number: "+15550001", Priority: 1}},
	}
	answered, err := fx.dialer.DialContact(context.Background(), contact, testJob("r1"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !answered {
		t.Fatalf("webhook confirmation must be picked up by the wait loop")
	}

	rows := fx.attemptsForRun(t, "r1")
	if len(rows) != 1 || rows[0].Digit != "1" || !rows[0].Answered {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestDialContact_NoEndpointsIsNoOp(t *testing.T) {
	fx := newFixture(t)
	fx.startRun(t, "r1")

	answered, err := fx.dialer.DialContact(context.Background(), contacts.Contact{ID: "c1"}, testJob("r1"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if answered {
		t.Fatalf("no endpoints cannot answer")
	}
	if rows := fx.attemptsForRun(t, "r1"); len(rows) != 0 {
		t.Fatalf("no rows expected, got %d", len(rows))
	}
}

func TestDialContact_UnattachedDialSkipsFallback(t *testing.T) {
	fx := newFixture(t)
	fx.gw.scripts["+15550001"] = script{txID: "CA1", states: []gateway.DeliveryState{gateway.StateNoAnswer}}

	contact := contacts.Contact{
		ID:        "c1",
		Endpoints: []contacts.Endpoint{{ID: "e1", ContactID: "c1", Number: "+15550001", Priority: 1}},
	}
	answered, err := fx.dialer.DialContact(context.Background(), contact, Job{Snapshot: messages.Snapshot{ID: "snap-1", Body: "test"}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if answered {
		t.Fatalf("expected unanswered")
	}

	rows, err := fx.log.ListByContact(context.Background(), "", "c1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, a := range rows {
		if a.Status == attempts.StatusManual {
			t.Fatalf("manual fallback is run-scoped only")
		}
	}
}
