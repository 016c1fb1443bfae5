package attempts

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_AppendAndLookup(t *testing.T) {
	s := NewMemoryStore()
	now := time.Unix(1700000000, 0)

	a := New("c1", now)
	a.RunID = "r1"
	a.Channel = ChannelVoice
	a.Status = StatusInitiated
	a.ProviderTxID = "CA1"
	if err := s.Append(context.Background(), a); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	got, err := s.Get(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Status != StatusInitiated {
		t.Fatalf("expected initiated, got %s", got.Status)
	}

	byTx, ok, err := s.FindByProviderTx(context.Background(), "CA1")
	if err != nil || !ok {
		t.Fatalf("expected tx lookup hit, ok=%v err=%v", ok, err)
	}
	if byTx.ID != a.ID {
		t.Fatalf("tx lookup returned wrong row")
	}

	byRun, err := s.ListByRun(context.Background(), "r1")
	if err != nil || len(byRun) != 1 {
		t.Fatalf("expected 1 run row, got %d err=%v", len(byRun), err)
	}
}

func TestMemoryStore_RejectsInvalidAppend(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Append(context.Background(), Attempt{}); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestApplyTerminal_CompletedImpliesAnswered(t *testing.T) {
	now := time.Unix(1700000000, 0)
	a := New("c1", now)
	a.Status = StatusInitiated

	if !ApplyTerminal(&a, StatusCompleted, "", now.Add(time.Second)) {
		t.Fatalf("expected change")
	}
	if a.Status != StatusCompleted || !a.Answered {
		t.Fatalf("completed must imply answered, got %+v", a)
	}
}

func TestApplyTerminal_WebhookOverridesNoAnswer(t *testing.T) {
	// Scenario D: a late webhook with completed+digit corrects a
	// poll-derived no_answer.
	now := time.Unix(1700000000, 0)
	a := New("c1", now)
	a.Status = StatusNoAnswer

	if !ApplyTerminal(&a, StatusCompleted, "1", now.Add(time.Second)) {
		t.Fatalf("expected change")
	}
	if a.Status != StatusCompleted || !a.Answered || a.Digit != "1" {
		t.Fatalf("webhook terminal state must win, got %+v", a)
	}
}

func TestApplyTerminal_NeverDowngradesConfirmation(t *testing.T) {
	now := time.Unix(1700000000, 0)
	a := New("c1", now)
	a.Status = StatusCompleted
	a.Answered = true

	if ApplyTerminal(&a, StatusNoAnswer, "", now.Add(time.Second)) {
		t.Fatalf("expected no change")
	}
	if a.Status != StatusCompleted || !a.Answered {
		t.Fatalf("confirmation must not be downgraded, got %+v", a)
	}
}

func TestApplyTerminal_IgnoresNonTerminal(t *testing.T) {
	now := time.Unix(1700000000, 0)
	a := New("c1", now)
	a.Status = StatusInitiated

	if ApplyTerminal(&a, StatusQueued, "", now) {
		t.Fatalf("non-terminal status must not apply")
	}
}

func TestStatus_Terminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusDelivered, StatusNoAnswer, StatusBusy, StatusFailed, StatusError, StatusManual, StatusCustom}
	for _, st := range terminal {
		if !st.Terminal() {
			t.Fatalf("expected %s terminal", st)
		}
	}
	open := []Status{StatusInitiated, StatusQueued, StatusInProgress, StatusSent}
	for _, st := range open {
		if st.Terminal() {
			t.Fatalf("expected %s open", st)
		}
	}
}
