package dialer

import (
	"context"
	"errors"
	"testing"

	"alert-dialer/internal/attempts"
	"alert-dialer/internal/contacts"
	"alert-dialer/internal/gateway"
	"alert-dialer/internal/runs"
)

func contactWithoutEndpoints() contacts.Contact {
	return contacts.Contact{ID: "c-empty"}
}

func TestTextContact_DeliveredReceipt(t *testing.T) {
	fx := newFixture(t)
	fx.startRun(t, "r1")
	fx.gw.scripts["+15550001"] = script{txID: "SM1", states: []gateway.DeliveryState{gateway.StateSent, gateway.StateDelivered}}

	delivered, err := fx.texter.TextContact(context.Background(), twoEndpointContact(), testJob("r1"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !delivered {
		t.Fatalf("expected delivery confirmation")
	}

	if len(fx.gw.sends) != 1 {
		t.Fatalf("one accepted send satisfies the contact, got %d", len(fx.gw.sends))
	}
	if fx.gw.sends[0].To != "+15550001" {
		t.Fatalf("must text priority 1 first, got %s", fx.gw.sends[0].To)
	}
	if fx.gw.sends[0].Body != "evacuate now" {
		t.Fatalf("body must come from the snapshot, got %q", fx.gw.sends[0].Body)
	}

	rows := fx.attemptsForRun(t, "r1")
	if len(rows) != 1 || rows[0].Status != attempts.StatusDelivered {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if rows[0].Channel != attempts.ChannelSMS {
		t.Fatalf("expected sms channel, got %s", rows[0].Channel)
	}
}

func TestTextContact_AcceptedWithoutReceiptStaysOpen(t *testing.T) {
	fx := newFixture(t)
	fx.startRun(t, "r1")
	fx.gw.scripts["+15550001"] = script{txID: "SM1", states: []gateway.DeliveryState{gateway.StateSent}}

	delivered, err := fx.texter.TextContact(context.Background(), twoEndpointContact(), testJob("r1"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if delivered {
		t.Fatalf("no receipt within the window must not report delivered")
	}

	rows := fx.attemptsForRun(t, "r1")
	if len(rows) != 1 || rows[0].Status != attempts.StatusSent {
		t.Fatalf("accepted send must stay open for the receipt webhook: %+v", rows)
	}

	// Accepted send means no manual fallback and the run stays open.
	run, err := fx.runs.Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != runs.StatusInProgress {
		t.Fatalf("run must wait for the receipt, got %s", run.Status)
	}
}

func TestTextContact_EscalatesOnRejection(t *testing.T) {
	fx := newFixture(t)
	fx.startRun(t, "r1")
	fx.gw.scripts["+15550001"] = script{err: gateway.NewRejected("messages.create", errors.New("landline"))}
	fx.gw.scripts["+15550002"] = script{txID: "SM2", states: []gateway.DeliveryState{gateway.StateDelivered}}

	delivered, err := fx.texter.TextContact(context.Background(), twoEndpointContact(), testJob("r1"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !delivered {
		t.Fatalf("expected second endpoint to receive the message")
	}

	rows := fx.attemptsForRun(t, "r1")
	if len(rows) != 2 {
		t.Fatalf("expected error row + delivered row, got %d", len(rows))
	}
	if rows[0].Status != attempts.StatusError || rows[0].Number != "+15550001" {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[1].Status != attempts.StatusDelivered || rows[1].Number != "+15550002" {
		t.Fatalf("unexpected second row: %+v", rows[1])
	}
}

func TestTextContact_FallbackWhenAllSendsFail(t *testing.T) {
	fx := newFixture(t)
	fx.startRun(t, "r1")
	fx.gw.scripts["+15550001"] = script{err: gateway.NewRejected("messages.create", errors.New("landline"))}
	fx.gw.scripts["+15550002"] = script{err: gateway.NewTransient("messages.create", errors.New("rate limited"))}

	delivered, err := fx.texter.TextContact(context.Background(), twoEndpointContact(), testJob("r1"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if delivered {
		t.Fatalf("expected no delivery")
	}

	rows := fx.attemptsForRun(t, "r1")
	if len(rows) != 3 {
		t.Fatalf("expected 2 error rows + manual row, got %d", len(rows))
	}
	if rows[2].Status != attempts.StatusManual || rows[2].Channel != attempts.ChannelSMS {
		t.Fatalf("unexpected fallback row: %+v", rows[2])
	}
}

func TestTextContact_NoEndpointsIsNoOp(t *testing.T) {
	fx := newFixture(t)
	fx.startRun(t, "r1")

	delivered, err := fx.texter.TextContact(context.Background(), contactWithoutEndpoints(), testJob("r1"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if delivered {
		t.Fatalf("no endpoints cannot deliver")
	}
	if rows := fx.attemptsForRun(t, "r1"); len(rows) != 0 {
		t.Fatalf("no rows expected, got %d", len(rows))
	}
}
