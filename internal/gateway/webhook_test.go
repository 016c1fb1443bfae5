package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func postForm(t *testing.T, path, body string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestParseVoiceStatus(t *testing.T) {
	r := postForm(t, "/webhooks/twilio/voice/status", "CallSid=CA123&CallStatus=no-answer&To=%2B15557654321")

	form, err := ParseVoiceStatus(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if form.CallSid != "CA123" {
		t.Fatalf("expected CallSid")
	}

	u := form.ToStatusUpdate(time.Unix(1700000000, 0).UTC())
	if u.ProviderTxID != "CA123" || u.Channel != ChannelKindVoice {
		t.Fatalf("unexpected update: %+v", u)
	}
	if u.State != StateNoAnswer {
		t.Fatalf("expected no_answer state, got %s", u.State)
	}
}

func TestParseGather(t *testing.T) {
	r := postForm(t, "/webhooks/twilio/voice/gather", "CallSid=CA123&Digits=1")

	form, err := ParseGather(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	u := form.ToStatusUpdate(time.Now())
	if u.State != StateCompleted || u.Digit != "1" {
		t.Fatalf("expected completed with digit, got %+v", u)
	}
}

func TestParseSMSStatus_FallsBackToSmsSid(t *testing.T) {
	r := postForm(t, "/webhooks/twilio/sms/status", "SmsSid=SM9&MessageStatus=delivered")

	form, err := ParseSMSStatus(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if form.MessageSid != "SM9" {
		t.Fatalf("expected SmsSid fallback, got %q", form.MessageSid)
	}

	u := form.ToStatusUpdate(time.Now())
	if u.State != StateDelivered || u.Channel != ChannelKindSMS {
		t.Fatalf("unexpected update: %+v", u)
	}
}

func TestMapTwilioStatus(t *testing.T) {
	cases := map[string]DeliveryState{
		"completed":   StateCompleted,
		"no-answer":   StateNoAnswer,
		"busy":        StateBusy,
		"in-progress": StateInProgress,
		"delivered":   StateDelivered,
		"undelivered": StateUndelivered,
		"bogus":       StateUnknown,
	}
	for raw, want := range cases {
		if got := MapTwilioStatus(raw); got != want {
			t.Fatalf("MapTwilioStatus(%q) = %s, want %s", raw, got, want)
		}
	}
}
