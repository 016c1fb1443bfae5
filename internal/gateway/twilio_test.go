package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"alert-dialer/internal/config"
)

func testGateway(t *testing.T, handler http.HandlerFunc) *TwilioGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g := NewTwilioGateway(config.TwilioConfig{
		AccountSID:    "AC123",
		AuthToken:     "tok",
		FromNumber:    "+15550001111",
		PublicBaseURL: "https://dialer.example.com",
	}, srv.Client())
	g.apiBase = srv.URL
	return g
}

func TestPlaceCall_ReturnsProviderTxID(t *testing.T) {
	var gotForm map[string]string
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotForm = map[string]string{
			"To":   r.PostFormValue("To"),
			"From": r.PostFormValue("From"),
			"Url":  r.PostFormValue("Url"),
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"CA777","status":"queued"}`))
	})

	sid, err := g.PlaceCall(context.Background(), PlaceCallRequest{
		To:          "+15557654321",
		AttemptID:   "a1",
		SnapshotID:  "s1",
		GatherDigit: true,
		Timeout:     30 * time.Second,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if sid != "CA777" {
		t.Fatalf("expected CA777, got %q", sid)
	}
	if gotForm["To"] != "+15557654321" || gotForm["From"] != "+15550001111" {
		t.Fatalf("unexpected form: %+v", gotForm)
	}
	if gotForm["Url"] == "" {
		t.Fatalf("expected answer url in form")
	}
}

func TestPlaceCall_RejectedOn400(t *testing.T) {
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	})

	_, err := g.PlaceCall(context.Background(), PlaceCallRequest{To: "not-a-number"})
	if !IsRejected(err) {
		t.Fatalf("expected rejected error, got %v", err)
	}
	if IsTransient(err) {
		t.Fatalf("rejected must not classify as transient")
	}
}

func TestPlaceCall_TransientOn429And5xx(t *testing.T) {
	for _, code := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		})
		_, err := g.PlaceCall(context.Background(), PlaceCallRequest{To: "+15557654321"})
		if !IsTransient(err) {
			t.Fatalf("expected transient for %d, got %v", code, err)
		}
	}
}

func TestSendMessage_RequiresBody(t *testing.T) {
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("request must not reach provider")
	})
	_, err := g.SendMessage(context.Background(), SendMessageRequest{To: "+15557654321", Body: "  "})
	if !IsRejected(err) {
		t.Fatalf("expected rejected error, got %v", err)
	}
}

func TestPollStatus_MapsState(t *testing.T) {
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sid":"CA777","status":"no-answer"}`))
	})

	st, err := g.PollStatus(context.Background(), StatusQuery{ProviderTxID: "CA777", Channel: ChannelKindVoice})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if st != StateNoAnswer {
		t.Fatalf("expected no_answer, got %s", st)
	}
}
