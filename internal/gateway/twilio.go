package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"alert-dialer/internal/config"
)

// TwilioGateway places calls and messages through the Twilio REST API.
// It deliberately uses net/http instead of the provider SDK; only this
// adapter knows Twilio request/response shapes.
type TwilioGateway struct {
	cfg    config.TwilioConfig
	client *http.Client

	// apiBase is overridable for tests.
	apiBase string
}

func NewTwilioGateway(cfg config.TwilioConfig, client *http.Client) *TwilioGateway {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &TwilioGateway{
		cfg:     cfg,
		client:  client,
		apiBase: "https://api.twilio.com",
	}
}

func (g *TwilioGateway) Name() string { return "twilio" }

func (g *TwilioGateway) HealthCheck(ctx context.Context) error {
	// Fetch the account resource as a lightweight credentials check.
	u := fmt.Sprintf("%s/2010-04-01/Accounts/%s.json", g.apiBase, g.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(g.cfg.AccountSID, g.cfg.AuthToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway: twilio health check returned %d", resp.StatusCode)
	}
	return nil
}

func (g *TwilioGateway) PlaceCall(ctx context.Context, req PlaceCallRequest) (string, error) {
	if req.To == "" {
		return "", NewRejected("place_call", errors.New("destination number required"))
	}

	answer := fmt.Sprintf("%s/webhooks/twilio/voice/answer?attempt_id=%s&snapshot_id=%s&gather=%s",
		g.cfg.PublicBaseURL,
		url.QueryEscape(req.AttemptID),
		url.QueryEscape(req.SnapshotID),
		boolParam(req.GatherDigit),
	)

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", g.cfg.FromNumber)
	form.Set("Url", answer)
	form.Set("StatusCallback", g.cfg.PublicBaseURL+"/webhooks/twilio/voice/status")
	form.Set("StatusCallbackMethod", http.MethodPost)
	if req.Timeout > 0 {
		form.Set("Timeout", strconv.Itoa(int(req.Timeout/time.Second)))
	}

	var out twilioCreateResponse
	if err := g.post(ctx, "place_call", "/Calls.json", form, &out); err != nil {
		return "", err
	}
	return out.Sid, nil
}

func (g *TwilioGateway) SendMessage(ctx context.Context, req SendMessageRequest) (string, error) {
	if req.To == "" {
		return "", NewRejected("send_message", errors.New("destination number required"))
	}
	if strings.TrimSpace(req.Body) == "" {
		return "", NewRejected("send_message", errors.New("message body required"))
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", g.cfg.FromNumber)
	form.Set("Body", req.Body)
	form.Set("StatusCallback", g.cfg.PublicBaseURL+"/webhooks/twilio/sms/status")

	var out twilioCreateResponse
	if err := g.post(ctx, "send_message", "/Messages.json", form, &out); err != nil {
		return "", err
	}
	return out.Sid, nil
}

func (g *TwilioGateway) PollStatus(ctx context.Context, q StatusQuery) (DeliveryState, error) {
	if q.ProviderTxID == "" {
		return StateUnknown, NewRejected("poll_status", errors.New("provider tx id required"))
	}

	resource := "/Calls/"
	if q.Channel == ChannelKindSMS {
		resource = "/Messages/"
	}
	u := fmt.Sprintf("%s/2010-04-01/Accounts/%s%s%s.json", g.apiBase, g.cfg.AccountSID, resource, url.PathEscape(q.ProviderTxID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return StateUnknown, NewTransient("poll_status", err)
	}
	req.SetBasicAuth(g.cfg.AccountSID, g.cfg.AuthToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return StateUnknown, NewTransient("poll_status", err)
	}
	defer resp.Body.Close()

	if err := classifyHTTP("poll_status", resp); err != nil {
		return StateUnknown, err
	}

	var out twilioCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return StateUnknown, NewTransient("poll_status", err)
	}
	return MapTwilioStatus(out.Status), nil
}

type twilioCreateResponse struct {
	Sid    string `json:"sid"`
	Status string `json:"status"`
}

type twilioErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (g *TwilioGateway) post(ctx context.Context, op, resource string, form url.Values, out *twilioCreateResponse) error {
	u := fmt.Sprintf("%s/2010-04-01/Accounts/%s%s", g.apiBase, g.cfg.AccountSID, resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return NewTransient(op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(g.cfg.AccountSID, g.cfg.AuthToken)

	resp, err := g.client.Do(req)
	if err != nil {
		// Network failures are retryable by the caller.
		return NewTransient(op, err)
	}
	defer resp.Body.Close()

	if err := classifyHTTP(op, resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewTransient(op, err)
	}
	if out.Sid == "" {
		return NewTransient(op, errors.New("twilio response missing sid"))
	}
	return nil
}

// classifyHTTP maps provider HTTP failures onto the gateway taxonomy:
// 429 and 5xx are transient, other 4xx are deterministic rejections.
func classifyHTTP(op string, resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var terr twilioErrorResponse
	_ = json.Unmarshal(body, &terr)
	msg := terr.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	err := fmt.Errorf("twilio %d (code %d): %s", resp.StatusCode, terr.Code, msg)

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return NewTransient(op, err)
	}
	return NewRejected(op, err)
}

// MapTwilioStatus converts a raw Twilio call/message status to the
// provider-agnostic DeliveryState.
func MapTwilioStatus(s string) DeliveryState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "queued", "accepted", "sending":
		return StateQueued
	case "ringing", "initiated":
		return StateRinging
	case "in-progress":
		return StateInProgress
	case "completed":
		return StateCompleted
	case "no-answer":
		return StateNoAnswer
	case "busy":
		return StateBusy
	case "failed":
		return StateFailed
	case "canceled":
		return StateCanceled
	case "sent":
		return StateSent
	case "delivered", "read":
		return StateDelivered
	case "undelivered":
		return StateUndelivered
	default:
		return StateUnknown
	}
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
