package gateway

import (
	"net/http"
	"strings"
	"time"
)

// Webhook form parsing for Twilio status callbacks. Twilio posts
// application/x-www-form-urlencoded by default.
//
// Keep it minimal and provider-adapter-only; business logic lives
// behind the StatusSink.

// VoiceStatusForm captures the subset of voice status callback fields
// the engine cares about.
type VoiceStatusForm struct {
	CallSid    string
	CallStatus string
	From       string
	To         string
	Timestamp  string
}

func ParseVoiceStatus(r *http.Request) (VoiceStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return VoiceStatusForm{}, err
	}
	return VoiceStatusForm{
		CallSid:    r.PostFormValue("CallSid"),
		CallStatus: r.PostFormValue("CallStatus"),
		From:       strings.TrimSpace(r.PostFormValue("From")),
		To:         strings.TrimSpace(r.PostFormValue("To")),
		Timestamp:  r.PostFormValue("Timestamp"),
	}, nil
}

// GatherForm captures the DTMF digit posted by a Gather action.
type GatherForm struct {
	CallSid string
	Digits  string
}

func ParseGather(r *http.Request) (GatherForm, error) {
	if err := r.ParseForm(); err != nil {
		return GatherForm{}, err
	}
	return GatherForm{
		CallSid: r.PostFormValue("CallSid"),
		Digits:  strings.TrimSpace(r.PostFormValue("Digits")),
	}, nil
}

// SMSStatusForm captures a message delivery receipt.
type SMSStatusForm struct {
	MessageSid    string
	MessageStatus string
	To            string
}

func ParseSMSStatus(r *http.Request) (SMSStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return SMSStatusForm{}, err
	}
	sid := r.PostFormValue("MessageSid")
	if sid == "" {
		// Older callbacks use SmsSid.
		sid = r.PostFormValue("SmsSid")
	}
	return SMSStatusForm{
		MessageSid:    sid,
		MessageStatus: r.PostFormValue("MessageStatus"),
		To:            strings.TrimSpace(r.PostFormValue("To")),
	}, nil
}

// StatusUpdate is the provider-initiated event handed to the engine.
type StatusUpdate struct {
	ProviderTxID string
	Channel      ChannelKind
	State        DeliveryState
	Digit        string
	OccurredAt   time.Time
}

func (f VoiceStatusForm) ToStatusUpdate(occurredAt time.Time) StatusUpdate {
	return StatusUpdate{
		ProviderTxID: f.CallSid,
		Channel:      ChannelKindVoice,
		State:        MapTwilioStatus(f.CallStatus),
		OccurredAt:   occurredAt,
	}
}

func (f GatherForm) ToStatusUpdate(occurredAt time.Time) StatusUpdate {
	return StatusUpdate{
		ProviderTxID: f.CallSid,
		Channel:      ChannelKindVoice,
		State:        StateCompleted,
		Digit:        f.Digits,
		OccurredAt:   occurredAt,
	}
}

func (f SMSStatusForm) ToStatusUpdate(occurredAt time.Time) StatusUpdate {
	return StatusUpdate{
		ProviderTxID: f.MessageSid,
		Channel:      ChannelKindSMS,
		State:        MapTwilioStatus(f.MessageStatus),
		OccurredAt:   occurredAt,
	}
}
