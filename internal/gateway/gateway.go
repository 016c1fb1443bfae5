package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DeliveryGateway is the provider-agnostic interface used by the dialing
// paths to place calls and messages.
//
// Rules:
// - No provider SDK or HTTP calls outside gateway adapters.
// - The adapter never retries; retry policy lives in the dialer so the
//   attempt log keeps one row per real attempt.
// - Status converges on the attempt row from two directions: PollStatus
//   (best-effort pull) and the provider webhooks (push); both identify
//   the row by the provider transaction id.
type DeliveryGateway interface {
	Name() string
	HealthCheck(ctx context.Context) error

	PlaceCall(ctx context.Context, req PlaceCallRequest) (providerTxID string, err error)
	SendMessage(ctx context.Context, req SendMessageRequest) (providerTxID string, err error)
	PollStatus(ctx context.Context, q StatusQuery) (DeliveryState, error)
}

// PlaceCallRequest places one outbound voice call. The adapter builds
// the provider callback URLs from the attempt/snapshot ids so the
// answer webhook can render the right prompt.
type PlaceCallRequest struct {
	// To is E.164 where possible.
	To string

	AttemptID  string
	SnapshotID string

	// GatherDigit asks the callee to press a key to confirm.
	GatherDigit bool

	// Timeout is how long the provider lets the call ring.
	Timeout time.Duration
}

type SendMessageRequest struct {
	To   string
	Body string

	AttemptID string
}

type ChannelKind string

const (
	ChannelKindVoice ChannelKind = "voice"
	ChannelKindSMS   ChannelKind = "sms"
)

type StatusQuery struct {
	ProviderTxID string
	Channel      ChannelKind
}

// DeliveryState is the provider-agnostic view of one transaction's
// progress.
type DeliveryState string

const (
	StateQueued     DeliveryState = "queued"
	StateRinging    DeliveryState = "ringing"
	StateInProgress DeliveryState = "in_progress"
	StateCompleted  DeliveryState = "completed"
	StateNoAnswer   DeliveryState = "no_answer"
	StateBusy       DeliveryState = "busy"
	StateFailed     DeliveryState = "failed"
	StateCanceled   DeliveryState = "canceled"

	StateSent        DeliveryState = "sent"
	StateDelivered   DeliveryState = "delivered"
	StateUndelivered DeliveryState = "undelivered"

	StateUnknown DeliveryState = "unknown"
)

// ErrorKind classifies gateway failures for the caller's retry policy.
type ErrorKind string

const (
	// KindTransient covers rate limits, timeouts and provider 5xx;
	// the caller may back off and try the next endpoint.
	KindTransient ErrorKind = "transient"

	// KindRejected covers deterministic refusals (invalid number,
	// permanently undeliverable); retrying is pointless.
	KindRejected ErrorKind = "rejected"
)

// Error is the gateway failure taxonomy.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NewTransient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

func NewRejected(op string, err error) *Error {
	return &Error{Kind: KindRejected, Op: op, Err: err}
}

// IsRejected reports whether err is a deterministic, non-retryable
// gateway refusal.
func IsRejected(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == KindRejected
}

// IsTransient reports whether err is a retryable gateway failure.
func IsTransient(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == KindTransient
}
