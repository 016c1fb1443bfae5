package attempts

import "time"

// Attempt is one logged try to reach one endpoint via one channel.
//
// Rows are append-biased: the engine appends one row per real attempt
// and only ever moves an existing row toward a terminal state. Two
// writers can race on the same row only through the provider
// transaction id (webhook vs poll); terminal statuses are idempotent
// supersets of earlier ones, so last-writer-wins is acceptable there.
type Attempt struct {
	ID string `json:"id" db:"id"`

	ContactID  string `json:"contact_id" db:"contact_id"`
	EndpointID string `json:"endpoint_id,omitempty" db:"endpoint_id"`
	Number     string `json:"number,omitempty" db:"number"`

	// RunID is empty for unattached manual dials.
	RunID string `json:"run_id,omitempty" db:"run_id"`

	// ProviderTxID is assigned once the provider accepts the request.
	ProviderTxID string `json:"provider_tx_id,omitempty" db:"provider_tx_id"`

	Channel Channel `json:"channel" db:"channel"`
	Status  Status  `json:"status" db:"status"`

	// Answered and Digit are voice-only confirmation signals.
	Answered bool   `json:"answered" db:"answered"`
	Digit    string `json:"digit,omitempty" db:"digit"`

	// SnapshotID references the immutable message content used.
	SnapshotID string `json:"snapshot_id,omitempty" db:"snapshot_id"`

	// CustomData is copied from the owning run at attempt creation.
	CustomData map[string]string `json:"custom_data,omitempty" db:"custom_data"`

	// Detail carries a short provider/engine failure description.
	Detail string `json:"detail,omitempty" db:"detail"`

	StartedAt time.Time `json:"started_at" db:"started_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Channel string

const (
	ChannelVoice Channel = "voice"
	ChannelSMS   Channel = "sms"
)

type Status string

const (
	StatusInitiated  Status = "initiated"
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusCompleted  Status = "completed"
	StatusDelivered  Status = "delivered"
	StatusNoAnswer   Status = "no_answer"
	StatusBusy       Status = "busy"
	StatusFailed     Status = "failed"
	StatusError      Status = "error"
	StatusManual     Status = "manual"
	StatusCustom     Status = "custom"
)

// Terminal reports whether the status counts toward a run's completed
// counter. sent/initiated/queued/in_progress remain open until a
// delivery receipt, status callback or poll resolves them.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusDelivered, StatusNoAnswer, StatusBusy,
		StatusFailed, StatusError, StatusManual, StatusCustom:
		return true
	default:
		return false
	}
}

// Confirmed reports whether the attempt proves the contact was reached:
// a pressed digit, an answered call, or a delivered message.
func (a Attempt) Confirmed() bool {
	if a.Answered || a.Digit != "" {
		return true
	}
	return a.Status == StatusCompleted || a.Status == StatusDelivered
}
