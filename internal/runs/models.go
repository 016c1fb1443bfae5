package runs

import "time"

// Run groups the attempts of one campaign dispatch and carries derived
// aggregate counters.
//
// Counters are never incremented in place: they are recomputed from the
// attempt log so partial failures and out-of-order webhook delivery
// cannot drift them. Invariant after every settle point:
// 0 <= Answered <= Completed <= Total.
type Run struct {
	ID string `json:"id" db:"id"`

	// SnapshotID references the immutable message content captured at
	// dispatch time; MessageID is the template it came from, if any.
	SnapshotID string `json:"snapshot_id,omitempty" db:"snapshot_id"`
	MessageID  string `json:"message_id,omitempty" db:"message_id"`

	// GroupID is set when the run targeted a group.
	GroupID string `json:"group_id,omitempty" db:"group_id"`

	Channel string `json:"channel" db:"channel"`

	// GatherDigit asks voice callees to confirm with a key press.
	GatherDigit bool `json:"gather_digit" db:"gather_digit"`

	// CustomData is propagated onto every attempt spawned under this run.
	CustomData map[string]string `json:"custom_data,omitempty" db:"custom_data"`

	Status Status `json:"status" db:"status"`

	Total     int `json:"total" db:"total"`
	Completed int `json:"completed" db:"completed"`
	Answered  int `json:"answered" db:"answered"`

	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

// Open reports whether the run can still transition to completed.
func (s Status) Open() bool { return s == StatusInProgress }
