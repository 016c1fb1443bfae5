package messages

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is a stored, reusable notification template.
type Message struct {
	ID      string  `json:"id" db:"id"`
	Name    string  `json:"name" db:"name"`
	Body    string  `json:"body" db:"body"`
	Channel Channel `json:"channel" db:"channel"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Channel string

const (
	ChannelVoice Channel = "voice"
	ChannelSMS   Channel = "sms"
	ChannelBoth  Channel = "both"
)

func ValidChannel(c Channel) bool {
	switch c {
	case ChannelVoice, ChannelSMS, ChannelBoth:
		return true
	default:
		return false
	}
}

// Repository is the read-side contract for stored messages.
type Repository interface {
	Get(ctx context.Context, id string) (Message, error)
}

var (
	ErrNotFound      = errors.New("messages: not found")
	ErrEmptySource   = errors.New("messages: source requires a message id or inline body")
	ErrEmptyBody     = errors.New("messages: body is empty")
	ErrInvalidSource = errors.New("messages: exactly one of message id or inline body must be set")
)

// Source selects the content for a run: either a stored template or ad
// hoc inline text. Exactly one must be set.
type Source struct {
	MessageID string
	Inline    string
}

func (s Source) Validate() error {
	hasID := s.MessageID != ""
	hasInline := strings.TrimSpace(s.Inline) != ""
	if !hasID && !hasInline {
		return ErrEmptySource
	}
	if hasID && hasInline {
		return ErrInvalidSource
	}
	return nil
}

type SnapshotKind string

const (
	KindTemplate SnapshotKind = "template"
	KindInline   SnapshotKind = "inline"
)

// Snapshot is the immutable content captured at dispatch time. Attempts
// reference the snapshot, not the template, so the audit trail survives
// concurrent template edits and distinguishes templated from custom
// content.
type Snapshot struct {
	ID        string       `json:"id" db:"id"`
	MessageID string       `json:"message_id,omitempty" db:"message_id"`
	Body      string       `json:"body" db:"body"`
	Kind      SnapshotKind `json:"kind" db:"kind"`
	TakenAt   time.Time    `json:"taken_at" db:"taken_at"`
}

// Resolve materializes a Source into a Snapshot, fetching the template
// body exactly once. Retries under the same run reuse the snapshot.
func Resolve(ctx context.Context, repo Repository, src Source, now time.Time) (Snapshot, error) {
	if err := src.Validate(); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{ID: uuid.NewString(), TakenAt: now.UTC()}
	if src.MessageID != "" {
		if repo == nil {
			return Snapshot{}, errors.New("messages: repository not configured")
		}
		m, err := repo.Get(ctx, src.MessageID)
		if err != nil {
			return Snapshot{}, err
		}
		snap.MessageID = m.ID
		snap.Body = m.Body
		snap.Kind = KindTemplate
	} else {
		snap.Body = strings.TrimSpace(src.Inline)
		snap.Kind = KindInline
	}

	if snap.Body == "" {
		return Snapshot{}, ErrEmptyBody
	}
	return snap, nil
}
