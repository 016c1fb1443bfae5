package contacts

import "time"

// Contact is a person reachable through one or more phone endpoints.
//
// Contacts are created and edited by the management surface; the
// orchestration engine only ever reads snapshots of them. A contact with
// zero endpoints is valid but undialable.
type Contact struct {
	ID    string `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Notes string `json:"notes,omitempty" db:"notes"`

	// Endpoints are kept sorted by (Priority asc, insertion order).
	Endpoints []Endpoint `json:"endpoints"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Endpoint is a single reachable phone number with a dial priority.
// Lower priority is tried first; ties break by insertion order (Position).
type Endpoint struct {
	ID        string `json:"id" db:"id"`
	ContactID string `json:"contact_id" db:"contact_id"`

	// Number is E.164 where possible.
	Number string `json:"number" db:"number"`

	Priority int `json:"priority" db:"priority"`

	// Position is the insertion order within the contact, used as the
	// priority tie-break.
	Position int `json:"position" db:"position"`
}

// Dialable reports whether the contact has at least one endpoint.
func (c Contact) Dialable() bool { return len(c.Endpoints) > 0 }
