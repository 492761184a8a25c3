package sessions

import (
	"context"
	"errors"
	"time"
)

// State is the dialog position persisted between turns. The engine advances
// it by exactly one token per turn.
type State string

const (
	// StateMain is the initial state: the caller is at the top-level menu.
	StateMain State = "MAIN"

	// Registration flow.
	StateRegName     State = "REG_NAME"
	StateRegLocation State = "REG_LOCATION"
	StateRegConfirm  State = "REG_CONFIRM"

	// Emergency-report flow.
	StateEmergencyType    State = "EMERGENCY_TYPE"
	StateEmergencyConfirm State = "EMERGENCY_CONFIRM"

	// StateTerminated is the only terminal state. A session that reaches it
	// is removed from the store and never reused.
	StateTerminated State = "TERMINATED"
)

// Collected field keys. Fields are only ever added during a flow; a value is
// never silently overwritten mid-flow.
const (
	FieldName      = "name"
	FieldLocation  = "location"
	FieldAlertType = "alertType"
)

// Session is the persisted per-dialog record. Store implementations hand out
// copies; mutating a returned Session has no effect on stored state outside
// an Update mutator.
type Session struct {
	SessionID   string            `json:"session_id"`
	PhoneNumber string            `json:"phone_number"`
	State       State             `json:"state"`
	Collected   map[string]string `json:"collected,omitempty"`
	// Retries counts consecutive re-prompts for the field currently being
	// captured. Reset whenever the state advances.
	Retries      int       `json:"retries,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Field returns a collected value, tolerating a nil map.
func (s *Session) Field(key string) string {
	if s.Collected == nil {
		return ""
	}
	return s.Collected[key]
}

// SetField records a captured value, allocating the map on first use.
func (s *Session) SetField(key, value string) {
	if s.Collected == nil {
		s.Collected = make(map[string]string)
	}
	s.Collected[key] = value
}

var (
	// ErrSessionNotFound indicates the session is absent or expired. Callers
	// treat both identically: the dialog starts over at MAIN.
	ErrSessionNotFound = errors.New("sessions: session not found")
	// ErrSessionExists is returned by Create when the ID is already live,
	// which happens when gateway retransmissions race on the first turn.
	ErrSessionExists = errors.New("sessions: session already exists")
)

// Store is the capability interface the dialog engine holds on session
// storage. Implementations MUST be safe for concurrent use.
type Store interface {
	// Get returns a copy of the live session, or ErrSessionNotFound if the ID
	// is unknown or the session has exceeded its inactivity window.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Create persists a fresh session in StateMain and returns a copy of it.
	// Returns ErrSessionExists if the ID is already live.
	Create(ctx context.Context, sessionID, phoneNumber string) (*Session, error)

	// Update applies fn to the stored session and persists the result,
	// refreshing the inactivity window. Calls for the same sessionID are
	// serialized; calls for different IDs proceed independently. If fn
	// returns an error the session is left unchanged and the error is
	// returned verbatim.
	Update(ctx context.Context, sessionID string, fn func(*Session) error) (*Session, error)

	// Remove deletes the session. Removing an absent session is not an error.
	Remove(ctx context.Context, sessionID string) error

	// SweepExpired proactively removes sessions past their inactivity window
	// and reports how many were dropped. Backends whose storage expires keys
	// natively may return 0 without scanning.
	SweepExpired(ctx context.Context) (int, error)

	// Close releases background resources held by the store.
	Close() error
}
