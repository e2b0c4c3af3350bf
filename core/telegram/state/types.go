package state

import "time"

// State identifies a conversation step. The empty value means the user
// has no recorded state yet.
type State string

// Session stores the current conversation state for a user together with
// the timestamp of the last transition.
type Session struct {
	State     State
	UpdatedAt time.Time
}

// Manager owns per-user conversation state for the lifetime of the
// process. Entries are never expired automatically; UpdatedAt allows
// external pruning if that ever becomes necessary.
type Manager interface {
	// SetState overwrites the state for a user, creating the entry if absent.
	SetState(userID int64, st State, at time.Time)
	// GetState returns the current state and last-transition time.
	// ok is false when the user has no recorded state.
	GetState(userID int64) (st State, at time.Time, ok bool)
	// Clear removes the entry for a user.
	Clear(userID int64)
	// InProgress reports whether the user has any recorded state.
	InProgress(userID int64) bool
}
