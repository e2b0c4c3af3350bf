package state

import (
	"sync"
	"time"
)

type memoryManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewMemoryManager constructs the in-memory Manager implementation.
// State lives for the process lifetime and is rebuilt from nothing on
// restart.
func NewMemoryManager() Manager {
	return &memoryManager{
		sessions: make(map[int64]*Session),
	}
}

// SetState overwrites the state for a user, creating the entry if absent.
func (m *memoryManager) SetState(userID int64, st State, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[userID]
	if !ok {
		sess = &Session{}
		m.sessions[userID] = sess
	}
	sess.State = st
	sess.UpdatedAt = at
}

// GetState returns the current state and last-transition time for a user.
func (m *memoryManager) GetState(userID int64) (State, time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[userID]
	if !ok {
		return "", time.Time{}, false
	}
	return sess.State, sess.UpdatedAt, true
}

// Clear removes the session entry for a user.
func (m *memoryManager) Clear(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, userID)
}

// InProgress reports whether the user has any recorded state.
func (m *memoryManager) InProgress(userID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.sessions[userID]
	return ok
}
