// ABOUTME: In-memory session store for tests that need to inject failures
// ABOUTME: Lets session manager tests run without SQLite

package store

import (
	"context"
	"sync"
	"time"
)

// MockStore is an in-memory SessionStore. Setting Err makes every call fail
// with it; FailDelete fails only DeleteSession.
type MockStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	Err        error
	FailDelete error
}

var _ SessionStore = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{sessions: make(map[string]*Session)}
}

// CreateSession stores a copy of session.
func (m *MockStore) CreateSession(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	cp := *session
	m.sessions[session.ID] = &cp
	return nil
}

// GetSession returns a copy of the session or ErrSessionNotFound.
func (m *MockStore) GetSession(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

// UpdateSessionExpiry moves the deadline of an existing session.
func (m *MockStore) UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	s, ok := m.sessions[id]
	if !ok {
		return false, nil
	}
	s.ExpiresAt = expiresAt
	return true, nil
}

// DeleteSession removes a session.
func (m *MockStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	if m.FailDelete != nil {
		return false, m.FailDelete
	}
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok, nil
}

// DeleteUserSessions removes every session of userID.
func (m *MockStore) DeleteUserSessions(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	var n int64
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// DeleteExpiredSessions removes sessions whose deadline is before now.
func (m *MockStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	var n int64
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (m *MockStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
