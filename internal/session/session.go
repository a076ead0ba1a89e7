// ABOUTME: Session manager with fixed TTL, lazy expiry, and sliding refresh
// ABOUTME: Session ids are 32 random bytes, base64url encoded; rows live in the store

package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/homie/internal/store"
)

// DefaultTTL is how long a session lives after creation or refresh.
const DefaultTTL = 7 * 24 * time.Hour

// Manager creates, resolves, refreshes and deletes sessions.
type Manager struct {
	store  store.SessionStore
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a session manager. A non-positive ttl uses DefaultTTL.
func NewManager(s store.SessionStore, ttl time.Duration, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{
		store:  s,
		ttl:    ttl,
		now:    time.Now,
		logger: slog.Default().With("component", "session"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// New builds a session for userID without persisting it.
func (m *Manager) New(userID string) (*store.Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}
	now := m.now().UTC()
	return &store.Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}, nil
}

// Create builds and persists a new session for userID.
func (m *Manager) Create(ctx context.Context, userID string) (*store.Session, error) {
	sess, err := m.New(userID)
	if err != nil {
		return nil, err
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	m.logger.Debug("created session", "user_id", userID)
	return sess, nil
}

// Get returns a live session. Expired rows are deleted on sight and reported
// as store.ErrSessionNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*store.Session, error) {
	if id == "" {
		return nil, store.ErrSessionNotFound
	}

	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting session: %w", err)
	}

	if sess.Expired(m.now()) {
		if _, err := m.store.DeleteSession(ctx, id); err != nil {
			m.logger.Warn("failed to delete expired session", "error", err)
		}
		return nil, store.ErrSessionNotFound
	}

	return sess, nil
}

// Refresh resolves a live session and extends its deadline to now+TTL.
// Concurrent refreshes are last-write-wins.
func (m *Manager) Refresh(ctx context.Context, id string) (*store.Session, error) {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	expiresAt := m.now().UTC().Add(m.ttl)
	ok, err := m.store.UpdateSessionExpiry(ctx, id, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("refreshing session: %w", err)
	}
	if !ok {
		// Deleted between read and write.
		return nil, store.ErrSessionNotFound
	}

	sess.ExpiresAt = expiresAt
	return sess, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (m *Manager) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	ok, err := m.store.DeleteSession(ctx, id)
	if err != nil {
		return false, fmt.Errorf("deleting session: %w", err)
	}
	return ok, nil
}

// RevokeUser removes every session of a user and returns how many were dropped.
func (m *Manager) RevokeUser(ctx context.Context, userID string) (int64, error) {
	n, err := m.store.DeleteUserSessions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoking sessions: %w", err)
	}
	m.logger.Info("revoked user sessions", "user_id", userID, "count", n)
	return n, nil
}

// Sweep deletes all expired sessions once.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteExpiredSessions(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("sweeping sessions: %w", err)
	}
	return n, nil
}

// generateSessionID returns 32 random bytes as unpadded base64url.
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
