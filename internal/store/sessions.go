// ABOUTME: Login session persistence for SQLiteStore
// ABOUTME: expires_at is stored as unix milliseconds so expiry checks are numeric

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	return insertSession(ctx, s.db, session)
}

func insertSession(ctx context.Context, q dbtx, session *Session) error {
	query := `
		INSERT INTO sessions (id, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		formatTime(session.CreatedAt),
		session.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID. Expiry is not checked here; callers
// decide what an expired row means.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT id, user_id, created_at, expires_at
		FROM sessions
		WHERE id = ?
	`

	var session Session
	var createdAtStr string
	var expiresAtMs int64

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&session.UserID,
		&createdAtStr,
		&expiresAtMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	session.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	session.ExpiresAt = time.UnixMilli(expiresAtMs).UTC()

	return &session, nil
}

// UpdateSessionExpiry moves a session's deadline. Returns false if the
// session no longer exists.
func (s *SQLiteStore) UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE sessions SET expires_at = ? WHERE id = ?`, expiresAt.UnixMilli(), id)
	if err != nil {
		return false, fmt.Errorf("updating session expiry: %w", err)
	}
	return affected(result)
}

// DeleteSession deletes a session. Returns false if there was nothing to delete.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting session: %w", err)
	}
	return affected(result)
}

// DeleteUserSessions removes every session belonging to a user.
func (s *SQLiteStore) DeleteUserSessions(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("deleting user sessions: %w", err)
	}
	return result.RowsAffected()
}

// DeleteExpiredSessions removes all sessions whose deadline is before now.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	if n > 0 {
		s.logger.Debug("deleted expired sessions", "count", n)
	}
	return n, nil
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return n > 0, nil
}
