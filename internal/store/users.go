// ABOUTME: User account persistence for SQLiteStore
// ABOUTME: Username is optional and unique; passkey accounts carry no username or password

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateUser creates a new user.
// Returns ErrUsernameExists if the username is already taken.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	if err := insertUser(ctx, s.db, user); err != nil {
		return err
	}
	s.logger.Info("created user", "id", user.ID, "username", user.Username)
	return nil
}

func insertUser(ctx context.Context, q dbtx, user *User) error {
	query := `
		INSERT INTO users (id, username, name, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		user.ID,
		nullString(user.Username),
		user.Name,
		nullString(user.PasswordHash),
		formatTime(user.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

const userColumns = `id, username, name, password_hash, created_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var user User
	var username, passwordHash sql.NullString
	var createdAtStr string

	if err := row.Scan(&user.ID, &username, &user.Name, &passwordHash, &createdAtStr); err != nil {
		return nil, err
	}

	user.Username = username.String
	user.PasswordHash = passwordHash.String

	var err error
	user.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &user, nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by username: %w", err)
	}
	return user, nil
}

// ListUsers returns all users ordered by name.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}

	return users, nil
}

// UpdateUserName changes a user's display name.
func (s *SQLiteStore) UpdateUserName(ctx context.Context, id, name string) error {
	return s.updateUser(ctx, `UPDATE users SET name = ? WHERE id = ?`, name, id)
}

// UpdateUserPassword updates a user's password hash.
func (s *SQLiteStore) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	return s.updateUser(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
}

func (s *SQLiteStore) updateUser(ctx context.Context, query, value, id string) error {
	result, err := s.db.ExecContext(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}
