// ABOUTME: WebAuthn credential persistence for SQLiteStore
// ABOUTME: Credentials are keyed by the authenticator's own id and never deleted by the app

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// CreateCredential stores a new WebAuthn credential.
func (s *SQLiteStore) CreateCredential(ctx context.Context, cred *Credential) error {
	if err := insertCredential(ctx, s.db, cred); err != nil {
		return err
	}
	s.logger.Info("created credential", "user_id", cred.UserID)
	return nil
}

func insertCredential(ctx context.Context, q dbtx, cred *Credential) error {
	transports, err := json.Marshal(cred.Transports)
	if err != nil {
		return fmt.Errorf("encoding transports: %w", err)
	}

	query := `
		INSERT INTO credentials (id, user_id, public_key, attestation_type, transports, sign_count, backup_eligible, backup_state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = q.ExecContext(ctx, query,
		cred.ID,
		cred.UserID,
		cred.PublicKey,
		cred.AttestationType,
		string(transports),
		cred.SignCount,
		cred.BackupEligible,
		cred.BackupState,
		formatTime(cred.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrCredentialExists
		}
		return fmt.Errorf("inserting credential: %w", err)
	}
	return nil
}

const credentialColumns = `id, user_id, public_key, attestation_type, transports, sign_count, backup_eligible, backup_state, created_at`

func scanCredential(row interface{ Scan(...any) error }) (*Credential, error) {
	var cred Credential
	var transports sql.NullString
	var createdAtStr string

	if err := row.Scan(
		&cred.ID,
		&cred.UserID,
		&cred.PublicKey,
		&cred.AttestationType,
		&transports,
		&cred.SignCount,
		&cred.BackupEligible,
		&cred.BackupState,
		&createdAtStr,
	); err != nil {
		return nil, err
	}

	if transports.Valid && transports.String != "" {
		if err := json.Unmarshal([]byte(transports.String), &cred.Transports); err != nil {
			return nil, fmt.Errorf("decoding transports: %w", err)
		}
	}

	var err error
	cred.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &cred, nil
}

// GetCredential retrieves a credential by its credential id.
func (s *SQLiteStore) GetCredential(ctx context.Context, id []byte) (*Credential, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE id = ?`, id)
	cred, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}
	return cred, nil
}

// ListCredentialsByUser retrieves all credentials for a user.
func (s *SQLiteStore) ListCredentialsByUser(ctx context.Context, userID string) ([]*Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE user_id = ? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var creds []*Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning credential: %w", err)
		}
		creds = append(creds, cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating credentials: %w", err)
	}

	return creds, nil
}

// UpdateCredentialSignCount updates the signature counter after a login.
func (s *SQLiteStore) UpdateCredentialSignCount(ctx context.Context, id []byte, signCount uint32) error {
	result, err := s.db.ExecContext(ctx, `UPDATE credentials SET sign_count = ? WHERE id = ?`, signCount, id)
	if err != nil {
		return fmt.Errorf("updating sign count: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrCredentialNotFound
	}

	return nil
}
