// ABOUTME: Atomic account creation for SQLiteStore
// ABOUTME: User, optional passkey, first inventory, and session are committed together or not at all

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateRegistration writes a new account in one transaction. On any
// failure nothing is persisted; a taken username returns ErrUsernameExists
// and an already registered passkey ErrCredentialExists.
func (s *SQLiteStore) CreateRegistration(ctx context.Context, reg *Registration) error {
	if reg.User == nil || reg.Inventory == nil || reg.Session == nil {
		return errors.New("registration requires user, inventory and session")
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertUser(ctx, tx, reg.User); err != nil {
			return err
		}
		if reg.Credential != nil {
			if err := insertCredential(ctx, tx, reg.Credential); err != nil {
				return err
			}
		}
		if err := insertInventory(ctx, tx, reg.Inventory); err != nil {
			return err
		}
		if err := insertSession(ctx, tx, reg.Session); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUsernameExists) || errors.Is(err, ErrCredentialExists) {
			return err
		}
		return fmt.Errorf("creating registration: %w", err)
	}

	s.logger.Info("registered user", "id", reg.User.ID, "inventory_id", reg.Inventory.ID,
		"passkey", reg.Credential != nil)
	return nil
}
