// ABOUTME: Inventory access persistence for SQLiteStore
// ABOUTME: Ownership lives on the inventory row, membership in inventory_members

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateInventory creates the access record for a document.
// Returns ErrInventoryExists if the id already has one.
func (s *SQLiteStore) CreateInventory(ctx context.Context, inv *Inventory) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertInventory(ctx, tx, inv); err != nil {
			return err
		}
		for _, memberID := range inv.MemberIDs {
			if memberID == inv.OwnerID {
				continue
			}
			if _, err := insertMember(ctx, tx, inv.ID, memberID, s.now()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("created inventory", "id", inv.ID, "owner_id", inv.OwnerID)
	return nil
}

func insertInventory(ctx context.Context, q dbtx, inv *Inventory) error {
	query := `
		INSERT INTO inventories (id, name, owner_id, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query, inv.ID, inv.Name, inv.OwnerID, inv.CreatedAt.UnixMilli())
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrInventoryExists
		}
		if isForeignKeyError(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("inserting inventory: %w", err)
	}
	return nil
}

func insertMember(ctx context.Context, q dbtx, inventoryID, userID string, now time.Time) (bool, error) {
	query := `
		INSERT INTO inventory_members (inventory_id, user_id, added_at)
		VALUES (?, ?, ?)
		ON CONFLICT (inventory_id, user_id) DO NOTHING
	`

	result, err := q.ExecContext(ctx, query, inventoryID, userID, formatTime(now))
	if err != nil {
		if isForeignKeyError(err) {
			return false, ErrUserNotFound
		}
		return false, fmt.Errorf("inserting member: %w", err)
	}
	return affected(result)
}

func scanInventory(row interface{ Scan(...any) error }) (*Inventory, error) {
	var inv Inventory
	var createdAtMs int64
	if err := row.Scan(&inv.ID, &inv.Name, &inv.OwnerID, &createdAtMs); err != nil {
		return nil, err
	}
	inv.CreatedAt = time.UnixMilli(createdAtMs).UTC()
	return &inv, nil
}

// GetInventory retrieves an inventory with its member ids.
func (s *SQLiteStore) GetInventory(ctx context.Context, id string) (*Inventory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, owner_id, created_at FROM inventories WHERE id = ?`, id)
	inv, err := scanInventory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInventoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying inventory: %w", err)
	}

	if err := s.loadMemberIDs(ctx, []*Inventory{inv}); err != nil {
		return nil, err
	}
	return inv, nil
}

// ListInventoriesForUser returns every inventory the user owns or is a member
// of, oldest first.
func (s *SQLiteStore) ListInventoriesForUser(ctx context.Context, userID string) ([]*Inventory, error) {
	query := `
		SELECT i.id, i.name, i.owner_id, i.created_at
		FROM inventories i
		WHERE i.owner_id = ?
		   OR EXISTS (
			SELECT 1 FROM inventory_members m
			WHERE m.inventory_id = i.id AND m.user_id = ?
		   )
		ORDER BY i.created_at ASC, i.id ASC
	`
	return s.queryInventories(ctx, query, userID, userID)
}

// ListInventories returns every inventory, oldest first.
func (s *SQLiteStore) ListInventories(ctx context.Context) ([]*Inventory, error) {
	return s.queryInventories(ctx, `SELECT id, name, owner_id, created_at FROM inventories ORDER BY created_at ASC, id ASC`)
}

func (s *SQLiteStore) queryInventories(ctx context.Context, query string, args ...any) ([]*Inventory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying inventories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var invs []*Inventory
	for rows.Next() {
		inv, err := scanInventory(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning inventory: %w", err)
		}
		invs = append(invs, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating inventories: %w", err)
	}

	if err := s.loadMemberIDs(ctx, invs); err != nil {
		return nil, err
	}
	return invs, nil
}

// loadMemberIDs fills MemberIDs for the given inventories with one query.
func (s *SQLiteStore) loadMemberIDs(ctx context.Context, invs []*Inventory) error {
	if len(invs) == 0 {
		return nil
	}

	byID := make(map[string]*Inventory, len(invs))
	args := make([]any, 0, len(invs))
	for _, inv := range invs {
		inv.MemberIDs = []string{}
		byID[inv.ID] = inv
		args = append(args, inv.ID)
	}

	query := `SELECT inventory_id, user_id FROM inventory_members WHERE inventory_id IN (?` +
		strings.Repeat(",?", len(invs)-1) + `) ORDER BY added_at ASC, user_id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var inventoryID, userID string
		if err := rows.Scan(&inventoryID, &userID); err != nil {
			return fmt.Errorf("scanning member: %w", err)
		}
		if inv, ok := byID[inventoryID]; ok {
			inv.MemberIDs = append(inv.MemberIDs, userID)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating members: %w", err)
	}
	return nil
}

// RenameInventory changes an inventory's display name.
func (s *SQLiteStore) RenameInventory(ctx context.Context, id, name string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE inventories SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return false, fmt.Errorf("renaming inventory: %w", err)
	}
	return affected(result)
}

// DeleteInventory removes the access record and its memberships. The
// document itself is left alone.
func (s *SQLiteStore) DeleteInventory(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM inventories WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting inventory: %w", err)
	}
	ok, err := affected(result)
	if ok {
		s.logger.Info("deleted inventory", "id", id)
	}
	return ok, err
}

// AddMember grants a user access to an inventory. Returns false if the
// inventory doesn't exist. Adding an existing member or the owner succeeds
// without change. Returns ErrUserNotFound for an unknown user.
func (s *SQLiteStore) AddMember(ctx context.Context, inventoryID, userID string) (bool, error) {
	var found bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var ownerID string
		err := tx.QueryRowContext(ctx, `SELECT owner_id FROM inventories WHERE id = ?`, inventoryID).Scan(&ownerID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("querying inventory owner: %w", err)
		}
		found = true

		if ownerID == userID {
			return nil
		}

		var exists int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("querying user: %w", err)
		}

		added, err := insertMember(ctx, tx, inventoryID, userID, s.now())
		if err != nil {
			return err
		}
		if added {
			s.logger.Info("added member", "inventory_id", inventoryID, "user_id", userID)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// RemoveMember revokes a user's membership. Returns false if there was none.
func (s *SQLiteStore) RemoveMember(ctx context.Context, inventoryID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM inventory_members WHERE inventory_id = ? AND user_id = ?`, inventoryID, userID)
	if err != nil {
		return false, fmt.Errorf("removing member: %w", err)
	}
	ok, err := affected(result)
	if ok {
		s.logger.Info("removed member", "inventory_id", inventoryID, "user_id", userID)
	}
	return ok, err
}

// ListMembers returns the owner id and the named members of an inventory,
// members ordered by name.
func (s *SQLiteStore) ListMembers(ctx context.Context, inventoryID string) (*InventoryMembers, error) {
	var ownerID string
	err := s.db.QueryRowContext(ctx, `SELECT owner_id FROM inventories WHERE id = ?`, inventoryID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInventoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying inventory owner: %w", err)
	}

	query := `
		SELECT u.id, u.name
		FROM inventory_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.inventory_id = ?
		ORDER BY u.name ASC, u.id ASC
	`
	members, err := s.queryMembers(ctx, query, inventoryID)
	if err != nil {
		return nil, err
	}

	return &InventoryMembers{OwnerID: ownerID, Members: members}, nil
}

// ListAvailableUsers returns users who could be added to an inventory: not
// the owner, not already a member, and not excludeUserID. Ordered by name.
// An unknown inventory yields no users.
func (s *SQLiteStore) ListAvailableUsers(ctx context.Context, inventoryID, excludeUserID string) ([]Member, error) {
	query := `
		SELECT u.id, u.name
		FROM users u
		JOIN inventories i ON i.id = ?
		WHERE u.id <> i.owner_id
		  AND u.id <> ?
		  AND NOT EXISTS (
			SELECT 1 FROM inventory_members m
			WHERE m.inventory_id = i.id AND m.user_id = u.id
		  )
		ORDER BY u.name ASC, u.id ASC
	`
	return s.queryMembers(ctx, query, inventoryID, excludeUserID)
}

func (s *SQLiteStore) queryMembers(ctx context.Context, query string, args ...any) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	members := []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return members, nil
}
