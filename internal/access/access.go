// ABOUTME: Inventory access control: ownership, membership, and authorization checks
// ABOUTME: Only the owner renames, deletes, or manages members; owner and members may read

package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/homie/internal/store"
)

// ErrNotFound is returned when the inventory doesn't exist.
var ErrNotFound = errors.New("inventory not found")

// ErrForbidden is returned when the inventory exists but the caller lacks
// the required role.
var ErrForbidden = errors.New("forbidden")

// DefaultInventoryName names inventories created without one.
const DefaultInventoryName = "New Inventory"

// DocumentCreator mints replicated documents. Inventory ids are document ids.
type DocumentCreator interface {
	Create(ctx context.Context) (string, error)
}

// Summary is an inventory as seen by one user.
type Summary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsOwner bool   `json:"isOwner"`
}

// Control manages who can reach which inventory.
type Control struct {
	store  store.AccessStore
	docs   DocumentCreator
	logger *slog.Logger
}

// New creates an access controller.
func New(s store.AccessStore, docs DocumentCreator) *Control {
	return &Control{
		store:  s,
		docs:   docs,
		logger: slog.Default().With("component", "access"),
	}
}

// CreateAccess records ownerID as the owner of an existing document.
// Returns store.ErrInventoryExists if the document already has a record.
func (c *Control) CreateAccess(ctx context.Context, inventoryID, ownerID, name string) (*store.Inventory, error) {
	inv := &store.Inventory{
		ID:        inventoryID,
		Name:      name,
		OwnerID:   ownerID,
		MemberIDs: []string{},
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.CreateInventory(ctx, inv); err != nil {
		if errors.Is(err, store.ErrInventoryExists) {
			return nil, err
		}
		return nil, fmt.Errorf("creating access: %w", err)
	}
	return inv, nil
}

// CreateInventory mints a new document and makes ownerID its owner. A blank
// name becomes DefaultInventoryName.
func (c *Control) CreateInventory(ctx context.Context, ownerID, name string) (*store.Inventory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultInventoryName
	}

	docID, err := c.docs.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating document: %w", err)
	}
	return c.CreateAccess(ctx, docID, ownerID, name)
}

// Get returns an inventory record or ErrNotFound.
func (c *Control) Get(ctx context.Context, inventoryID string) (*store.Inventory, error) {
	inv, err := c.store.GetInventory(ctx, inventoryID)
	if err != nil {
		if errors.Is(err, store.ErrInventoryNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting inventory: %w", err)
	}
	return inv, nil
}

// ListForUser returns every inventory userID owns or is a member of, in
// creation order.
func (c *Control) ListForUser(ctx context.Context, userID string) ([]*store.Inventory, error) {
	invs, err := c.store.ListInventoriesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing inventories: %w", err)
	}
	return invs, nil
}

// Summaries returns ListForUser as caller-relative summaries.
func (c *Control) Summaries(ctx context.Context, userID string) ([]Summary, error) {
	invs, err := c.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, len(invs))
	for i, inv := range invs {
		out[i] = Summary{ID: inv.ID, Name: inv.Name, IsOwner: inv.OwnerID == userID}
	}
	return out, nil
}

// IsOwner reports whether userID owns the inventory. Unknown inventories are
// owned by nobody.
func (c *Control) IsOwner(ctx context.Context, inventoryID, userID string) (bool, error) {
	inv, err := c.Get(ctx, inventoryID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return inv.OwnerID == userID, nil
}

// CanAccess reports whether userID is the owner or a member.
func (c *Control) CanAccess(ctx context.Context, inventoryID, userID string) (bool, error) {
	inv, err := c.Get(ctx, inventoryID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return hasAccess(inv, userID), nil
}

// RequireAccess returns the inventory if userID may read it, ErrNotFound if
// it doesn't exist, and ErrForbidden otherwise.
func (c *Control) RequireAccess(ctx context.Context, inventoryID, userID string) (*store.Inventory, error) {
	inv, err := c.Get(ctx, inventoryID)
	if err != nil {
		return nil, err
	}
	if !hasAccess(inv, userID) {
		return nil, ErrForbidden
	}
	return inv, nil
}

// RequireOwner returns the inventory if userID owns it, ErrNotFound if it
// doesn't exist, and ErrForbidden otherwise.
func (c *Control) RequireOwner(ctx context.Context, inventoryID, userID string) (*store.Inventory, error) {
	inv, err := c.Get(ctx, inventoryID)
	if err != nil {
		return nil, err
	}
	if inv.OwnerID != userID {
		return nil, ErrForbidden
	}
	return inv, nil
}

// AddMember grants userID access. Returns false if the inventory doesn't
// exist. Repeated adds and adding the owner succeed without change.
// Returns store.ErrUserNotFound for an unknown user.
func (c *Control) AddMember(ctx context.Context, inventoryID, userID string) (bool, error) {
	ok, err := c.store.AddMember(ctx, inventoryID, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return false, err
		}
		return false, fmt.Errorf("adding member: %w", err)
	}
	return ok, nil
}

// RemoveMember revokes userID's membership. Returns false if there was none.
func (c *Control) RemoveMember(ctx context.Context, inventoryID, userID string) (bool, error) {
	ok, err := c.store.RemoveMember(ctx, inventoryID, userID)
	if err != nil {
		return false, fmt.Errorf("removing member: %w", err)
	}
	return ok, nil
}

// DeleteAccess removes the access record. The document is untouched.
func (c *Control) DeleteAccess(ctx context.Context, inventoryID string) (bool, error) {
	ok, err := c.store.DeleteInventory(ctx, inventoryID)
	if err != nil {
		return false, fmt.Errorf("deleting access: %w", err)
	}
	return ok, nil
}

// Rename changes the inventory's display name. Returns false if it doesn't exist.
func (c *Control) Rename(ctx context.Context, inventoryID, name string) (bool, error) {
	ok, err := c.store.RenameInventory(ctx, inventoryID, name)
	if err != nil {
		return false, fmt.Errorf("renaming inventory: %w", err)
	}
	return ok, nil
}

// MembersWithNames returns the owner id and named members, or ErrNotFound.
func (c *Control) MembersWithNames(ctx context.Context, inventoryID string) (*store.InventoryMembers, error) {
	members, err := c.store.ListMembers(ctx, inventoryID)
	if err != nil {
		if errors.Is(err, store.ErrInventoryNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("listing members: %w", err)
	}
	return members, nil
}

// AvailableUsers lists users who could be added: everyone except the owner,
// current members, and excludeUserID. Unknown inventories yield none.
func (c *Control) AvailableUsers(ctx context.Context, inventoryID, excludeUserID string) ([]store.Member, error) {
	users, err := c.store.ListAvailableUsers(ctx, inventoryID, excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("listing available users: %w", err)
	}
	return users, nil
}

func hasAccess(inv *store.Inventory, userID string) bool {
	if inv.OwnerID == userID {
		return true
	}
	for _, id := range inv.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}
