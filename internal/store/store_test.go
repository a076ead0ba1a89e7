// ABOUTME: Tests for inventory access, documents, and atomic registration
// ABOUTME: Covers membership idempotency, available users, change sequencing, and rollback on conflict

package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupSharingStore creates alice (owner of inv-1), bob and carol.
func setupSharingStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, newUser("alice", "alice", "Alice")))
	require.NoError(t, store.CreateUser(ctx, newUser("bob", "bob", "Bob")))
	require.NoError(t, store.CreateUser(ctx, newUser("carol", "carol", "Carol")))
	require.NoError(t, store.CreateInventory(ctx, &Inventory{
		ID:        "inv-1",
		Name:      "Kitchen",
		OwnerID:   "alice",
		CreatedAt: time.Now(),
	}))
	return store
}

func TestStore_CreateInventory(t *testing.T) {
	store := setupSharingStore(t)
	ctx := context.Background()

	inv, err := store.GetInventory(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "Kitchen", inv.Name)
	assert.Equal(t, "alice", inv.OwnerID)
	assert.Empty(t, inv.MemberIDs)

	err = store.CreateInventory(ctx, &Inventory{ID: "inv-1", Name: "Again", OwnerID: "bob", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, ErrInventoryExists)

	_, err = store.GetInventory(ctx, "missing")
	assert.ErrorIs(t, err, ErrInventoryNotFound)
}

func TestStore_CreateInventory_WithMembers(t *testing.T) {
	store := setupSharingStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateInventory(ctx, &Inventory{
		ID:        "inv-2",
		Name:      "Garage",
		OwnerID:   "bob",
		MemberIDs: []string{"bob", "carol"},
		CreatedAt: time.Now(),
	}))

	inv, err := store.GetInventory(ctx, "inv-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, inv.MemberIDs, "owner is never stored as a member")
}

func TestStore_AddMember(t *testing.T) {
	store := setupSharingStore(t)
	ctx := context.Background()

	ok, err := store.AddMember(ctx, "inv-1", "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	// Idempotent
	ok, err = store.AddMember(ctx, "inv-1", "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	// Owner is a no-op success
	ok, err = store.AddMember(ctx, "inv-1", "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	inv, err := store.GetInventory(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, inv.MemberIDs)

	ok, err = store.AddMember(ctx, "missing", "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.AddMember(ctx, "inv-1", "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStore_AddMember_Concurrent(t *testing.T) {
	store := setupSharingStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.AddMember(ctx, "inv-1", "bob"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent AddMember failed: %v", err)
	}

	inv, err := store.GetInventory(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, inv.MemberIDs)
}

func TestStore_RemoveMember(t *testing.T) {
	store := setupSharingStore(t)
	ctx := context.Background()

	_, err := store.AddMember(ctx, "inv-1", "bob")
	require.NoError(t, err)

	ok, err := store.RemoveMember(ctx, "inv-1", "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.RemoveMember(ctx, "inv-1", "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	// Remove then add restores membership
	_, err = store.AddMember(ctx, "inv-1", "bob")
	require.NoError(t, err)
	inv, err := store.GetInventory(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, inv.MemberIDs)
}

func TestStore_ListInventoriesForUser(t *testing.T) {
	store := setupSharingStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	require.NoError(t, store.CreateInventory(ctx, &Inventory{ID: "inv-b", Name: "Bob's", OwnerID: "bob", CreatedAt: base}))
	require.NoError(t, store.CreateInventory(ctx, &Inventory{ID: "inv-c", Name: "Carol's", OwnerID: "carol", CreatedAt: base.Add(time.Minute)}))
	_, err := store.AddMember(ctx, "inv-c", "bob")
	require.NoError(t, err)

	invs, err := store.ListInventoriesForUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, invs, 2)
	assert.Equal(t, "inv-b", invs[0].ID)
	assert.Equal(t, "inv-c", invs[1].ID)
	assert.Equal(t, []string{"bob"}, invs[1].MemberIDs)

	invs, err = store.ListInventoriesForUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, invs)

	all, err := store.ListInventories(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_RenameAndDeleteInventory(t *testing.T) {
	store := setupSharingStore(t)
	ctx := context.Background()

	_, err := store.AddMember(ctx, "inv-1", "bob")
	require.NoError(t, err)

	ok, err := store.RenameInventory(ctx, "inv-1", "Pantry")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.RenameInventory(ctx, "missing", "Pantry")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.DeleteInventory(ctx, "inv-1")
	require.NoError(t, err)
	assert.True(t, ok)

	invs, err := store.ListInventoriesForUser(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, invs, "membership goes with the inventory")

	ok, err = store.DeleteInventory(ctx, "inv-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ListMembers(t *testing.T) {
	store := setupSharingStore(t)
	ctx := context.Background()

	_, err := store.AddMember(ctx, "inv-1", "carol")
	require.NoError(t, err)
	_, err = store.AddMember(ctx, "inv-1", "bob")
	require.NoError(t, err)

	members, err := store.ListMembers(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", members.OwnerID)
	assert.Equal(t, []Member{{ID: "bob", Name: "Bob"}, {ID: "carol", Name: "Carol"}}, members.Members)

	_, err = store.ListMembers(ctx, "missing")
	assert.ErrorIs(t, err, ErrInventoryNotFound)
}

func TestStore_ListAvailableUsers(t *testing.T) {
	store := setupSharingStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, newUser("dave", "dave", "Dave")))

	_, err := store.AddMember(ctx, "inv-1", "carol")
	require.NoError(t, err)

	available, err := store.ListAvailableUsers(ctx, "inv-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, []Member{{ID: "bob", Name: "Bob"}, {ID: "dave", Name: "Dave"}}, available)

	// The caller is excluded too
	available, err = store.ListAvailableUsers(ctx, "inv-1", "dave")
	require.NoError(t, err)
	assert.Equal(t, []Member{{ID: "bob", Name: "Bob"}}, available)

	available, err = store.ListAvailableUsers(ctx, "missing", "alice")
	require.NoError(t, err)
	assert.Empty(t, available)
}

func TestStore_DeleteInventoryKeepsDocument(t *testing.T) {
	store := setupSharingStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateDocument(ctx, &Document{ID: "inv-1", CreatedAt: time.Now()}))
	_, err := store.DeleteInventory(ctx, "inv-1")
	require.NoError(t, err)

	_, err = store.GetDocument(ctx, "inv-1")
	assert.NoError(t, err)
}

func TestStore_Documents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateDocument(ctx, &Document{ID: "doc-1", CreatedAt: time.Now()}))

	for i := 1; i <= 3; i++ {
		c, err := store.AppendChange(ctx, "doc-1", "alice", []byte(fmt.Sprintf("op-%d", i)))
		require.NoError(t, err)
		assert.Equal(t, int64(i), c.Seq)
	}

	doc, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), doc.HeadSeq)

	changes, err := store.ListChanges(ctx, "doc-1", 1, 0)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, []byte("op-2"), changes[0].Payload)
	assert.Equal(t, int64(3), changes[1].Seq)

	changes, err = store.ListChanges(ctx, "doc-1", 0, 1)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, int64(1), changes[0].Seq)

	_, err = store.AppendChange(ctx, "missing", "alice", []byte("x"))
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	_, err = store.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestStore_CreateRegistration(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	reg := &Registration{
		User:      &User{ID: "u1", Username: "alice", Name: "Alice", PasswordHash: "h", CreatedAt: now},
		Inventory: &Inventory{ID: "doc-1", Name: "Inventory", OwnerID: "u1", CreatedAt: now},
		Session:   &Session{ID: "s1", UserID: "u1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	}
	require.NoError(t, store.CreateRegistration(ctx, reg))

	_, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	invs, err := store.ListInventoriesForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, "Inventory", invs[0].Name)
	_, err = store.GetSession(ctx, "s1")
	require.NoError(t, err)
}

func TestStore_CreateRegistration_Passkey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	reg := &Registration{
		User:       &User{ID: "u1", Name: "Alice", CreatedAt: now},
		Credential: &Credential{ID: []byte("cred"), UserID: "u1", PublicKey: []byte("pk"), CreatedAt: now},
		Inventory:  &Inventory{ID: "doc-1", Name: "Inventory", OwnerID: "u1", CreatedAt: now},
		Session:    &Session{ID: "s1", UserID: "u1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	}
	require.NoError(t, store.CreateRegistration(ctx, reg))

	cred, err := store.GetCredential(ctx, []byte("cred"))
	require.NoError(t, err)
	assert.Equal(t, "u1", cred.UserID)
}

func TestStore_CreateRegistration_DuplicateRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := &Registration{
		User:      &User{ID: "u1", Username: "alice", Name: "Alice", CreatedAt: now},
		Inventory: &Inventory{ID: "doc-1", Name: "Inventory", OwnerID: "u1", CreatedAt: now},
		Session:   &Session{ID: "s1", UserID: "u1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	}
	require.NoError(t, store.CreateRegistration(ctx, first))

	second := &Registration{
		User:      &User{ID: "u2", Username: "alice", Name: "Imposter", CreatedAt: now},
		Inventory: &Inventory{ID: "doc-2", Name: "Inventory", OwnerID: "u2", CreatedAt: now},
		Session:   &Session{ID: "s2", UserID: "u2", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	}
	err := store.CreateRegistration(ctx, second)
	require.ErrorIs(t, err, ErrUsernameExists)

	_, err = store.GetUser(ctx, "u2")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = store.GetInventory(ctx, "doc-2")
	assert.ErrorIs(t, err, ErrInventoryNotFound)
	_, err = store.GetSession(ctx, "s2")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
	invs, err := store.ListInventories(ctx)
	require.NoError(t, err)
	assert.Len(t, invs, 1)
}

func TestStore_CreateRegistration_LateFailureRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.CreateUser(ctx, newUser("existing", "bob", "Bob")))
	require.NoError(t, store.CreateInventory(ctx, &Inventory{ID: "doc-taken", Name: "x", OwnerID: "existing", CreatedAt: now}))

	// Inventory id collides after the user row is written.
	reg := &Registration{
		User:      &User{ID: "u1", Username: "alice", Name: "Alice", CreatedAt: now},
		Inventory: &Inventory{ID: "doc-taken", Name: "Inventory", OwnerID: "u1", CreatedAt: now},
		Session:   &Session{ID: "s1", UserID: "u1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	}
	err := store.CreateRegistration(ctx, reg)
	require.ErrorIs(t, err, ErrInventoryExists)

	_, err = store.GetUser(ctx, "u1")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStore_CreateRegistration_DuplicateCredential(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := &Registration{
		User:       &User{ID: "u1", Name: "Alice", CreatedAt: now},
		Credential: &Credential{ID: []byte("cred"), UserID: "u1", PublicKey: []byte("pk"), CreatedAt: now},
		Inventory:  &Inventory{ID: "doc-1", Name: "Inventory", OwnerID: "u1", CreatedAt: now},
		Session:    &Session{ID: "s1", UserID: "u1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	}
	require.NoError(t, store.CreateRegistration(ctx, first))

	second := &Registration{
		User:       &User{ID: "u2", Name: "Bob", CreatedAt: now},
		Credential: &Credential{ID: []byte("cred"), UserID: "u2", PublicKey: []byte("other"), CreatedAt: now},
		Inventory:  &Inventory{ID: "doc-2", Name: "Inventory", OwnerID: "u2", CreatedAt: now},
		Session:    &Session{ID: "s2", UserID: "u2", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	}
	err := store.CreateRegistration(ctx, second)
	require.ErrorIs(t, err, ErrCredentialExists)

	_, err = store.GetUser(ctx, "u2")
	assert.ErrorIs(t, err, ErrUserNotFound)
	cred, err := store.GetCredential(ctx, []byte("cred"))
	require.NoError(t, err)
	assert.Equal(t, "u1", cred.UserID)
}
