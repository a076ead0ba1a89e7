// ABOUTME: Tests for inventory access control against a real SQLite store
// ABOUTME: Walks the alice/bob sharing scenario and the owner-only mutation rules

package access

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/homie/internal/store"
)

type fakeDocs struct {
	n   int
	err error
}

func (f *fakeDocs) Create(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.n++
	return fmt.Sprintf("doc-%d", f.n), nil
}

func setup(t *testing.T) (*Control, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	for _, u := range []struct{ id, name string }{{"alice", "Alice"}, {"bob", "Bob"}, {"carol", "Carol"}} {
		require.NoError(t, s.CreateUser(ctx, &store.User{ID: u.id, Username: u.id, Name: u.name, CreatedAt: time.Now()}))
	}
	return New(s, &fakeDocs{}), s
}

func TestControl_CreateAccess(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	inv, err := c.CreateAccess(ctx, "doc-x", "alice", "Kitchen")
	require.NoError(t, err)
	assert.Equal(t, "alice", inv.OwnerID)
	assert.Empty(t, inv.MemberIDs)

	_, err = c.CreateAccess(ctx, "doc-x", "bob", "Again")
	assert.ErrorIs(t, err, store.ErrInventoryExists)
}

func TestControl_CreateInventory(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	inv, err := c.CreateInventory(ctx, "alice", "  ")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", inv.ID)
	assert.Equal(t, DefaultInventoryName, inv.Name)

	inv, err = c.CreateInventory(ctx, "alice", " Garage ")
	require.NoError(t, err)
	assert.Equal(t, "Garage", inv.Name)
}

func TestControl_CreateInventory_DocumentFailure(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer s.Close()

	c := New(s, &fakeDocs{err: errors.New("no space")})
	_, err = c.CreateInventory(context.Background(), "alice", "x")
	assert.ErrorContains(t, err, "no space")
}

// Alice owns an inventory, shares it with Bob, and Bob can see it but not
// manage it. Removing Bob takes it away again.
func TestControl_SharingScenario(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	inv, err := c.CreateAccess(ctx, "inv-1", "alice", "Kitchen")
	require.NoError(t, err)

	summaries, err := c.Summaries(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, summaries)

	ok, err := c.AddMember(ctx, inv.ID, "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	summaries, err = c.Summaries(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []Summary{{ID: "inv-1", Name: "Kitchen", IsOwner: false}}, summaries)

	summaries, err = c.Summaries(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []Summary{{ID: "inv-1", Name: "Kitchen", IsOwner: true}}, summaries)

	canAccess, err := c.CanAccess(ctx, inv.ID, "bob")
	require.NoError(t, err)
	assert.True(t, canAccess)

	isOwner, err := c.IsOwner(ctx, inv.ID, "bob")
	require.NoError(t, err)
	assert.False(t, isOwner)

	_, err = c.RequireAccess(ctx, inv.ID, "bob")
	assert.NoError(t, err)
	_, err = c.RequireOwner(ctx, inv.ID, "bob")
	assert.ErrorIs(t, err, ErrForbidden)

	ok, err = c.RemoveMember(ctx, inv.ID, "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	canAccess, err = c.CanAccess(ctx, inv.ID, "bob")
	require.NoError(t, err)
	assert.False(t, canAccess)
}

func TestControl_AddMember(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()
	_, err := c.CreateAccess(ctx, "inv-1", "alice", "Kitchen")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		ok, err := c.AddMember(ctx, "inv-1", "bob")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := c.AddMember(ctx, "inv-1", "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	inv, err := c.Get(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, inv.MemberIDs)

	ok, err = c.AddMember(ctx, "missing", "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.AddMember(ctx, "inv-1", "ghost")
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}

func TestControl_RequireOnMissingInventory(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	_, err := c.RequireAccess(ctx, "missing", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.RequireOwner(ctx, "missing", "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := c.CanAccess(ctx, "missing", "alice")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = c.IsOwner(ctx, "missing", "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestControl_StrangerIsForbidden(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()
	_, err := c.CreateAccess(ctx, "inv-1", "alice", "Kitchen")
	require.NoError(t, err)

	_, err = c.RequireAccess(ctx, "inv-1", "carol")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestControl_RenameAndDelete(t *testing.T) {
	c, s := setup(t)
	ctx := context.Background()
	_, err := c.CreateAccess(ctx, "inv-1", "alice", "Kitchen")
	require.NoError(t, err)
	require.NoError(t, s.CreateDocument(ctx, &store.Document{ID: "inv-1", CreatedAt: time.Now()}))

	ok, err := c.Rename(ctx, "inv-1", "Pantry")
	require.NoError(t, err)
	assert.True(t, ok)

	inv, err := c.Get(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "Pantry", inv.Name)

	ok, err = c.DeleteAccess(ctx, "inv-1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = c.Get(ctx, "inv-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Only access is gone; the document stays.
	_, err = s.GetDocument(ctx, "inv-1")
	assert.NoError(t, err)

	ok, err = c.DeleteAccess(ctx, "inv-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestControl_MembersAndAvailableUsers(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()
	_, err := c.CreateAccess(ctx, "inv-1", "alice", "Kitchen")
	require.NoError(t, err)
	_, err = c.AddMember(ctx, "inv-1", "bob")
	require.NoError(t, err)

	members, err := c.MembersWithNames(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", members.OwnerID)
	assert.Equal(t, []store.Member{{ID: "bob", Name: "Bob"}}, members.Members)

	available, err := c.AvailableUsers(ctx, "inv-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, []store.Member{{ID: "carol", Name: "Carol"}}, available)

	_, err = c.MembersWithNames(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	available, err = c.AvailableUsers(ctx, "missing", "alice")
	require.NoError(t, err)
	assert.Empty(t, available)
}
