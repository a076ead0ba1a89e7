// ABOUTME: Tests for the document repo against a real SQLite store
// ABOUTME: Checks sequencing, replay, live fan-out, and unknown documents

package docs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/homie/internal/store"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	b := NewBroadcaster(nil)
	t.Cleanup(b.Close)
	return NewRepo(s, b)
}

func TestRepo_CreateAndFind(t *testing.T) {
	r := newTestRepo(t)
	ctx := t.Context()

	id, err := r.Create(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	doc, err := r.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, doc.ID)
	assert.Equal(t, int64(0), doc.HeadSeq)

	other, err := r.Create(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func TestRepo_FindUnknown(t *testing.T) {
	r := newTestRepo(t)

	_, err := r.Find(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepo_ChangeSequencesAndReplays(t *testing.T) {
	r := newTestRepo(t)
	ctx := t.Context()

	id, err := r.Create(ctx)
	require.NoError(t, err)

	for i, p := range []string{"a", "b", "c"} {
		c, err := r.Change(ctx, id, "u1", []byte(p), "")
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), c.Seq)
	}

	doc, err := r.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), doc.HeadSeq)

	all, err := r.Changes(ctx, id, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []byte("a"), all[0].Payload)

	tail, err := r.Changes(ctx, id, 2, 0)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, int64(3), tail[0].Seq)

	limited, err := r.Changes(ctx, id, 0, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRepo_ChangeUnknownDocument(t *testing.T) {
	r := newTestRepo(t)

	_, err := r.Change(t.Context(), "missing", "u1", []byte("x"), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepo_ChangeFansOutToOthers(t *testing.T) {
	r := newTestRepo(t)
	ctx := t.Context()

	id, err := r.Create(ctx)
	require.NoError(t, err)

	mine, mineID := r.Subscribe(ctx, id)
	theirs, _ := r.Subscribe(ctx, id)

	_, err = r.Change(ctx, id, "u1", []byte("hello"), mineID)
	require.NoError(t, err)

	got := receive(t, theirs)
	assert.Equal(t, []byte("hello"), got.Payload)
	assert.Equal(t, "u1", got.ActorID)
	assertNothing(t, mine)

	r.Unsubscribe(id, mineID)
	_, ok := <-mine
	assert.False(t, ok)
}
