// ABOUTME: Tests for the Redis ceremony store against a live server
// ABOUTME: Skipped unless HOMIE_TEST_REDIS_URL points at a disposable Redis

package ceremony

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) *RedisStore {
	t.Helper()
	url := os.Getenv("HOMIE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("HOMIE_TEST_REDIS_URL not set")
	}

	client, err := Connect(context.Background(), url)
	require.NoError(t, err)

	s := NewRedisStore(client, ttl)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisStore_PutTake(t *testing.T) {
	s := newTestRedisStore(t, time.Minute)
	ctx := context.Background()

	token, err := s.Put(ctx, &Entry{Kind: KindRegister, Name: "Alice", Data: []byte(`{"challenge":"abc"}`)})
	require.NoError(t, err)

	got, err := s.Take(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, KindRegister, got.Kind)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, []byte(`{"challenge":"abc"}`), got.Data)

	_, err = s.Take(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Expiry(t *testing.T) {
	s := newTestRedisStore(t, time.Second)
	ctx := context.Background()

	token, err := s.Put(ctx, &Entry{Kind: KindLogin})
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)
	_, err = s.Take(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConnect_BadURL(t *testing.T) {
	_, err := Connect(context.Background(), "redis://localhost:notaport/0")
	assert.Error(t, err)
}
