// ABOUTME: Redis-backed ceremony store for multi-process deployments
// ABOUTME: SET with expiry on Put, GETDEL on Take so a token is consumed exactly once

package ceremony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "homie:ceremony:"

// RedisStore keeps ceremonies in Redis with native key expiry.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// Connect builds a Redis client from a redis:// URL or a bare host:port.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Put stores entry under a new token with the store TTL.
func (s *RedisStore) Put(ctx context.Context, entry *Entry) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generating ceremony token: %w", err)
	}

	entry.ExpiresAt = time.Now().Add(s.ttl)
	raw, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("encoding ceremony: %w", err)
	}

	if err := s.client.Set(ctx, redisKeyPrefix+token, raw, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("storing ceremony: %w", err)
	}
	return token, nil
}

// Take returns and removes the entry for token.
func (s *RedisStore) Take(ctx context.Context, token string) (*Entry, error) {
	raw, err := s.client.GetDel(ctx, redisKeyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("taking ceremony: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decoding ceremony: %w", err)
	}
	return &entry, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
