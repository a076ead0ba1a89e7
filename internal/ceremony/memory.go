// ABOUTME: In-memory ceremony store with TTL, size cap, and background eviction
// ABOUTME: Suitable for a single homie-server process

package ceremony

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"
)

// memoryEntry stores the entry and its list element.
type memoryEntry struct {
	entry   *Entry
	element *list.Element
}

// MemoryStore keeps ceremonies in process memory. When full, the oldest
// entry is evicted to make room. Uses a doubly-linked list for O(1) eviction.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	order   *list.List // tokens in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// NewMemoryStore creates a memory store. A background goroutine removes
// expired entries every minute until Close.
func NewMemoryStore(ttl time.Duration, maxSize int) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = 10000
	}
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go s.cleanup(time.Minute)
	return s
}

var _ Store = (*MemoryStore)(nil)

// Put stores entry under a new token.
func (s *MemoryStore) Put(_ context.Context, entry *Entry) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generating ceremony token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", fmt.Errorf("ceremony store closed")
	}

	if len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	entry.ExpiresAt = s.now().Add(s.ttl)
	elem := s.order.PushBack(token)
	s.entries[token] = &memoryEntry{entry: entry, element: elem}
	return token, nil
}

// Take returns and removes the entry for token.
func (s *MemoryStore) Take(_ context.Context, token string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[token]
	if !ok {
		return nil, ErrNotFound
	}
	s.order.Remove(e.element)
	delete(s.entries, token)

	if s.now().After(e.entry.ExpiresAt) {
		return nil, ErrNotFound
	}
	return e.entry, nil
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (s *MemoryStore) evictOldest() {
	front := s.order.Front()
	if front == nil {
		return
	}
	token, _ := front.Value.(string)
	s.order.Remove(front)
	delete(s.entries, token)
}

func (s *MemoryStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.done:
			return
		}
	}
}

// removeExpired drops every expired entry.
func (s *MemoryStore) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for token, e := range s.entries {
		if now.After(e.entry.ExpiresAt) {
			s.order.Remove(e.element)
			delete(s.entries, token)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.done)
		s.closed = true
	}
	return nil
}
