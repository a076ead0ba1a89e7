// ABOUTME: In-memory fan-out of document changes to live sync connections
// ABOUTME: Publishes persisted changes to every subscriber of a document except the origin

package docs

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/homie/internal/store"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// Broadcaster provides in-memory pub/sub for persisted document changes.
// Subscribers register for a document id and receive changes as they are
// appended.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *store.Change // docID -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *store.Change),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for changes to docID. Returns a channel
// that receives changes and a subscription ID for later unsubscription. The
// subscription is cleaned up when ctx is cancelled. After Close the returned
// channel is already closed.
func (b *Broadcaster) Subscribe(ctx context.Context, docID string) (<-chan *store.Change, string) {
	subID := uuid.New().String()
	ch := make(chan *store.Change, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[docID]; !ok {
		b.subscribers[docID] = make(map[string]chan *store.Change)
	}
	b.subscribers[docID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "doc_id", docID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(docID, subID)
	}()

	return ch, subID
}

// Publish sends a change to all subscribers of docID except excludeSubID.
// Non-blocking: changes are dropped for subscribers whose channels are full;
// they catch up by replaying from their last seen sequence.
func (b *Broadcaster) Publish(docID string, change *store.Change, excludeSubID string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers[docID] {
		if excludeSubID != "" && id == excludeSubID {
			continue
		}
		select {
		case ch <- change:
		default:
			b.logger.Debug("dropped change for slow subscriber",
				"doc_id", docID,
				"sub_id", id,
				"seq", change.Seq)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(docID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[docID]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, docID)
	}

	b.logger.Debug("subscriber removed", "doc_id", docID, "sub_id", subID)
}

// Subscribers returns the number of live subscriptions for docID.
func (b *Broadcaster) Subscribers(docID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[docID])
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for docID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, docID)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}
