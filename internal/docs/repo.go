// ABOUTME: Replicated document repository: opaque change logs with live fan-out
// ABOUTME: The server stores and relays change payloads without interpreting them

package docs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/homie/internal/store"
)

// ErrNotFound is returned for unknown documents.
var ErrNotFound = errors.New("document not found")

// Repo creates documents, appends changes, and lets connections follow them.
type Repo struct {
	store       store.DocumentStore
	broadcaster *Broadcaster
	logger      *slog.Logger
}

// NewRepo creates a document repo.
func NewRepo(s store.DocumentStore, b *Broadcaster) *Repo {
	return &Repo{
		store:       s,
		broadcaster: b,
		logger:      slog.Default().With("component", "docs"),
	}
}

// Create mints an empty document and returns its id.
func (r *Repo) Create(ctx context.Context) (string, error) {
	doc := &store.Document{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.CreateDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("creating document: %w", err)
	}
	r.logger.Debug("created document", "id", doc.ID)
	return doc.ID, nil
}

// Find returns the document head, or ErrNotFound.
func (r *Repo) Find(ctx context.Context, id string) (*store.Document, error) {
	doc, err := r.store.GetDocument(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finding document: %w", err)
	}
	return doc, nil
}

// Change appends payload to the document and fans it out to every
// subscriber except originSubID.
func (r *Repo) Change(ctx context.Context, docID, actorID string, payload []byte, originSubID string) (*store.Change, error) {
	change, err := r.store.AppendChange(ctx, docID, actorID, payload)
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appending change: %w", err)
	}
	r.broadcaster.Publish(docID, change, originSubID)
	return change, nil
}

// Changes returns changes after afterSeq, oldest first. limit <= 0 means all.
func (r *Repo) Changes(ctx context.Context, docID string, afterSeq int64, limit int) ([]*store.Change, error) {
	changes, err := r.store.ListChanges(ctx, docID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("listing changes: %w", err)
	}
	return changes, nil
}

// Subscribe follows live changes to docID until ctx is done.
func (r *Repo) Subscribe(ctx context.Context, docID string) (<-chan *store.Change, string) {
	return r.broadcaster.Subscribe(ctx, docID)
}

// Unsubscribe stops a subscription early.
func (r *Repo) Unsubscribe(docID, subID string) {
	r.broadcaster.Unsubscribe(docID, subID)
}
