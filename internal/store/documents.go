// ABOUTME: Replicated document persistence for SQLiteStore
// ABOUTME: Each document is an append-only log of opaque change payloads with a head sequence

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateDocument creates an empty document.
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *Document) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, head_seq, created_at) VALUES (?, ?, ?)`,
		doc.ID, doc.HeadSeq, formatTime(doc.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}

	s.logger.Debug("created document", "id", doc.ID)
	return nil
}

// GetDocument retrieves a document head by ID.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	var doc Document
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, `SELECT id, head_seq, created_at FROM documents WHERE id = ?`, id).
		Scan(&doc.ID, &doc.HeadSeq, &createdAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying document: %w", err)
	}

	doc.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &doc, nil
}

// AppendChange stores a change at the document's next sequence number.
func (s *SQLiteStore) AppendChange(ctx context.Context, docID, actorID string, payload []byte) (*Change, error) {
	change := &Change{
		DocID:     docID,
		ActorID:   actorID,
		Payload:   payload,
		CreatedAt: s.now().UTC(),
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`UPDATE documents SET head_seq = head_seq + 1 WHERE id = ? RETURNING head_seq`, docID).
			Scan(&change.Seq)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrDocumentNotFound
		}
		if err != nil {
			return fmt.Errorf("advancing document head: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO document_changes (doc_id, seq, actor_id, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
			change.DocID, change.Seq, change.ActorID, change.Payload, formatTime(change.CreatedAt))
		if err != nil {
			return fmt.Errorf("inserting change: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return change, nil
}

// ListChanges returns changes with seq > afterSeq in order. limit <= 0 means no limit.
func (s *SQLiteStore) ListChanges(ctx context.Context, docID string, afterSeq int64, limit int) ([]*Change, error) {
	query := `
		SELECT doc_id, seq, actor_id, payload, created_at
		FROM document_changes
		WHERE doc_id = ? AND seq > ?
		ORDER BY seq ASC
	`
	args := []any{docID, afterSeq}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying changes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var changes []*Change
	for rows.Next() {
		var c Change
		var createdAtStr string
		if err := rows.Scan(&c.DocID, &c.Seq, &c.ActorID, &c.Payload, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning change: %w", err)
		}
		c.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		changes = append(changes, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating changes: %w", err)
	}
	return changes, nil
}
