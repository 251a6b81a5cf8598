// Package store defines a revision-aware keyed document store.
//
// Pending login tokens and user sessions are both persisted through this
// interface. Single-use-token semantics in the broker depend entirely on the
// revision checks here: a Put or Delete carrying a stale revision must fail
// with ErrConflict rather than clobber concurrent writers.
package store

import (
	"context"
	"errors"
)

var (
	// ErrConflict is returned when a Put or Delete carries a revision that no
	// longer matches the stored document, or when deleting a document that has
	// already been removed.
	ErrConflict = errors.New("store: revision conflict")
)

// Document is a stored JSON blob plus the metadata the store needs to detect
// concurrent modification. Rev is opaque to callers.
type Document struct {
	ID   string
	Rev  string
	Data []byte
}

// Store is the persistence contract for pending tokens and user sessions.
type Store interface {
	// Get retrieves a document by ID. Returns (nil, nil) when the document
	// does not exist; an error only signals a storage system failure.
	Get(ctx context.Context, id string) (*Document, error)

	// Put writes a document and returns the new revision.
	// An empty doc.Rev creates the document and fails with ErrConflict if it
	// already exists; a non-empty doc.Rev updates and fails with ErrConflict
	// on mismatch.
	Put(ctx context.Context, doc Document) (string, error)

	// Delete removes the document only if rev still matches the stored
	// revision. A missing document or a stale revision returns ErrConflict.
	Delete(ctx context.Context, id, rev string) error

	// Close releases backend resources.
	Close() error
}
