// Package memory provides an in-process implementation of store.Store.
// It backs tests and single-node development setups.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pouchdb/pouchbase/store"
)

type entry struct {
	seq  int
	rev  string
	data []byte
}

// Store is an in-memory store.Store. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	docs map[string]*entry
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{docs: make(map[string]*entry)}
}

func (s *Store) Get(_ context.Context, id string) (*store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	data := make([]byte, len(e.data))
	copy(data, e.data)
	return &store.Document{ID: id, Rev: e.rev, Data: data}, nil
}

func (s *Store) Put(_ context.Context, doc store.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.docs[doc.ID]
	if doc.Rev == "" && exists {
		return "", store.ErrConflict
	}
	if doc.Rev != "" && (!exists || e.rev != doc.Rev) {
		return "", store.ErrConflict
	}

	seq := 1
	if exists {
		seq = e.seq + 1
	}
	rev := newRev(seq)
	data := make([]byte, len(doc.Data))
	copy(data, doc.Data)
	s.docs[doc.ID] = &entry{seq: seq, rev: rev, data: data}
	return rev, nil
}

func (s *Store) Delete(_ context.Context, id, rev string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.docs[id]
	if !ok || e.rev != rev {
		return store.ErrConflict
	}
	delete(s.docs, id)
	return nil
}

func (s *Store) Close() error {
	return nil
}

// newRev builds a CouchDB-flavoured "<seq>-<opaque>" revision string.
func newRev(seq int) string {
	return fmt.Sprintf("%d-%s", seq, uuid.NewString())
}
