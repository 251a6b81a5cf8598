package memory_test

import (
	"context"
	"testing"

	"github.com/pouchdb/pouchbase/store"
	"github.com/pouchdb/pouchbase/store/memory"
	"github.com/stretchr/testify/require"
)

func TestGetMissingReturnsNil(t *testing.T) {
	s := memory.New()
	doc, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, doc)
}

func TestPutCreateAndUpdate(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	rev1, err := s.Put(ctx, store.Document{ID: "d1", Data: []byte(`{"a":1}`)})
	require.NoError(t, err)
	require.NotEmpty(t, rev1)

	doc, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, rev1, doc.Rev)
	require.JSONEq(t, `{"a":1}`, string(doc.Data))

	rev2, err := s.Put(ctx, store.Document{ID: "d1", Rev: rev1, Data: []byte(`{"a":2}`)})
	require.NoError(t, err)
	require.NotEqual(t, rev1, rev2)
}

func TestPutConflicts(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	rev1, err := s.Put(ctx, store.Document{ID: "d1", Data: []byte(`{}`)})
	require.NoError(t, err)

	// Create over an existing document.
	_, err = s.Put(ctx, store.Document{ID: "d1", Data: []byte(`{}`)})
	require.ErrorIs(t, err, store.ErrConflict)

	// Update with a stale revision.
	_, err = s.Put(ctx, store.Document{ID: "d1", Rev: "1-bogus", Data: []byte(`{}`)})
	require.ErrorIs(t, err, store.ErrConflict)

	// Update of a missing document.
	_, err = s.Put(ctx, store.Document{ID: "d2", Rev: rev1, Data: []byte(`{}`)})
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestDeleteIsConditional(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	rev1, err := s.Put(ctx, store.Document{ID: "d1", Data: []byte(`{}`)})
	require.NoError(t, err)

	require.ErrorIs(t, s.Delete(ctx, "d1", "1-stale"), store.ErrConflict)
	require.NoError(t, s.Delete(ctx, "d1", rev1))

	// Second delete of the same revision loses the race.
	require.ErrorIs(t, s.Delete(ctx, "d1", rev1), store.ErrConflict)

	doc, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	require.Nil(t, doc)
}
