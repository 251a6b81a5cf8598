package sessions

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/pouchdb/pouchbase/store"
	"github.com/pouchdb/pouchbase/tenants"
)

const docPrefix = "active_user_"

// StoreRepo is a Repo backed by a revision-aware document store.
type StoreRepo struct {
	store store.Store
}

var _ Repo = (*StoreRepo)(nil)

// NewStoreRepo creates a session repository on top of s.
func NewStoreRepo(s store.Store) *StoreRepo {
	return &StoreRepo{store: s}
}

func docID(identity, origin string) string {
	return docPrefix + tenants.Name(identity, origin)
}

func (r *StoreRepo) Get(ctx context.Context, identity, origin string) (*UserSession, error) {
	doc, err := r.store.Get(ctx, docID(identity, origin))
	if err != nil {
		return nil, errors.Wrap(err, "[StoreRepo.Get] store.Get")
	}
	if doc == nil {
		return nil, nil
	}

	var session UserSession
	if err := json.Unmarshal(doc.Data, &session); err != nil {
		return nil, errors.Wrap(err, "[StoreRepo.Get] unmarshal session")
	}
	session.rev = doc.Rev
	return &session, nil
}

func (r *StoreRepo) Put(ctx context.Context, session *UserSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "[StoreRepo.Put] marshal session")
	}

	rev, err := r.store.Put(ctx, store.Document{
		ID:   docID(session.Identity, session.Origin),
		Rev:  session.rev,
		Data: data,
	})
	if err != nil {
		return errors.Wrap(err, "[StoreRepo.Put] store.Put")
	}
	session.rev = rev
	return nil
}
