package tokens

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/pouchdb/pouchbase/store"
	"github.com/pouchdb/pouchbase/tenants"
)

// ErrRedeemed signals that a pending token was deleted or replaced between
// being read and being redeemed. Callers treat it like any other failed
// verification.
var ErrRedeemed = errors.New("tokens: token already redeemed")

const docPrefix = "active_tokens_"

// StoreRepo is a Repo backed by a revision-aware document store.
type StoreRepo struct {
	store store.Store
}

var _ Repo = (*StoreRepo)(nil)

// NewStoreRepo creates a token repository on top of s.
func NewStoreRepo(s store.Store) *StoreRepo {
	return &StoreRepo{store: s}
}

func docID(identity, origin string) string {
	return docPrefix + tenants.Name(identity, origin)
}

func (r *StoreRepo) Get(ctx context.Context, identity, origin string) (*PendingToken, error) {
	doc, err := r.store.Get(ctx, docID(identity, origin))
	if err != nil {
		return nil, errors.Wrap(err, "[StoreRepo.Get] store.Get")
	}
	if doc == nil {
		return nil, nil
	}

	var token PendingToken
	if err := json.Unmarshal(doc.Data, &token); err != nil {
		return nil, errors.Wrap(err, "[StoreRepo.Get] unmarshal token")
	}
	token.rev = doc.Rev
	return &token, nil
}

func (r *StoreRepo) Put(ctx context.Context, token *PendingToken) error {
	id := docID(token.Identity, token.Origin)

	data, err := json.Marshal(token)
	if err != nil {
		return errors.Wrap(err, "[StoreRepo.Put] marshal token")
	}

	// Overwrite semantics: re-read the current revision so a fresh login
	// replaces whatever token is already pending for this pair.
	existing, err := r.store.Get(ctx, id)
	if err != nil {
		return errors.Wrap(err, "[StoreRepo.Put] store.Get")
	}
	rev := ""
	if existing != nil {
		rev = existing.Rev
	}

	if _, err := r.store.Put(ctx, store.Document{ID: id, Rev: rev, Data: data}); err != nil {
		return errors.Wrap(err, "[StoreRepo.Put] store.Put")
	}
	return nil
}

func (r *StoreRepo) Redeem(ctx context.Context, token *PendingToken) error {
	err := r.store.Delete(ctx, docID(token.Identity, token.Origin), token.rev)
	if errors.Is(err, store.ErrConflict) {
		return ErrRedeemed
	}
	if err != nil {
		return errors.Wrap(err, "[StoreRepo.Redeem] store.Delete")
	}
	return nil
}
