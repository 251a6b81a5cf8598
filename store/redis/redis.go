// Package redis provides a Redis-backed implementation of store.Store.
//
// Revision-checked writes are built on optimistic WATCH/MULTI transactions:
// a concurrent modification of a watched key aborts the transaction, which
// surfaces to callers as store.ErrConflict. That property is what makes the
// broker's compare-and-delete of pending tokens safe across processes.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pouchdb/pouchbase/store"
	"github.com/redis/go-redis/v9"
)

// Config contains configuration options for the Redis store.
type Config struct {
	// Client is the Redis client instance. Required.
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys.
	// Default: "pouchbase:doc:"
	KeyPrefix string
}

// Store implements store.Store on top of Redis.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

var _ store.Store = (*Store)(nil)

// envelope is the structure stored under each key.
type envelope struct {
	Seq       int             `json:"seq"`
	Rev       string          `json:"rev"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// New creates a new Redis-backed store.
func New(config Config) (*Store, error) {
	if config.Client == nil {
		return nil, errors.New("[redis.New] redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "pouchbase:doc:"
	}
	return &Store{client: config.Client, keyPrefix: config.KeyPrefix}, nil
}

func (s *Store) Get(ctx context.Context, id string) (*store.Document, error) {
	raw, err := s.client.Get(ctx, s.keyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[redis.Get] client.Get")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(err, "[redis.Get] unmarshal envelope")
	}
	return &store.Document{ID: id, Rev: env.Rev, Data: env.Data}, nil
}

func (s *Store) Put(ctx context.Context, doc store.Document) (string, error) {
	key := s.keyPrefix + doc.ID
	var newRev string

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		exists := err != redis.Nil
		if err != nil && err != redis.Nil {
			return errors.Wrap(err, "[redis.Put] tx.Get")
		}

		var cur envelope
		if exists {
			if err := json.Unmarshal(raw, &cur); err != nil {
				return errors.Wrap(err, "[redis.Put] unmarshal envelope")
			}
		}

		if doc.Rev == "" && exists {
			return store.ErrConflict
		}
		if doc.Rev != "" && (!exists || cur.Rev != doc.Rev) {
			return store.ErrConflict
		}

		next := envelope{
			Seq:       cur.Seq + 1,
			Data:      json.RawMessage(doc.Data),
			UpdatedAt: time.Now().UTC(),
		}
		next.Rev = newRevString(next.Seq)

		payload, err := json.Marshal(next)
		if err != nil {
			return errors.Wrap(err, "[redis.Put] marshal envelope")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err != nil {
			return err
		}
		newRev = next.Rev
		return nil
	}

	err := s.client.Watch(ctx, txf, key)
	if err == redis.TxFailedErr {
		return "", store.ErrConflict
	}
	if err != nil {
		return "", err
	}
	return newRev, nil
}

func (s *Store) Delete(ctx context.Context, id, rev string) error {
	key := s.keyPrefix + id

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return store.ErrConflict
		}
		if err != nil {
			return errors.Wrap(err, "[redis.Delete] tx.Get")
		}

		var cur envelope
		if err := json.Unmarshal(raw, &cur); err != nil {
			return errors.Wrap(err, "[redis.Delete] unmarshal envelope")
		}
		if cur.Rev != rev {
			return store.ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, key)
	if err == redis.TxFailedErr {
		return store.ErrConflict
	}
	return err
}

func (s *Store) Close() error {
	return s.client.Close()
}

func newRevString(seq int) string {
	return fmt.Sprintf("%d-%s", seq, uuid.NewString())
}
