// Package credentials provides one-way hashing for login tokens.
package credentials

import (
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when none is configured.
// The original service hashed tokens at cost 10.
const DefaultCost = 10

// Hasher produces salted bcrypt digests of raw login tokens. A leaked digest
// must resist offline brute force for the lifetime of a pending token, so the
// cost is never allowed below bcrypt's own minimum.
type Hasher struct {
	cost int
}

// NewHasher creates a Hasher with the given work factor.
// Costs below bcrypt.MinCost fall back to DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns the salted digest of secret.
func (h *Hasher) Hash(secret string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", errors.Wrap(err, "[Hasher.Hash] bcrypt.GenerateFromPassword")
	}
	return string(digest), nil
}

// Compare reports whether secret matches digest.
func (h *Hasher) Compare(secret, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}
