// Package sessions persists the attributes of authenticated identities.
//
// A UserSession is keyed by (identity, origin): the same identity under two
// origins owns two fully independent documents, and nothing here may leak
// attributes between them. Sessions are created lazily on first successful
// validation (or explicit write), mutated only by merging, and never deleted:
// logout is a gateway-cookie concern and leaves the document behind.
package sessions

import (
	"time"

	"github.com/pouchdb/pouchbase/attrs"
)

// UserSession is the server-held record of an authenticated identity's
// persisted attributes under one origin.
type UserSession struct {
	Identity   string           `json:"identity"`
	Origin     string           `json:"origin"`
	Attributes attrs.Attributes `json:"attributes"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`

	rev string
}

// New creates an empty session for (identity, origin).
func New(identity, origin string, now time.Time) *UserSession {
	return &UserSession{
		Identity:   identity,
		Origin:     origin,
		Attributes: attrs.Attributes{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Merge folds the public keys of incoming into the session's attributes,
// dropping reserved-prefix keys. Existing attributes survive.
func (s *UserSession) Merge(incoming attrs.Attributes, now time.Time) {
	if s.Attributes == nil {
		s.Attributes = attrs.Attributes{}
	}
	s.Attributes.Merge(incoming)
	s.UpdatedAt = now
}
