// Package tokens persists pending login tokens: the server-held half of an
// unredeemed single-use login.
package tokens

import (
	"time"

	"github.com/pouchdb/pouchbase/attrs"
)

// PendingToken records an issued, not-yet-validated login token for one
// (identity, origin) pair. The raw token never appears here; only its bcrypt
// digest is stored. At most one pending token exists per pair: a fresh login
// request overwrites (and thereby revokes) any earlier one.
type PendingToken struct {
	Identity    string           `json:"identity"`
	HashedToken string           `json:"hashed_token"`
	Origin      string           `json:"origin"`
	Details     attrs.Attributes `json:"details,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`

	// rev is the storage revision the token was read at. It conditions the
	// delete in Repo.Redeem so concurrent validators cannot both succeed.
	rev string
}
