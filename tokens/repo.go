package tokens

import "context"

// Repo defines storage operations for pending login tokens.
type Repo interface {
	// Get retrieves the pending token for (identity, origin).
	// Returns (nil, nil) when no token is pending.
	Get(ctx context.Context, identity, origin string) (*PendingToken, error)

	// Put persists a pending token, overwriting any existing token for the
	// same (identity, origin) pair.
	Put(ctx context.Context, token *PendingToken) error

	// Redeem deletes a previously fetched token, conditioned on the revision
	// it was read at. Returns ErrRedeemed when the token was concurrently
	// redeemed or replaced, so at most one caller can win.
	Redeem(ctx context.Context, token *PendingToken) error
}
