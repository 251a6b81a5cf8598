// Package notify delivers login URLs to identities out-of-band.
//
// Delivery is best-effort by design: the broker treats a failed or skipped
// delivery as success and carries on persisting the pending token. The
// gateway never returns the raw token to the caller, so a notifier is the
// only way a token leaves the process.
package notify

import "context"

// Notifier delivers a token-carrying login URL to an identity's out-of-band
// address.
type Notifier interface {
	Send(ctx context.Context, identity, loginURL string) error
}
