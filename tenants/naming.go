// Package tenants implements the per-(identity, origin) isolation scheme:
// canonical tenant naming, and provisioning of the backing database each
// tenant's data lives in.
package tenants

import (
	"net/url"
	"strings"
)

// Name maps an (identity, origin) pair to its canonical tenant identifier.
// The same value keys pending-token and session documents and names the
// tenant's backing database.
//
// Both inputs are percent-encoded and joined with "_". Underscores inside the
// inputs are encoded as well, so the separator occurs exactly once between the
// two components and distinct pairs can never collide. The function is pure:
// re-deriving the name for the same pair always yields the same identifier.
func Name(identity, origin string) string {
	return encodeComponent(identity) + "_" + encodeComponent(origin)
}

func encodeComponent(s string) string {
	escaped := url.QueryEscape(s)
	// QueryEscape leaves "_" alone; encode it so it cannot be mistaken for
	// the separator.
	escaped = strings.ReplaceAll(escaped, "_", "%5F")
	// QueryEscape encodes spaces as "+", which would collide with a literal
	// plus sign. Use the percent form instead.
	return strings.ReplaceAll(escaped, "+", "%20")
}
