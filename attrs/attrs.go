// Package attrs models the caller-supplied attribute bags carried on login
// requests and user sessions.
package attrs

import "strings"

// ReservedPrefix marks keys reserved for storage metadata. Caller-supplied
// keys with this prefix are dropped at every merge boundary so clients can
// never inject or overwrite internal fields.
const ReservedPrefix = "_"

// Attributes is an arbitrary string-keyed attribute bag.
type Attributes map[string]any

// Merge copies the public keys of incoming into a. Reserved-prefix keys are
// silently dropped. Existing keys not present in incoming are left alone, so
// merging never replaces the bag wholesale.
func (a Attributes) Merge(incoming Attributes) {
	for key, value := range incoming {
		if strings.HasPrefix(key, ReservedPrefix) {
			continue
		}
		a[key] = value
	}
}

// Public returns a copy of a with any reserved-prefix keys removed.
func (a Attributes) Public() Attributes {
	public := make(Attributes, len(a))
	for key, value := range a {
		if strings.HasPrefix(key, ReservedPrefix) {
			continue
		}
		public[key] = value
	}
	return public
}

// Clone returns a shallow copy of a.
func (a Attributes) Clone() Attributes {
	clone := make(Attributes, len(a))
	for key, value := range a {
		clone[key] = value
	}
	return clone
}

// String returns the string value for key, or "" when absent or not a string.
func (a Attributes) String(key string) string {
	value, _ := a[key].(string)
	return value
}
