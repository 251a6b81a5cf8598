package broker

import "errors"

var (
	// ErrMissingIdentity is returned when a login request carries no identity
	// field in its attribute bag.
	ErrMissingIdentity = errors.New("login details missing identity")

	// ErrVerificationFailed covers every way a token validation can fail:
	// no pending token, wrong token, expired token, or a lost redemption
	// race. Callers must not be able to tell these apart, otherwise the
	// endpoint becomes an identity-enumeration oracle.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrTimeout marks an external call (hashing, storage, delivery) that
	// exceeded its per-call deadline.
	ErrTimeout = errors.New("operation timed out")
)
