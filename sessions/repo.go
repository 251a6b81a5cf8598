package sessions

import "context"

// Repo defines storage operations for user sessions.
type Repo interface {
	// Get retrieves the session for (identity, origin).
	// Returns (nil, nil) when no session document exists yet.
	Get(ctx context.Context, identity, origin string) (*UserSession, error)

	// Put persists a session, creating it when absent. A concurrent update of
	// the same document surfaces as an error; callers do not retry.
	Put(ctx context.Context, session *UserSession) error
}
