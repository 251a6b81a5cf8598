// Package broker implements the passwordless login state machine: token
// issuance (RequestLogin), single-use token redemption (ValidateToken), and
// session attribute read/write.
package broker

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/pouchdb/pouchbase/attrs"
	"github.com/pouchdb/pouchbase/credentials"
	"github.com/pouchdb/pouchbase/notify"
	"github.com/pouchdb/pouchbase/sessions"
	"github.com/pouchdb/pouchbase/tenants"
	"github.com/pouchdb/pouchbase/tokens"
	"github.com/rs/zerolog/log"
)

// IdentityField is the attribute-bag key carrying the identity on a login
// request.
const IdentityField = "email"

const (
	rawTokenBytes          = 32
	defaultCallTimeout     = 10 * time.Second
	defaultHashConcurrency = 4
)

// Repos holds the repository dependencies of the Service.
type Repos struct {
	Tokens   tokens.Repo
	Sessions sessions.Repo
}

// Service orchestrates hashing, naming, storage and delivery for the login
// pipelines. Each pipeline is strictly sequential and short-circuits on the
// first failing step; side effects committed by earlier steps are not rolled
// back.
type Service struct {
	repos      Repos
	hasher     *credentials.Hasher
	notifier   notify.Notifier // nil means delivery is skipped
	publicHost string          // public base URL, with trailing slash

	tokenExpiry time.Duration // 0 disables pending-token expiry
	callTimeout time.Duration
	hashSlots   chan struct{}
	nowTime     func() time.Time
}

// Option modifies a Service.
type Option func(*Service)

// WithNotifier sets the out-of-band delivery channel. Without one, delivery
// is skipped and login requests still succeed.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithTokenExpiry makes pending tokens unredeemable after d. Zero keeps the
// historical behaviour of tokens that never expire.
func WithTokenExpiry(d time.Duration) Option {
	return func(s *Service) { s.tokenExpiry = d }
}

// WithCallTimeout bounds each external call (hash, store, notifier).
func WithCallTimeout(d time.Duration) Option {
	return func(s *Service) { s.callTimeout = d }
}

// WithHashConcurrency caps how many bcrypt computations may run at once so
// hashing cannot starve the request-accepting path.
func WithHashConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.hashSlots = make(chan struct{}, n)
		}
	}
}

// WithNowTime sets the clock (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Service) { s.nowTime = nowFunc }
}

// New creates a Service. publicHost is the externally visible base URL of the
// gateway and is embedded in delivery URLs and tenant database URLs.
func New(repos Repos, hasher *credentials.Hasher, publicHost string, options ...Option) (*Service, error) {
	if repos.Tokens == nil {
		return nil, errors.New("[broker.New] Tokens repo is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[broker.New] Sessions repo is required")
	}
	if hasher == nil {
		return nil, errors.New("[broker.New] hasher is required")
	}
	if publicHost == "" {
		return nil, errors.New("[broker.New] publicHost is required")
	}
	if publicHost[len(publicHost)-1] != '/' {
		publicHost += "/"
	}

	s := &Service{
		repos:       repos,
		hasher:      hasher,
		publicHost:  publicHost,
		callTimeout: defaultCallTimeout,
		hashSlots:   make(chan struct{}, defaultHashConcurrency),
		nowTime:     time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// RequestLogin issues a new single-use login token for the identity named in
// details and delivers its login URL out-of-band. Any token already pending
// for (identity, origin) is overwritten, revoking it.
func (s *Service) RequestLogin(ctx context.Context, details attrs.Attributes, origin string) error {
	identity := details.String(IdentityField)
	if identity == "" {
		return ErrMissingIdentity
	}
	log.Debug().Str("identity", identity).Str("origin", origin).Msg("Login requested")

	rawToken, err := generateToken()
	if err != nil {
		return errors.Wrap(err, "[Service.RequestLogin] generate token")
	}

	hashedToken, err := s.hashToken(ctx, rawToken)
	if err != nil {
		return err
	}

	remainder := details.Clone()
	delete(remainder, IdentityField)

	tokenDoc := &tokens.PendingToken{
		Identity:    identity,
		HashedToken: hashedToken,
		Origin:      origin,
		Details:     remainder,
		CreatedAt:   s.nowTime().UTC(),
	}

	// Delivery is best-effort: a failed or unconfigured notifier must not
	// block the login. This is the only point the raw token leaves the
	// process.
	if s.notifier == nil {
		log.Debug().Str("identity", identity).Msg("No notifier configured, skipping delivery")
	} else {
		nctx, cancel := context.WithTimeout(ctx, s.callTimeout)
		err := s.notifier.Send(nctx, identity, s.LoginURL(rawToken, identity, origin))
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("identity", identity).Msg("Token delivery failed")
		}
	}

	sctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	if err := s.repos.Tokens.Put(sctx, tokenDoc); err != nil {
		return s.classify(err, "[Service.RequestLogin] tokens.Put")
	}
	return nil
}

// ValidateToken redeems a pending token. On success the token's attribute
// bag is merged into the (lazily created) user session and the token is
// deleted, conditioned on the revision it was read at, so at most one of two
// racing validations can succeed. Every failure mode returns
// ErrVerificationFailed.
func (s *Service) ValidateToken(ctx context.Context, identity, origin, rawToken string) error {
	log.Debug().Str("identity", identity).Str("origin", origin).Msg("Validating token")

	tctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	tokenDoc, err := s.repos.Tokens.Get(tctx, identity, origin)
	cancel()
	if err != nil {
		return s.classify(err, "[Service.ValidateToken] tokens.Get")
	}
	if tokenDoc == nil {
		// Indistinguishable from a wrong token by design.
		return ErrVerificationFailed
	}

	if s.tokenExpiry > 0 && s.nowTime().Sub(tokenDoc.CreatedAt) > s.tokenExpiry {
		return ErrVerificationFailed
	}

	match, err := s.compareToken(ctx, rawToken, tokenDoc.HashedToken)
	if err != nil {
		return err
	}
	if !match {
		// The pending token stays intact; there is no attempt limiting here.
		return ErrVerificationFailed
	}

	now := s.nowTime().UTC()
	sctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	session, err := s.repos.Sessions.Get(sctx, identity, origin)
	cancel()
	if err != nil {
		return s.classify(err, "[Service.ValidateToken] sessions.Get")
	}
	if session == nil {
		session = sessions.New(identity, origin, now)
	}
	session.Merge(tokenDoc.Details, now)

	pctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	err = s.repos.Sessions.Put(pctx, session)
	cancel()
	if err != nil {
		return s.classify(err, "[Service.ValidateToken] sessions.Put")
	}

	dctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	if err := s.repos.Tokens.Redeem(dctx, tokenDoc); err != nil {
		if errors.Is(err, tokens.ErrRedeemed) {
			// Lost the redemption race; the other validator won.
			return ErrVerificationFailed
		}
		return s.classify(err, "[Service.ValidateToken] tokens.Redeem")
	}

	log.Info().Str("identity", identity).Str("origin", origin).Msg("Token validated")
	return nil
}

// ReadSession returns the public attributes stored for (identity, origin).
// A missing session document reads as an empty bag; internal storage
// metadata never surfaces.
func (s *Service) ReadSession(ctx context.Context, identity, origin string) (attrs.Attributes, error) {
	sctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	session, err := s.repos.Sessions.Get(sctx, identity, origin)
	if err != nil {
		return nil, s.classify(err, "[Service.ReadSession] sessions.Get")
	}
	if session == nil {
		return attrs.Attributes{}, nil
	}
	return session.Attributes.Public(), nil
}

// WriteSession merges incoming into the session's attributes, creating the
// session when absent, and returns the merged public attributes.
// Reserved-prefix keys in incoming are dropped before the merge.
func (s *Service) WriteSession(ctx context.Context, identity, origin string, incoming attrs.Attributes) (attrs.Attributes, error) {
	now := s.nowTime().UTC()

	gctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	session, err := s.repos.Sessions.Get(gctx, identity, origin)
	cancel()
	if err != nil {
		return nil, s.classify(err, "[Service.WriteSession] sessions.Get")
	}
	if session == nil {
		session = sessions.New(identity, origin, now)
	}
	session.Merge(incoming, now)

	pctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	if err := s.repos.Sessions.Put(pctx, session); err != nil {
		return nil, s.classify(err, "[Service.WriteSession] sessions.Put")
	}
	return session.Attributes.Public(), nil
}

// LoginURL builds the delivery URL embedding the raw token:
// <host>validate/?token=<raw>&uid=<identity>&host=<origin>.
func (s *Service) LoginURL(rawToken, identity, origin string) string {
	return s.publicHost + "validate/?token=" + rawToken +
		"&uid=" + url.QueryEscape(identity) +
		"&host=" + url.QueryEscape(origin)
}

// TenantURL returns the public base URL of the tenant database for
// (identity, origin).
func (s *Service) TenantURL(identity, origin string) string {
	return s.publicHost + "db/" + tenants.Name(identity, origin)
}

// hashToken computes the bcrypt digest of rawToken under a concurrency cap
// and the per-call deadline. Hash failure is fatal to the enclosing
// operation.
func (s *Service) hashToken(ctx context.Context, rawToken string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	select {
	case s.hashSlots <- struct{}{}:
	case <-ctx.Done():
		return "", s.classify(ctx.Err(), "[Service.hashToken] acquire hash slot")
	}

	type result struct {
		digest string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		defer func() { <-s.hashSlots }()
		digest, err := s.hasher.Hash(rawToken)
		done <- result{digest: digest, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", errors.Wrap(res.err, "[Service.hashToken] hasher.Hash")
		}
		return res.digest, nil
	case <-ctx.Done():
		return "", s.classify(ctx.Err(), "[Service.hashToken] hash")
	}
}

// compareToken verifies rawToken against digest under the same cap and
// deadline as hashToken.
func (s *Service) compareToken(ctx context.Context, rawToken, digest string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	select {
	case s.hashSlots <- struct{}{}:
	case <-ctx.Done():
		return false, s.classify(ctx.Err(), "[Service.compareToken] acquire hash slot")
	}

	done := make(chan bool, 1)
	go func() {
		defer func() { <-s.hashSlots }()
		done <- s.hasher.Compare(rawToken, digest)
	}()

	select {
	case match := <-done:
		return match, nil
	case <-ctx.Done():
		return false, s.classify(ctx.Err(), "[Service.compareToken] compare")
	}
}

// classify maps deadline failures onto ErrTimeout and wraps everything else
// opaquely. Storage details are logged, never returned to callers.
func (s *Service) classify(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		log.Error().Err(err).Str("op", op).Msg("External call timed out")
		return errors.Wrap(ErrTimeout, op)
	}
	log.Error().Err(err).Str("op", op).Msg("Storage failure")
	return errors.Wrap(err, op)
}

// generateToken returns a cryptographically random, URL-safe raw token.
func generateToken() (string, error) {
	buf := make([]byte, rawTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "rand.Read")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
