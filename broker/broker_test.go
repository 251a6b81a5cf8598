package broker_test

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/pouchdb/pouchbase/attrs"
	"github.com/pouchdb/pouchbase/broker"
	"github.com/pouchdb/pouchbase/credentials"
	"github.com/pouchdb/pouchbase/notify/notifyfakes"
	"github.com/pouchdb/pouchbase/sessions"
	"github.com/pouchdb/pouchbase/store/memory"
	"github.com/pouchdb/pouchbase/tokens"
	"github.com/stretchr/testify/require"
)

const (
	testIdentity = "dale@x.com"
	testOrigin   = "http://a/"
	otherOrigin  = "http://b/"
	testHost     = "http://127.0.0.1:3030/"
)

type testFixture struct {
	notifier *notifyfakes.FakeNotifier
	service  *broker.Service
}

func setupTestFixture(t *testing.T, options ...broker.Option) *testFixture {
	t.Helper()

	st := memory.New()
	notifier := notifyfakes.NewFakeNotifier()

	repos := broker.Repos{
		Tokens:   tokens.NewStoreRepo(st),
		Sessions: sessions.NewStoreRepo(st),
	}

	options = append([]broker.Option{broker.WithNotifier(notifier)}, options...)
	service, err := broker.New(repos, credentials.NewHasher(4), testHost, options...)
	require.NoError(t, err)

	return &testFixture{notifier: notifier, service: service}
}

// requestLogin issues a login and returns the raw token captured from the
// delivery URL.
func (f *testFixture) requestLogin(t *testing.T, details attrs.Attributes, origin string) string {
	t.Helper()

	before := len(f.notifier.Deliveries())
	require.NoError(t, f.service.RequestLogin(context.Background(), details, origin))
	require.Len(t, f.notifier.Deliveries(), before+1)

	return tokenFromURL(t, f.notifier.Last().LoginURL)
}

func tokenFromURL(t *testing.T, loginURL string) string {
	t.Helper()

	parsed, err := url.Parse(loginURL)
	require.NoError(t, err)
	token := parsed.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

func TestLoginAndValidate(t *testing.T) {
	f := setupTestFixture(t)

	token := f.requestLogin(t, attrs.Attributes{"email": testIdentity}, testOrigin)
	err := f.service.ValidateToken(context.Background(), testIdentity, testOrigin, token)
	require.NoError(t, err)
}

func TestDeliveryURLFormat(t *testing.T) {
	f := setupTestFixture(t)

	f.requestLogin(t, attrs.Attributes{"email": testIdentity}, testOrigin)
	loginURL := f.notifier.Last().LoginURL

	require.True(t, strings.HasPrefix(loginURL, testHost+"validate/?token="))
	parsed, err := url.Parse(loginURL)
	require.NoError(t, err)
	require.Equal(t, testIdentity, parsed.Query().Get("uid"))
	require.Equal(t, testOrigin, parsed.Query().Get("host"))
	require.Equal(t, testIdentity, f.notifier.Last().Identity)
}

func TestLoginWithoutIdentity(t *testing.T) {
	f := setupTestFixture(t)

	err := f.service.RequestLogin(context.Background(), attrs.Attributes{"name": "dale"}, testOrigin)
	require.ErrorIs(t, err, broker.ErrMissingIdentity)
	require.Empty(t, f.notifier.Deliveries())
}

func TestRelogingInvalidatesPreviousToken(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	first := f.requestLogin(t, attrs.Attributes{"email": testIdentity}, testOrigin)
	second := f.requestLogin(t, attrs.Attributes{"email": testIdentity}, testOrigin)

	require.ErrorIs(t, f.service.ValidateToken(ctx, testIdentity, testOrigin, first),
		broker.ErrVerificationFailed)
	require.NoError(t, f.service.ValidateToken(ctx, testIdentity, testOrigin, second))
}

func TestTokenIsSingleUse(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	token := f.requestLogin(t, attrs.Attributes{"email": testIdentity}, testOrigin)
	require.NoError(t, f.service.ValidateToken(ctx, testIdentity, testOrigin, token))
	require.ErrorIs(t, f.service.ValidateToken(ctx, testIdentity, testOrigin, token),
		broker.ErrVerificationFailed)
}

func TestConcurrentValidationAtMostOneWins(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	token := f.requestLogin(t, attrs.Attributes{"email": testIdentity}, testOrigin)

	const validators = 8
	start := make(chan struct{})
	results := make(chan error, validators)
	for i := 0; i < validators; i++ {
		go func() {
			<-start
			results <- f.service.ValidateToken(ctx, testIdentity, testOrigin, token)
		}()
	}
	close(start)

	wins := 0
	for i := 0; i < validators; i++ {
		if err := <-results; err == nil {
			wins++
		} else {
			require.Error(t, err)
		}
	}
	require.Equal(t, 1, wins)
}

// lostRaceTokenRepo reports every redemption as already claimed by a
// competing validator.
type lostRaceTokenRepo struct {
	tokens.Repo
}

func (r lostRaceTokenRepo) Redeem(ctx context.Context, token *tokens.PendingToken) error {
	return tokens.ErrRedeemed
}

func TestValidationLosingRedemptionRaceFailsVerification(t *testing.T) {
	st := memory.New()
	notifier := notifyfakes.NewFakeNotifier()
	repos := broker.Repos{
		Tokens:   lostRaceTokenRepo{Repo: tokens.NewStoreRepo(st)},
		Sessions: sessions.NewStoreRepo(st),
	}
	service, err := broker.New(repos, credentials.NewHasher(4), testHost, broker.WithNotifier(notifier))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, service.RequestLogin(ctx, attrs.Attributes{"email": testIdentity}, testOrigin))
	token := tokenFromURL(t, notifier.Last().LoginURL)

	// The token read succeeds and the secret matches, but the conditional
	// delete loses; the caller sees the same generic failure as a wrong token.
	err = service.ValidateToken(ctx, testIdentity, testOrigin, token)
	require.ErrorIs(t, err, broker.ErrVerificationFailed)
}

// stalledTokenRepo blocks reads until the per-call deadline expires.
type stalledTokenRepo struct {
	tokens.Repo
}

func (r stalledTokenRepo) Get(ctx context.Context, identity, origin string) (*tokens.PendingToken, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStorageDeadlineSurfacesAsTimeout(t *testing.T) {
	st := memory.New()
	repos := broker.Repos{
		Tokens:   stalledTokenRepo{Repo: tokens.NewStoreRepo(st)},
		Sessions: sessions.NewStoreRepo(st),
	}
	service, err := broker.New(repos, credentials.NewHasher(4), testHost,
		broker.WithCallTimeout(50*time.Millisecond))
	require.NoError(t, err)

	err = service.ValidateToken(context.Background(), testIdentity, testOrigin, "any-token")
	require.ErrorIs(t, err, broker.ErrTimeout)
	require.NotErrorIs(t, err, broker.ErrVerificationFailed)
}

func TestValidateWithWrongOriginFails(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	token := f.requestLogin(t, attrs.Attributes{"email": testIdentity}, testOrigin)
	require.ErrorIs(t, f.service.ValidateToken(ctx, testIdentity, otherOrigin, token),
		broker.ErrVerificationFailed)

	// The token itself is still redeemable under the right origin.
	require.NoError(t, f.service.ValidateToken(ctx, testIdentity, testOrigin, token))
}

func TestUnknownIdentityAndWrongTokenAreIndistinguishable(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	f.requestLogin(t, attrs.Attributes{"email": testIdentity}, testOrigin)

	missing := f.service.ValidateToken(ctx, "nobody@x.com", testOrigin, "whatever")
	wrong := f.service.ValidateToken(ctx, testIdentity, testOrigin, "wrong-token")
	require.ErrorIs(t, missing, broker.ErrVerificationFailed)
	require.ErrorIs(t, wrong, broker.ErrVerificationFailed)
}

func TestWrongTokenLeavesPendingTokenIntact(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	token := f.requestLogin(t, attrs.Attributes{"email": testIdentity}, testOrigin)
	require.ErrorIs(t, f.service.ValidateToken(ctx, testIdentity, testOrigin, "wrong-token"),
		broker.ErrVerificationFailed)
	require.NoError(t, f.service.ValidateToken(ctx, testIdentity, testOrigin, token))
}

func TestTokenExpiryPolicy(t *testing.T) {
	now := time.Now()
	f := setupTestFixture(t,
		broker.WithTokenExpiry(30*time.Minute),
		broker.WithNowTime(func() time.Time { return now }))
	ctx := context.Background()

	token := f.requestLogin(t, attrs.Attributes{"email": testIdentity}, testOrigin)

	now = now.Add(time.Hour)
	require.ErrorIs(t, f.service.ValidateToken(ctx, testIdentity, testOrigin, token),
		broker.ErrVerificationFailed)
}

func TestValidateMergesLoginDetailsIntoSession(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	details := attrs.Attributes{
		"email":  testIdentity,
		"name":   "Dale",
		"_admin": true, // reserved, must be dropped at the merge boundary
	}
	token := f.requestLogin(t, details, testOrigin)
	require.NoError(t, f.service.ValidateToken(ctx, testIdentity, testOrigin, token))

	got, err := f.service.ReadSession(ctx, testIdentity, testOrigin)
	require.NoError(t, err)
	require.Equal(t, "Dale", got["name"])
	require.NotContains(t, got, "_admin")
	require.NotContains(t, got, "email")
}

func TestNotifierFailureIsNonFatal(t *testing.T) {
	f := setupTestFixture(t)
	f.notifier.Err = context.DeadlineExceeded
	ctx := context.Background()

	err := f.service.RequestLogin(ctx, attrs.Attributes{"email": testIdentity}, testOrigin)
	require.NoError(t, err)
}

func TestReadSessionWithoutDocument(t *testing.T) {
	f := setupTestFixture(t)

	got, err := f.service.ReadSession(context.Background(), testIdentity, testOrigin)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestWriteSessionMergesNotReplaces(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	first, err := f.service.WriteSession(ctx, testIdentity, testOrigin, attrs.Attributes{"a": 1})
	require.NoError(t, err)
	require.Contains(t, first, "a")

	second, err := f.service.WriteSession(ctx, testIdentity, testOrigin, attrs.Attributes{"b": 2})
	require.NoError(t, err)
	require.Contains(t, second, "a")
	require.Contains(t, second, "b")
}

func TestWriteSessionDropsReservedKeys(t *testing.T) {
	f := setupTestFixture(t)

	got, err := f.service.WriteSession(context.Background(), testIdentity, testOrigin,
		attrs.Attributes{"_rev": "1-evil", "colour": "blue"})
	require.NoError(t, err)
	require.NotContains(t, got, "_rev")
	require.Equal(t, "blue", got["colour"])
}

func TestSessionsAreIsolatedByOrigin(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	_, err := f.service.WriteSession(ctx, testIdentity, testOrigin, attrs.Attributes{"plan": "pro"})
	require.NoError(t, err)

	other, err := f.service.ReadSession(ctx, testIdentity, otherOrigin)
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestTenantURL(t *testing.T) {
	f := setupTestFixture(t)

	got := f.service.TenantURL(testIdentity, testOrigin)
	require.True(t, strings.HasPrefix(got, testHost+"db/"))
	require.NotEqual(t, f.service.TenantURL(testIdentity, otherOrigin), got)
}
