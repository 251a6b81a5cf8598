package server

import (
	"net/http"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// SessionCookieName is the gateway's session cookie.
const SessionCookieName = "pouchbase_session"

// sessionCookieMaxAge matches the 30-day session lifetime of the original
// service.
const sessionCookieMaxAge = 30 * 24 * time.Hour

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// CookieManager issues and verifies the signed, client-held session cookie.
// The cookie payload is the authenticating fact: as long as the signing key
// is stable, authentication survives process restarts. The key is mandatory
// configuration; there is no baked-in default to fall back to.
type CookieManager struct {
	signingKey []byte
	maxAge     time.Duration
}

// NewCookieManager creates a cookie manager with the given signing key.
func NewCookieManager(signingKey string) (*CookieManager, error) {
	if signingKey == "" {
		return nil, errors.New("[NewCookieManager] cookie signing key is required")
	}
	return &CookieManager{
		signingKey: []byte(signingKey),
		maxAge:     sessionCookieMaxAge,
	}, nil
}

// Issue sets the session cookie marking identity as authenticated.
func (c *CookieManager) Issue(w http.ResponseWriter, identity string) error {
	now := NowTimeFunc()
	claims := jwtlib.MapClaims{
		"sub": identity,
		"iat": now.Unix(),
		"exp": now.Add(c.maxAge).Unix(),
	}

	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return errors.Wrap(err, "[CookieManager.Issue] sign session cookie")
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(c.maxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Identity extracts the authenticated identity from the request's session
// cookie. ok is false for missing, malformed, expired or tampered cookies;
// all of them read as Anonymous.
func (c *CookieManager) Identity(r *http.Request) (identity string, ok bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	token, err := jwtlib.Parse(cookie.Value, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.signingKey, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", false
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", false
	}
	return sub, true
}

// Clear expires the session cookie. The UserSession document the broker
// holds is deliberately untouched.
func (c *CookieManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
