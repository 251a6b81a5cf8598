package config

import (
	"strconv"
	"time"
)

type SecurityConfig interface {
	GetCookieSigningKey() string
	GetBcryptCost() int
	GetTokenExpiry() time.Duration
	GetCallTimeout() time.Duration
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetCookieSigningKey returns the mandatory session-cookie signing key.
// Validated in New; an empty value never reaches the server.
func (Security) GetCookieSigningKey() string {
	return GetEnv("COOKIE_SECRET", "")
}

// GetBcryptCost returns the token hashing work factor.
func (Security) GetBcryptCost() int {
	cost, err := strconv.Atoi(GetEnv("BCRYPT_COST", "10"))
	if err != nil {
		return 10
	}
	return cost
}

// GetTokenExpiry returns how long a pending login token stays redeemable.
// Zero (the default) keeps tokens valid until overwritten or redeemed.
func (Security) GetTokenExpiry() time.Duration {
	d, err := time.ParseDuration(GetEnv("TOKEN_EXPIRY", "0"))
	if err != nil {
		return 0
	}
	return d
}

// GetCallTimeout bounds each external call made by the broker.
func (Security) GetCallTimeout() time.Duration {
	d, err := time.ParseDuration(GetEnv("CALL_TIMEOUT", "10s"))
	if err != nil {
		return 10 * time.Second
	}
	return d
}
