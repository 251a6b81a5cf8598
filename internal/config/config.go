// Package config exposes the process configuration surface as composable
// interfaces over environment variables.
package config

import "github.com/pkg/errors"

type Config interface {
	EnvConfig
	SecurityConfig
	StorageConfig
	SmtpConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetHostURL() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Security
	Storage
	Smtp
}

// New builds the configuration and validates its mandatory parts. The cookie
// signing key has no default on purpose: a fixed key would let anyone mint
// authenticated sessions.
func New() (Config, error) {
	c := mainConfig{}
	if c.GetCookieSigningKey() == "" {
		return nil, errors.New("[config.New] COOKIE_SECRET must be set")
	}
	return c, nil
}
