package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	portEnvVar    = "PORT"
	appNameVar    = "APP_NAME"
	hostURLEnvVar = "HOST"
	envEnvVar     = "ENV"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "3030")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "PouchBase")
}

// GetHostURL returns the public base URL the gateway is exposed on. It is
// embedded in delivery URLs and tenant database URLs.
func (e EnvVars) GetHostURL() string {
	host := GetEnv(hostURLEnvVar, "http://127.0.0.1"+e.GetPort()+"/")
	if !strings.HasSuffix(host, "/") {
		host += "/"
	}
	return host
}

func (EnvVars) GetEnv() string {
	return GetEnv(envEnvVar, "DEV")
}

// GetEnv reads an environment variable with a fallback default.
func GetEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}
