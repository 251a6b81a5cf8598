package config

import "strconv"

type StorageConfig interface {
	GetRedisAddr() string
	GetRedisDB() int
	GetDatabaseURL() string
	GetDatabasePrefix() string
	GetDatabaseAdminUser() string
	GetDatabaseAdminPassword() string
}

type Storage struct{}

var _ StorageConfig = Storage{}

// GetRedisAddr returns the Redis endpoint backing token and session storage.
func (Storage) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "127.0.0.1:6379")
}

func (Storage) GetRedisDB() int {
	db, err := strconv.Atoi(GetEnv("REDIS_DB", "0"))
	if err != nil {
		return 0
	}
	return db
}

// GetDatabaseURL returns the base URL of the tenant-database backend that
// /db/* requests are proxied to and tenant databases are provisioned on.
func (Storage) GetDatabaseURL() string {
	return GetEnv("DB_URL", "http://127.0.0.1:5984/")
}

// GetDatabasePrefix is prepended to every tenant database name.
func (Storage) GetDatabasePrefix() string {
	return GetEnv("DB_PREFIX", "pouchbase_")
}

func (Storage) GetDatabaseAdminUser() string {
	return GetEnv("DB_ADMIN_USER", "")
}

func (Storage) GetDatabaseAdminPassword() string {
	return GetEnv("DB_ADMIN_PASSWORD", "")
}
