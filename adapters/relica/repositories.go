package relica

import (
	"database/sql"
)

// Repositories holds all repository implementations.
type Repositories struct {
	Cache       *CacheRepository
	Revocations *RevocationRepository
	Activity    *ActivityRepository
}

// NewRepositories creates all repository implementations using Relica.
//
// The db parameter should be an *sql.DB connected to MySQL, PostgreSQL, or SQLite.
// The driverName should be "mysql", "postgres", or "sqlite3".
// The table prefix defaults to "realtime_" but can be customized.
func NewRepositories(db *sql.DB, driverName string) *Repositories {
	return &Repositories{
		Cache:       NewCacheRepository(db, driverName),
		Revocations: NewRevocationRepository(db, driverName),
		Activity:    NewActivityRepository(db, driverName),
	}
}

// NewRepositoriesWithPrefix creates all repository implementations with a custom table prefix.
func NewRepositoriesWithPrefix(db *sql.DB, driverName, prefix string) *Repositories {
	return &Repositories{
		Cache:       NewCacheRepositoryWithPrefix(db, driverName, prefix),
		Revocations: NewRevocationRepositoryWithPrefix(db, driverName, prefix),
		Activity:    NewActivityRepositoryWithPrefix(db, driverName, prefix),
	}
}
