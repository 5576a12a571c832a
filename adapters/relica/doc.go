// Package relica provides persistence adapters using the Relica query builder.
//
// Relica (github.com/coregx/relica) is a lightweight, type-safe database query builder
// for Go with zero production dependencies.
//
// This package provides production-ready implementations of the engine's
// persistence interfaces:
//   - CacheRepository: persisted key-value cache rows
//   - RevocationRepository: realtime.RevocationStore for revoked tokens
//   - ActivityRepository: session activity records
//   - PersistedCache: realtime.Cache layering an in-memory tier over CacheRepository
//   - ActivityCache: realtime.Cache layering an in-memory tier over ActivityRepository
//
// Example usage:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/realtime"
//	    "github.com/coregx/realtime/adapters/lrucache"
//	    "github.com/coregx/realtime/adapters/relica"
//	    "github.com/coregx/realtime/model"
//	    _ "github.com/go-sql-driver/mysql"
//	)
//
//	// Open database connection
//	db, err := sql.Open("mysql", "user:pass@tcp(localhost:3306)/realtime_db?parseTime=true")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create repositories (driverName should be "mysql", "postgres", or "sqlite3")
//	repos := relica.NewRepositories(db, "mysql")
//
//	// Layer a persisted revoked-token cache over a bounded memory tier
//	memory, _ := lrucache.New(10000)
//	revoked, err := relica.NewPersistedCache(
//	    memory, repos.Cache, relica.JSONDecoder[model.RevokedToken](), logger)
//
//	revocation, err := realtime.NewTokenRevocation(
//	    realtime.WithRevocationCache(revoked),
//	    realtime.WithRevocationStore(repos.Revocations),
//	    realtime.WithRevocationLogger(logger),
//	)
package relica
