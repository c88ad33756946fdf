// Package database opens the relational database behind the entity store
// and manages its connection pool: pool tuning, a background health check,
// statistics for the status endpoint and transactions with retry on
// deadlocks and serialization failures.
//
// Supported drivers are postgres, mysql and sqlite (pure Go, no cgo).
package database
