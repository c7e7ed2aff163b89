// Package store persists the Guests and ScanLogs collections.
//
// Each collection lives in its own named slot as a JSON array, read once at
// startup and overwritten in full after every mutation:
//   - eventguard_guests_v1
//   - eventguard_logs_v1
//
// A missing slot loads as an empty collection. There are no partial writes
// and no transactions; a single writer (the sync engine) owns the store.
//
// # Backends
//
// Slots is the key-value contract every backend implements:
//   - sqlite: WAL mode, single connection, goose migrations
//   - postgres: pgx stdlib driver, goose migrations
//   - redis: one string key per slot, optional key prefix
//   - badger: embedded LSM, on disk or in memory
//   - memory: a map, for tests
package store
