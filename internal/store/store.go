// Package store is the blob substrate the report and user collections live in.
//
// A Store maps a key to an opaque byte blob. Collections layer a JSON array of
// records over one key. Backends:
//   - MemoryStore: in-process, for tests and demos.
//   - FileStore: one JSON file per key in a directory.
//   - PostgresStore, MySQLStore: a kv_blobs table.
//   - RedisStore: plain GET/SET.
package store

import (
	"context"
	"errors"
)

// Collection keys shared with the browser client's local storage.
const (
	ReportsKey = "opengov_reports"
	UsersKey   = "opengov_users"
)

// ErrKeyNotFound is returned by Get when nothing has been stored under a key.
var ErrKeyNotFound = errors.New("key not found")

// Store is an opaque get/set blob store.
type Store interface {
	// Get returns the blob stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set replaces the blob stored under key.
	Set(ctx context.Context, key string, value []byte) error
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}
