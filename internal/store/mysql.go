package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const mysqlSchema = `CREATE TABLE IF NOT EXISTS kv_blobs (
	blob_key   VARCHAR(191) NOT NULL PRIMARY KEY,
	blob_value LONGBLOB     NOT NULL,
	updated_at TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
)`

// MySQLStore keeps blobs in a kv_blobs table, created on first open.
type MySQLStore struct {
	db *sql.DB
}

// OpenMySQL connects with a go-sql-driver DSN, e.g.
// "user:pass@tcp(localhost:3306)/opengov?parseTime=true".
func OpenMySQL(ctx context.Context, dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	if _, err := db.ExecContext(ctx, mysqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv_blobs: %w", err)
	}
	return NewMySQLStore(db), nil
}

// NewMySQLStore wraps an open database handle.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// Get implements Store.
func (s *MySQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT blob_value FROM kv_blobs WHERE blob_key = ?", key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get blob %s: %w", key, err)
	}
	return value, nil
}

// Set implements Store.
func (s *MySQLStore) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_blobs (blob_key, blob_value) VALUES (?, ?)
		 ON DUPLICATE KEY UPDATE blob_value = VALUES(blob_value)`,
		key, value,
	); err != nil {
		return fmt.Errorf("set blob %s: %w", key, err)
	}
	return nil
}

// Ping implements Store.
func (s *MySQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
