// cmd/migrate applies the *.up.sql migrations in migrations/ to the postgres
// database used by the postgres store and activity drivers.
// The schema_migrations table uses the golang-migrate layout (bigint version
// + dirty flag) so the two tools are interchangeable.
//
// Usage:
//
//	go run ./cmd/migrate
//	DATABASE_URL=postgres://... go run ./cmd/migrate
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/opengov/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgFile := flag.String("config", "", "config file (default configs/opengov.yaml)")
	dir := flag.String("dir", "migrations", "migrations directory")
	flag.Parse()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		cfg, err := config.Load(*cfgFile)
		if err != nil {
			return err
		}
		dbURL = cfg.Store.PostgresURL
		if cfg.Activity.Driver == "postgres" {
			dbURL = cfg.Activity.PostgresURL
		}
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	fmt.Println("connected to database")

	if _, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version bigint NOT NULL,
			dirty   boolean NOT NULL,
			PRIMARY KEY (version)
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := os.ReadDir(*dir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	files, err := upMigrations(names)
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range files {
		var exists bool
		if err := db.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1 AND dirty = false)`,
			m.version,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check %s: %w", m.file, err)
		}
		if exists {
			fmt.Printf("  skip  %s (already applied)\n", m.file)
			continue
		}

		sql, err := os.ReadFile(filepath.Join(*dir, m.file))
		if err != nil {
			return fmt.Errorf("read %s: %w", m.file, err)
		}

		// dirty=true stays visible if the apply below crashes.
		if _, err := db.Exec(ctx,
			`INSERT INTO schema_migrations (version, dirty) VALUES ($1, true)
			 ON CONFLICT (version) DO UPDATE SET dirty = true`, m.version,
		); err != nil {
			return fmt.Errorf("mark dirty %s: %w", m.file, err)
		}

		if _, err := db.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply %s: %w", m.file, err)
		}

		if _, err := db.Exec(ctx,
			`UPDATE schema_migrations SET dirty = false WHERE version = $1`, m.version,
		); err != nil {
			return fmt.Errorf("mark clean %s: %w", m.file, err)
		}

		fmt.Printf("  apply %s\n", m.file)
		applied++
	}

	if applied == 0 {
		fmt.Println("nothing to migrate, already up to date")
	} else {
		fmt.Printf("applied %d migration(s)\n", applied)
	}
	return nil
}

type migration struct {
	version int64
	file    string
}

// upMigrations selects the *.up.sql files from names, ordered by version.
// Two files with the same version are an error.
func upMigrations(names []string) ([]migration, error) {
	var out []migration
	seen := make(map[int64]string)
	for _, name := range names {
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		ver, err := versionFromFile(name)
		if err != nil {
			return nil, fmt.Errorf("parse version from %s: %w", name, err)
		}
		if prev, ok := seen[ver]; ok {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", ver, prev, name)
		}
		seen[ver] = name
		out = append(out, migration{version: ver, file: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// versionFromFile extracts the leading integer from a migration filename.
// "001_kv_blobs.up.sql" → 1
func versionFromFile(filename string) (int64, error) {
	prefix, _, ok := strings.Cut(filename, "_")
	if !ok {
		return 0, fmt.Errorf("unexpected filename format")
	}
	return strconv.ParseInt(prefix, 10, 64)
}
