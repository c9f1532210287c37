package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config selects and configures a backend.
type Config struct {
	Driver      string // memory | file | postgres | mysql | redis
	FileDir     string
	PostgresURL string
	MySQLDSN    string
	RedisAddr   string
	RedisPrefix string
}

// Open builds the Store named by cfg.Driver and checks it is reachable.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", "memory":
		s = NewMemoryStore()
	case "file":
		s, err = NewFileStore(cfg.FileDir)
	case "postgres":
		var pool *pgxpool.Pool
		pool, err = pgxpool.New(ctx, cfg.PostgresURL)
		if err == nil {
			s = NewPostgresStore(pool)
		}
	case "mysql":
		s, err = OpenMySQL(ctx, cfg.MySQLDSN)
	case "redis":
		s = NewRedisStore(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), cfg.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		s.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping %s store: %w", cfg.Driver, err)
	}
	logger.Info("store ready", zap.String("driver", cfg.Driver))
	return s, nil
}
