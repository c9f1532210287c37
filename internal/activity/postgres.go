package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey serialises concurrent appends across server instances.
const advisoryLockKey = int64(5_318_008_271)

const selectColumns = `idx, timestamp, report_id, user_id, user_name, action, description, data_hash, prev_hash, hash`

// PostgresLedger persists the chain in the activity_log table.
type PostgresLedger struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresLedger creates a PostgresLedger backed by pool. The genesis row
// is inserted by the migration.
func NewPostgresLedger(pool *pgxpool.Pool, logger *zap.Logger) *PostgresLedger {
	return &PostgresLedger{pool: pool, logger: logger}
}

// Append implements Ledger. The tail read and insert run in one transaction
// under an advisory lock.
func (l *PostgresLedger) Append(ctx context.Context, rec Record, payload any) (*Entry, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	var prevIdx int
	var prevHash string
	if err := tx.QueryRow(ctx,
		"SELECT idx, hash FROM activity_log ORDER BY idx DESC LIMIT 1",
	).Scan(&prevIdx, &prevHash); err != nil {
		return nil, fmt.Errorf("read activity tail: %w", err)
	}

	entry := &Entry{
		Index:       prevIdx + 1,
		Timestamp:   time.Now().UTC().Truncate(time.Microsecond),
		ReportID:    rec.ReportID,
		UserID:      rec.UserID,
		UserName:    rec.UserName,
		Action:      rec.Action,
		Description: rec.Description,
		DataHash:    sha256Sum(payloadJSON),
		PrevHash:    prevHash,
	}
	entry.Hash = hashEntry(entry)

	if _, err := tx.Exec(ctx,
		`INSERT INTO activity_log (`+selectColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.Index, entry.Timestamp, entry.ReportID, entry.UserID, entry.UserName,
		entry.Action, entry.Description, entry.DataHash, entry.PrevHash, entry.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert activity entry: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit activity tx: %w", err)
	}

	l.logger.Debug("activity appended",
		zap.Int("idx", entry.Index),
		zap.String("action", entry.Action),
		zap.String("report_id", entry.ReportID),
	)
	return entry, nil
}

// ForReport implements Ledger.
func (l *PostgresLedger) ForReport(ctx context.Context, reportID string) ([]*Entry, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM activity_log WHERE report_id = $1 AND idx > 0 ORDER BY idx ASC`,
		reportID,
	)
	if err != nil {
		return nil, fmt.Errorf("query activity for %s: %w", reportID, err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Len implements Ledger.
func (l *PostgresLedger) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM activity_log").Scan(&n); err != nil {
		return 0, fmt.Errorf("count activity: %w", err)
	}
	return n, nil
}

// Verify implements Ledger. It streams the whole table in index order.
func (l *PostgresLedger) Verify(ctx context.Context) error {
	rows, err := l.pool.Query(ctx, `SELECT `+selectColumns+` FROM activity_log ORDER BY idx ASC`)
	if err != nil {
		return fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	var prev *Entry
	for rows.Next() {
		curr, err := scanEntry(rows)
		if err != nil {
			return err
		}
		if err := verifyLink(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return rows.Err()
}

// Root implements Ledger.
func (l *PostgresLedger) Root(ctx context.Context) (string, error) {
	var hash string
	if err := l.pool.QueryRow(ctx,
		"SELECT hash FROM activity_log ORDER BY idx DESC LIMIT 1",
	).Scan(&hash); err != nil {
		return "", fmt.Errorf("get activity root: %w", err)
	}
	return hash, nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	e := &Entry{}
	if err := row.Scan(
		&e.Index, &e.Timestamp, &e.ReportID, &e.UserID, &e.UserName,
		&e.Action, &e.Description, &e.DataHash, &e.PrevHash, &e.Hash,
	); err != nil {
		return nil, fmt.Errorf("scan activity row: %w", err)
	}
	e.Timestamp = e.Timestamp.UTC()
	return e, nil
}
