// Package quota persists per-provider daily call counts in a local SQLite
// database so quotas survive across runs within the same UTC day.
package quota

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Ledger is the daily-quota store. Safe for concurrent use; SQLite serializes
// writers and the counts are tiny.
type Ledger struct {
	db *sql.DB
}

// Open creates or opens the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open quota ledger: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS daily_quota (
			provider TEXT NOT NULL,
			day      TEXT NOT NULL,
			calls    INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (provider, day)
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init quota ledger: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the database handle.
func (l *Ledger) Close() error { return l.db.Close() }

func today() string { return time.Now().UTC().Format("2006-01-02") }

// Reserve atomically increments the provider's count for today if it is
// still under the cap, and reports whether the call was admitted.
func (l *Ledger) Reserve(ctx context.Context, provider string, dailyCap int) (bool, error) {
	if dailyCap <= 0 {
		return true, nil
	}
	day := today()
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO daily_quota (provider, day, calls) VALUES (?, ?, 1)
		ON CONFLICT (provider, day) DO UPDATE SET calls = calls + 1
		WHERE calls < ?`,
		provider, day, dailyCap)
	if err != nil {
		return false, fmt.Errorf("reserve quota: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve quota: %w", err)
	}
	return n > 0, nil
}

// Used returns today's recorded call count for a provider.
func (l *Ledger) Used(ctx context.Context, provider string) (int, error) {
	var calls int
	err := l.db.QueryRowContext(ctx,
		`SELECT calls FROM daily_quota WHERE provider = ? AND day = ?`,
		provider, today()).Scan(&calls)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read quota: %w", err)
	}
	return calls, nil
}

// Prune deletes rows older than the retention window.
func (l *Ledger) Prune(ctx context.Context, keepDays int) error {
	if keepDays <= 0 {
		keepDays = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -keepDays).Format("2006-01-02")
	_, err := l.db.ExecContext(ctx, `DELETE FROM daily_quota WHERE day < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("prune quota ledger: %w", err)
	}
	return nil
}
