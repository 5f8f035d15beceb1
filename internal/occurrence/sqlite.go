package occurrence

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is the default durable Store backend: one row per
// (instrument, detector), upserted in place.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database with WAL mode and initializes
// the schema. The connection pool is capped at one writer; SQLite serializes
// row updates, which gives us the per-key write atomicity the detectors need.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS occurrences (
			instrument TEXT NOT NULL,
			detector   TEXT NOT NULL,
			key        TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (instrument, detector)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[occurrence] sqlite store ready at %s", path)
	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, instrument, detector string) (string, bool, error) {
	var key string
	err := s.db.QueryRowContext(ctx,
		`SELECT key FROM occurrences WHERE instrument = ? AND detector = ?`,
		instrument, detector,
	).Scan(&key)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("occurrence get: %w", err)
	}
	return key, true, nil
}

func (s *SQLite) Set(ctx context.Context, instrument, detector, key string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO occurrences (instrument, detector, key, updated_at)
		VALUES (?, ?, ?, strftime('%s', 'now'))
		ON CONFLICT (instrument, detector) DO UPDATE SET
			key = excluded.key, updated_at = excluded.updated_at
	`, instrument, detector, key)
	if err != nil {
		return fmt.Errorf("occurrence set: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }
