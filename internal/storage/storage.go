// Package storage provides SQLite-backed caching of daily reference closes,
// so a restart during the same session does not refetch the full universe.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/movescan/movescan/internal/logger"
	"github.com/movescan/movescan/internal/refprice"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database holding cached reference closes.
type Storage struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/movescan/refprices.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "movescan", "refprices.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ref_closes (
			trade_date  TEXT NOT NULL,
			symbol      TEXT NOT NULL,
			close       REAL NOT NULL,
			fetched_at  INTEGER NOT NULL,
			PRIMARY KEY (trade_date, symbol)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ref_closes_date ON ref_closes(trade_date)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveCloses stores the full universe of closes for the given session date,
// replacing any previously cached rows for that date.
func (s *Storage) SaveCloses(date time.Time, closes map[string]float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	day := dateKey(date)
	if _, err := tx.Exec(`DELETE FROM ref_closes WHERE trade_date = ?`, day); err != nil {
		return fmt.Errorf("failed to clear stale closes: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO ref_closes (trade_date, symbol, close, fetched_at) VALUES (?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	for symbol, close := range closes {
		if _, err := stmt.Exec(day, symbol, close, now); err != nil {
			return fmt.Errorf("failed to insert close for %s: %w", symbol, err)
		}
	}

	return tx.Commit()
}

// LoadCloses returns the cached universe for the given session date, or an
// empty map when nothing is cached.
func (s *Storage) LoadCloses(date time.Time) (map[string]float64, error) {
	rows, err := s.db.Query(`SELECT symbol, close FROM ref_closes WHERE trade_date = ?`, dateKey(date))
	if err != nil {
		return nil, fmt.Errorf("failed to query closes: %w", err)
	}
	defer rows.Close()

	closes := make(map[string]float64)
	for rows.Next() {
		var symbol string
		var close float64
		if err := rows.Scan(&symbol, &close); err != nil {
			return nil, fmt.Errorf("failed to scan close: %w", err)
		}
		closes[symbol] = close
	}
	return closes, rows.Err()
}

// PurgeBefore deletes cached closes for sessions older than the given date.
func (s *Storage) PurgeBefore(date time.Time) error {
	if _, err := s.db.Exec(`DELETE FROM ref_closes WHERE trade_date < ?`, dateKey(date)); err != nil {
		return fmt.Errorf("failed to purge old closes: %w", err)
	}
	return nil
}

func dateKey(date time.Time) string {
	return date.Format("2006-01-02")
}

// CachedSource decorates a refprice.Source with the local cache: a hit for
// the requested date skips the remote fetch entirely.
type CachedSource struct {
	store *Storage
	src   refprice.Source
}

// NewCachedSource wraps src with cache lookups against store.
func NewCachedSource(store *Storage, src refprice.Source) *CachedSource {
	return &CachedSource{store: store, src: src}
}

// DailyCloses implements refprice.Source. Cache read/write failures degrade
// to the remote fetch; they never fail startup on their own.
func (c *CachedSource) DailyCloses(ctx context.Context, date time.Time) (map[string]float64, error) {
	cached, err := c.store.LoadCloses(date)
	if err != nil {
		logger.Warn("Failed to read reference close cache: %v", err)
	} else if len(cached) > 0 {
		logger.Info("Loaded %d cached reference closes for %s", len(cached), dateKey(date))
		return cached, nil
	}

	closes, err := c.src.DailyCloses(ctx, date)
	if err != nil {
		return nil, err
	}

	if err := c.store.SaveCloses(date, closes); err != nil {
		logger.Warn("Failed to cache reference closes: %v", err)
	}
	return closes, nil
}
