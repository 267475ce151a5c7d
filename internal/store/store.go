package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/valpere/pas2cs/internal"
	"github.com/valpere/pas2cs/internal/tracker"
)

// ErrNotFound is returned when an entry id does not exist.
var ErrNotFound = errors.New("history entry not found")

// Store keeps finished conversions keyed by the hash of their normalized
// Pascal source, so an unchanged file is not sent to the model again.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversions (
		id TEXT PRIMARY KEY,
		source_name TEXT NOT NULL DEFAULT '',
		source_hash TEXT NOT NULL UNIQUE,
		source_text TEXT NOT NULL,
		raw_code TEXT NOT NULL,
		code TEXT NOT NULL,
		validated BOOLEAN DEFAULT FALSE,
		model TEXT NOT NULL DEFAULT '',
		latency_ms INTEGER DEFAULT 0,
		usage_count INTEGER DEFAULT 1,
		invalidated BOOLEAN DEFAULT FALSE,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_conversions_last_used ON conversions(last_used);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Conversion is the stored outcome of one pipeline run.
type Conversion struct {
	RawCode   string
	Code      string
	Validated bool
	Latency   time.Duration
}

// Entry is a row from the conversions table.
type Entry struct {
	ID          string
	SourceName  string
	SourceHash  string
	Code        string
	Validated   bool
	Model       string
	LatencyMs   int64
	UsageCount  int
	Invalidated bool
	LastUsed    time.Time
	CreatedAt   time.Time
}

// Stats summarises the conversion history.
type Stats struct {
	TotalEntries     int
	ActiveEntries    int
	InvalidEntries   int
	ValidatedEntries int
	TotalUsage       int
}

// SourceKey is the cache key for a Pascal source: the hash of its trimmed,
// NFC-normalized text.
func SourceKey(source string) string {
	return tracker.Hash(normalizeText(source))
}

// GetCachedConversion returns the stored code for source. Invalidated rows
// are treated as misses, and so are unvalidated rows when requireValidated
// is set.
func (s *Store) GetCachedConversion(ctx context.Context, source string, requireValidated bool) (string, bool, error) {
	key := SourceKey(source)

	var code string
	var invalidated, validated bool
	err := s.db.QueryRowContext(ctx,
		`SELECT code, invalidated, validated FROM conversions WHERE source_hash = ?`, key).Scan(&code, &invalidated, &validated)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query history: %w", err)
	}
	if invalidated || (requireValidated && !validated) {
		return "", false, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE conversions SET usage_count = usage_count + 1, last_used = ? WHERE source_hash = ?`,
		time.Now(), key)
	if err != nil {
		return code, true, fmt.Errorf("failed to update usage: %w", err)
	}
	return code, true, nil
}

// SaveConversion stores (or replaces) the conversion for req.SourceText.
func (s *Store) SaveConversion(ctx context.Context, req internal.ConversionRequest, conv Conversion) error {
	created := req.Timestamp
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO conversions
		 (id, source_name, source_hash, source_text, raw_code, code, validated, model, latency_ms, usage_count, invalidated, last_used, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, FALSE, ?, ?)`,
		req.ID, req.SourceName, SourceKey(req.SourceText), normalizeText(req.SourceText),
		conv.RawCode, conv.Code, conv.Validated, req.Model, conv.Latency.Milliseconds(),
		time.Now(), created)
	if err != nil {
		return fmt.Errorf("failed to save conversion: %w", err)
	}
	return nil
}

// Invalidate marks an entry so the next conversion of the same source goes
// back to the model.
func (s *Store) Invalidate(ctx context.Context, id string) error {
	return s.execByID(ctx, `UPDATE conversions SET invalidated = TRUE WHERE id = ?`, id)
}

// InvalidateSource is Invalidate keyed by source text.
func (s *Store) InvalidateSource(ctx context.Context, source string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversions SET invalidated = TRUE WHERE source_hash = ?`, SourceKey(source))
	return err
}

// Delete permanently removes an entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.execByID(ctx, `DELETE FROM conversions WHERE id = ?`, id)
}

func (s *Store) execByID(ctx context.Context, query, id string) error {
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Clear removes every entry and reports how many were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversions`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const entryColumns = `id, source_name, source_hash, code, validated, model, latency_ms, usage_count, invalidated, last_used, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.SourceName, &e.SourceHash, &e.Code, &e.Validated, &e.Model,
		&e.LatencyMs, &e.UsageCount, &e.Invalidated, &e.LastUsed, &e.CreatedAt)
	return e, err
}

// Get returns a single entry by id.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM conversions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// List returns entries ordered by most recently used. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM conversions ORDER BY last_used DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns summary statistics for the history.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN NOT invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN validated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(usage_count), 0)
		FROM conversions`).Scan(
		&stats.TotalEntries,
		&stats.ActiveEntries,
		&stats.InvalidEntries,
		&stats.ValidatedEntries,
		&stats.TotalUsage,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText trims whitespace and applies Unicode NFC normalization
// for consistent cache key comparison.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
