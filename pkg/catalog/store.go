// Package catalog keeps a SQLite index of finished recordings and of files
// assembled from them.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Kind distinguishes captured takes from assembled files
type Kind string

const (
	KindTake      Kind = "take"
	KindAssembled Kind = "assembled"
)

// ErrNotFound is returned when no entry matches
var ErrNotFound = errors.New("catalog entry not found")

// Entry is one catalogued file
type Entry struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Path      string    `json:"path"`
	Duration  float64   `json:"duration,omitempty"`
	Segments  int       `json:"segments,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Kind  Kind
	Limit int
}

// Store is the catalog database
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// Open opens or creates the catalog at path
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger.With().Str("component", "catalog").Logger(),
		now:    time.Now,
	}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Debug().Str("path", path).Msg("Catalog opened")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS recordings (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			path TEXT NOT NULL,
			duration REAL NOT NULL DEFAULT 0,
			segments INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_recordings_kind ON recordings(kind);
		CREATE INDEX IF NOT EXISTS idx_recordings_created ON recordings(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// AddTake records a finished recording
func (s *Store) AddTake(ctx context.Context, path string, duration float64) (Entry, error) {
	return s.add(ctx, Entry{Kind: KindTake, Path: path, Duration: duration})
}

// AddAssembled records a file produced by concatenation
func (s *Store) AddAssembled(ctx context.Context, path string, segments int) (Entry, error) {
	return s.add(ctx, Entry{Kind: KindAssembled, Path: path, Segments: segments})
}

func (s *Store) add(ctx context.Context, e Entry) (Entry, error) {
	id, err := gonanoid.New()
	if err != nil {
		return Entry{}, fmt.Errorf("failed to generate id: %w", err)
	}
	e.ID = id
	e.CreatedAt = s.now().UTC().Truncate(time.Millisecond)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO recordings (id, kind, path, duration, segments, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.Path, e.Duration, e.Segments, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to insert entry: %w", err)
	}

	s.logger.Debug().
		Str("id", e.ID).
		Str("kind", string(e.Kind)).
		Str("path", e.Path).
		Msg("Catalog entry added")

	return e, nil
}

// Get returns one entry by id
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, path, duration, segments, created_at FROM recordings WHERE id = ?`, id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, err
}

// List returns entries newest first
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	query := `SELECT id, kind, path, duration, segments, created_at FROM recordings`
	var args []any

	if f.Kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(f.Kind))
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes an entry. The file itself is left alone.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e       Entry
		kind    string
		created int64
	)
	if err := sc.Scan(&e.ID, &kind, &e.Path, &e.Duration, &e.Segments, &created); err != nil {
		return Entry{}, err
	}
	e.Kind = Kind(kind)
	e.CreatedAt = time.UnixMilli(created).UTC()
	return e, nil
}
