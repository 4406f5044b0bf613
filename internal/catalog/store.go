package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"shelf/internal/config"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// ErrSchemaMismatch indicates the catalog schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("catalog schema version mismatch")

// Book is one cataloged audiobook file, keyed by its absolute path.
type Book struct {
	Path       string     `json:"path"`
	Title      string     `json:"title"`
	Author     string     `json:"author,omitempty"`
	Series     string     `json:"series,omitempty"`
	Extension  string     `json:"extension"`
	SizeBytes  int64      `json:"size_bytes"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Store persists the book catalog in SQLite, separate from the operations
// database so library data and pipeline state age independently.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the catalog database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.StateDir, "catalog.db"))
}

// OpenPath opens the catalog database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	// Scan workers upsert concurrently; one pooled connection keeps the
	// pragmas in effect for every statement and serializes writers so they
	// never see SQLITE_BUSY from within this process.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit schema: %w", err)
		}
		return nil
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete the catalog database to reset)",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

// Upsert inserts or refreshes the catalog entry for a file path. The original
// created_at survives updates.
func (s *Store) Upsert(ctx context.Context, book *Book) error {
	if book == nil {
		return errors.New("book is nil")
	}
	if book.Path == "" {
		return errors.New("book path is empty")
	}
	now := time.Now().UTC()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = now

	var modified any
	if book.ModifiedAt != nil {
		modified = book.ModifiedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO books (path, title, author, series, extension, size_bytes, modified_at, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(path) DO UPDATE SET
             title = excluded.title,
             author = excluded.author,
             series = excluded.series,
             extension = excluded.extension,
             size_bytes = excluded.size_bytes,
             modified_at = excluded.modified_at,
             updated_at = excluded.updated_at`,
		book.Path,
		book.Title,
		book.Author,
		book.Series,
		book.Extension,
		book.SizeBytes,
		modified,
		book.CreatedAt.Format(time.RFC3339Nano),
		book.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert book: %w", err)
	}
	return nil
}

// GetByPath fetches one catalog entry. A missing path yields (nil, nil).
func (s *Store) GetByPath(ctx context.Context, path string) (*Book, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE path = ?`, path)
	book, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return book, nil
}

// List returns all catalog entries ordered by author then title.
func (s *Store) List(ctx context.Context) ([]*Book, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+bookColumns+` FROM books ORDER BY author, title, path`)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()
	return collectBooks(rows)
}

// MissingAuthor returns catalog entries with no recorded author.
func (s *Store) MissingAuthor(ctx context.Context) ([]*Book, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+bookColumns+` FROM books WHERE author = '' ORDER BY title, path`)
	if err != nil {
		return nil, fmt.Errorf("list books missing author: %w", err)
	}
	defer rows.Close()
	return collectBooks(rows)
}

// Search matches a case-insensitive substring against title and author.
func (s *Store) Search(ctx context.Context, query string) ([]*Book, error) {
	like := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE title LIKE ? OR author LIKE ? ORDER BY author, title, path`,
		like, like)
	if err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}
	defer rows.Close()
	return collectBooks(rows)
}

// SetPath rewrites an entry's key after its file moved on disk.
func (s *Store) SetPath(ctx context.Context, oldPath, newPath string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(ctx,
		`UPDATE books SET path = ?, updated_at = ? WHERE path = ?`, newPath, now, oldPath)
	if err != nil {
		return fmt.Errorf("set book path: %w", err)
	}
	return nil
}

// Delete removes an entry; unknown paths are a no-op.
func (s *Store) Delete(ctx context.Context, path string) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM books WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return nil
}

// Count returns the number of cataloged books.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM books`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}
	return count, nil
}

// execWithRetry runs a write statement, retrying with backoff while SQLite
// reports the database busy (an external process holding the WAL lock).
func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

const bookColumns = "path, title, author, series, extension, size_bytes, modified_at, created_at, updated_at"

func scanBook(scanner interface{ Scan(dest ...any) error }) (*Book, error) {
	var (
		book        Book
		modifiedRaw sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(
		&book.Path,
		&book.Title,
		&book.Author,
		&book.Series,
		&book.Extension,
		&book.SizeBytes,
		&modifiedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	if modifiedRaw.Valid {
		if t, err := time.Parse(time.RFC3339Nano, modifiedRaw.String); err == nil {
			book.ModifiedAt = &t
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		book.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		book.UpdatedAt = t
	}
	return &book, nil
}

func collectBooks(rows *sql.Rows) ([]*Book, error) {
	var out []*Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, book)
	}
	return out, rows.Err()
}
