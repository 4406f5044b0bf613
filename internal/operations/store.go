package operations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"shelf/internal/config"
)

// Store manages operation persistence backed by SQLite. It is the single
// source of truth for current status, independent of the event journals.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the operations database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.StateDir, "operations.db"))
}

// OpenPath opens the operations database at an explicit location.
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

// Create inserts a new queued operation record.
func (s *Store) Create(ctx context.Context, op *Operation) error {
	if op == nil {
		return errors.New("operation is nil")
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	op.Status = StatusQueued
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO operations (id, type, status, progress, total, message, log_path, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID,
		string(op.Type),
		string(op.Status),
		op.Progress,
		op.Total,
		nullableString(op.Message),
		nullableString(op.LogPath),
		op.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}
	return nil
}

// Get fetches an operation by identifier. A missing id yields (nil, nil).
func (s *Store) Get(ctx context.Context, id string) (*Operation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+operationColumns+` FROM operations WHERE id = ?`, id)
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get operation: %w", err)
	}
	return op, nil
}

// List returns operations filtered by status set (or all when none given),
// oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Operation, error) {
	baseQuery := `SELECT ` + operationColumns + ` FROM operations`
	orderClause := ` ORDER BY created_at, id`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = string(status)
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	var out []*Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// MarkProcessing flips a queued operation to processing and stamps its start.
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE operations SET status = ?, started_at = ?, message = ? WHERE id = ? AND status = ?`,
		string(StatusProcessing), now, "operation started", id, string(StatusQueued),
	)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return requireRow(res, id)
}

// MarkCompleted finalizes a successful operation.
func (s *Store) MarkCompleted(ctx context.Context, id, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE operations SET status = ?, message = ?, completed_at = ? WHERE id = ?`,
		string(StatusCompleted), message, now, id,
	)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return requireRow(res, id)
}

// MarkFailed finalizes a failed operation with its captured error. Partial
// progress and the latest message survive for post-mortem reads.
func (s *Store) MarkFailed(ctx context.Context, id, errMsg string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE operations SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`,
		string(StatusFailed), errMsg, now, id,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireRow(res, id)
}

// MarkCanceled finalizes a canceled operation.
func (s *Store) MarkCanceled(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE operations SET status = ?, message = ?, completed_at = ? WHERE id = ?`,
		string(StatusCanceled), "operation canceled", now, id,
	)
	if err != nil {
		return fmt.Errorf("mark canceled: %w", err)
	}
	return requireRow(res, id)
}

// SetTotal commits the pre-count total. The total is written once: later
// calls leave the first committed value untouched.
func (s *Store) SetTotal(ctx context.Context, id string, total int) error {
	if total < 0 {
		return errors.New("total must be non-negative")
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE operations SET total = CASE WHEN total = 0 THEN ? ELSE total END WHERE id = ?`,
		total, id,
	)
	if err != nil {
		return fmt.Errorf("set total: %w", err)
	}
	return requireRow(res, id)
}

// SetProgress records a progress update. Progress never decreases: a stale
// write is clamped to the stored value.
func (s *Store) SetProgress(ctx context.Context, id string, progress int, message string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE operations
         SET progress = CASE WHEN ? > progress THEN ? ELSE progress END, message = ?
         WHERE id = ?`,
		progress, progress, message, id,
	)
	if err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return requireRow(res, id)
}

// Stats returns a count of operations grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM operations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("operation stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

const operationColumns = "id, type, status, progress, total, message, error_message, log_path, created_at, started_at, completed_at"

func scanOperation(scanner interface{ Scan(dest ...any) error }) (*Operation, error) {
	var (
		id           string
		opType       string
		statusStr    string
		progress     int
		total        int
		message      sql.NullString
		errorMessage sql.NullString
		logPath      sql.NullString
		createdRaw   sql.NullString
		startedRaw   sql.NullString
		completedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&opType,
		&statusStr,
		&progress,
		&total,
		&message,
		&errorMessage,
		&logPath,
		&createdRaw,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	op := &Operation{
		ID:       id,
		Type:     Type(opType),
		Status:   Status(statusStr),
		Progress: progress,
		Total:    total,
		Message:  message.String,
		Error:    errorMessage.String,
		LogPath:  logPath.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		op.CreatedAt = created
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			op.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			op.CompletedAt = &completed
		}
	}
	return op, nil
}

func requireRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("operation %s: %w", id, ErrOperationNotFound)
	}
	return nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
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

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
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

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
