package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cu-library/etddepositor/internal/config"
)

// Store manages queue persistence backed by SQLite.
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

// Open initializes or connects to the queue database under the
// processing directory's log area.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.LogDir(), "queue.db"))
}

// OpenPath connects to the queue database at an explicit path.
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
	return s.path
}

const itemColumns = "id, name, path, status, run_id, package_data_json, doi_sequence, error_message, created_at, updated_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id          int64
		name        string
		path        string
		statusStr   string
		runID       sql.NullString
		packageJSON sql.NullString
		doiSequence sql.NullInt64
		errMessage  sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(
		&id,
		&name,
		&path,
		&statusStr,
		&runID,
		&packageJSON,
		&doiSequence,
		&errMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	status, ok := ParseStatus(statusStr)
	if !ok {
		return nil, fmt.Errorf("unknown status %q for item %d", statusStr, id)
	}
	item := &Item{
		ID:              id,
		Name:            name,
		Path:            path,
		Status:          status,
		RunID:           runID.String,
		PackageDataJSON: packageJSON.String,
		DOISequence:     doiSequence.Int64,
		ErrorMessage:    errMessage.String,
	}
	item.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdRaw)
	item.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedRaw)
	return item, nil
}

// Enqueue inserts a new package in the ready state. Re-enqueueing a
// known package name returns the existing item untouched.
func (s *Store) Enqueue(ctx context.Context, name, path string) (*Item, error) {
	if existing, err := s.GetByName(ctx, name); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO packages (name, path, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		name, path, StatusReady, timestamp, timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert package: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a queue item by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+itemColumns+` FROM packages WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// GetByName fetches a queue item by package name.
func (s *Store) GetByName(ctx context.Context, name string) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+itemColumns+` FROM packages WHERE name = ?`, name)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item by name: %w", err)
	}
	return item, nil
}

// ItemsByStatus lists items in one of the given statuses, oldest
// first.
func (s *Store) ItemsByStatus(ctx context.Context, statuses ...Status) ([]*Item, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}

	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+itemColumns+` FROM packages WHERE status IN (`+placeholders+`) ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// AllItems lists every queued package, oldest first.
func (s *Store) AllItems(ctx context.Context) ([]*Item, error) {
	return s.ItemsByStatus(ctx, allStatuses...)
}

// Update persists changes to an existing queue item.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE packages SET name = ?, path = ?, status = ?, run_id = ?,
            package_data_json = ?, doi_sequence = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		item.Name,
		item.Path,
		item.Status,
		nullableString(item.RunID),
		nullableString(item.PackageDataJSON),
		item.DOISequence,
		nullableString(item.ErrorMessage),
		item.UpdatedAt.Format(time.RFC3339Nano),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item %d: %w", item.ID, err)
	}
	return nil
}

// MaxDOISequence returns the highest DOI sequence number ever
// assigned, 0 when none has been.
func (s *Store) MaxDOISequence(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT MAX(doi_sequence) FROM packages`,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max doi sequence: %w", err)
	}
	return max.Int64, nil
}

// ResetStale returns in-flight items from a crashed run to their last
// durable state and reports how many were reset. Items interrupted
// during resolution already consumed their DOI sequence and have their
// record persisted, so they resume from manifested; items interrupted
// earlier start over from ready.
func (s *Store) ResetStale(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	resolving, err := s.execWithRetry(
		ctx,
		`UPDATE packages SET status = 'manifested', updated_at = ? WHERE status = 'resolving'`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stale items: %w", err)
	}
	preparing, err := s.execWithRetry(
		ctx,
		`UPDATE packages SET status = 'ready', updated_at = ? WHERE status IN ('validating', 'extracting', 'staging')`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stale items: %w", err)
	}

	resolvingCount, err := resolving.RowsAffected()
	if err != nil {
		return 0, err
	}
	preparingCount, err := preparing.RowsAffected()
	if err != nil {
		return 0, err
	}
	return resolvingCount + preparingCount, nil
}

// RetryFailed returns failed items to the ready state.
func (s *Store) RetryFailed(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE packages SET status = 'ready', error_message = NULL, updated_at = ? WHERE status = 'failed'`,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("retry failed items: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every item from the queue.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.execWithRetry(ensureContext(ctx), `DELETE FROM packages`)
	if err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	return nil
}

// Summary aggregates queue counts per lifecycle state.
func (s *Store) Summary(ctx context.Context) (HealthSummary, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM packages GROUP BY status`)
	if err != nil {
		return HealthSummary{}, fmt.Errorf("summarize queue: %w", err)
	}
	defer rows.Close()

	var summary HealthSummary
	for rows.Next() {
		var statusStr string
		var count int
		if err := rows.Scan(&statusStr, &count); err != nil {
			return HealthSummary{}, err
		}
		summary.Total += count
		status, _ := ParseStatus(statusStr)
		switch {
		case status == StatusReady:
			summary.Ready += count
		case status == StatusCompleted || status == StatusManifested:
			summary.Completed += count
		case status == StatusFailed:
			summary.Failed += count
		case status == StatusSkipped:
			summary.Skipped += count
		case IsProcessingStatus(status):
			summary.Processing += count
		}
	}
	return summary, rows.Err()
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
