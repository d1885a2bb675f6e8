package history

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tesorrells/jellyfin-sync/internal/config"
	"github.com/tesorrells/jellyfin-sync/internal/sync"
)

// timeLayout writes fractional seconds fixed-width, unlike RFC3339Nano which
// trims trailing zeros. SQLite compares started_at as text, so the stored
// strings must order chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store manages cycle history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.StateDir, "history.db"))
}

// OpenPath opens the database at an explicit location.
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
	if err := store.applyMigrations(context.Background()); err != nil {
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

// RecordCycle persists one cycle report with its per-item outcomes.
func (s *Store) RecordCycle(ctx context.Context, report sync.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cycle tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sync_cycles (
            id, group_name, started_at, finished_at, manifest_error,
            fetched, skipped, failed, quarantined
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.CycleID,
		report.Group,
		report.Started.UTC().Format(timeLayout),
		report.Finished.UTC().Format(timeLayout),
		nullableError(report.ManifestErr),
		report.Count(sync.OutcomeFetched),
		report.Count(sync.OutcomeSkipped),
		report.Count(sync.OutcomeFetchFailed),
		report.Count(sync.OutcomeQuarantined),
	)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}

	for _, item := range report.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO sync_items (
                cycle_id, title, magnet, rel_path, outcome, attempts, error
            ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			report.CycleID,
			item.Item.Title,
			item.Item.Magnet,
			item.Item.Path,
			item.Outcome.String(),
			item.Attempts,
			nullableError(item.Err),
		)
		if err != nil {
			return fmt.Errorf("insert item %s: %w", item.Item.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cycle: %w", err)
	}
	return nil
}

// RecentCycles returns up to limit cycles, most recent first.
func (s *Store) RecentCycles(ctx context.Context, limit int) ([]Cycle, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_name, started_at, finished_at, manifest_error,
                fetched, skipped, failed, quarantined
         FROM sync_cycles ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cycles []Cycle
	for rows.Next() {
		var (
			c                 Cycle
			started, finished string
			manifestErr       sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Group, &started, &finished, &manifestErr,
			&c.Fetched, &c.Skipped, &c.Failed, &c.Quarantined); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		c.Started, _ = time.Parse(time.RFC3339Nano, started)
		c.Finished, _ = time.Parse(time.RFC3339Nano, finished)
		c.ManifestError = manifestErr.String
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycles: %w", err)
	}
	return cycles, nil
}

// CycleItems returns the per-item outcomes recorded for one cycle.
func (s *Store) CycleItems(ctx context.Context, cycleID string) ([]ItemRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT title, magnet, rel_path, outcome, attempts, error
         FROM sync_items WHERE cycle_id = ? ORDER BY id`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []ItemRecord
	for rows.Next() {
		var (
			item    ItemRecord
			itemErr sql.NullString
		)
		if err := rows.Scan(&item.Title, &item.Magnet, &item.Path,
			&item.Outcome, &item.Attempts, &itemErr); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.Error = itemErr.String
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// Prune deletes cycles older than the cutoff, cascading their items.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM sync_cycles WHERE started_at < ?", before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune cycles: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func nullableError(err error) any {
	if err == nil {
		return nil
	}
	return err.Error()
}
