package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// schemaVersion is the schema this build writes and expects.
const schemaVersion = 1

// timeFormat is the column encoding for timestamps. UTC RFC 3339 keeps
// lexicographic and chronological order identical.
const timeFormat = time.RFC3339

// SQLiteStore persists state in a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// Open opens or creates the database at path, creating parent
// directories as needed, and brings the schema up to date.
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		path,
	))
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging state database: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating state database: %w", err)
	}

	// SQLite allows one writer; a larger pool only queues on the file
	// lock.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSelection inserts or replaces the row for (workspace, kind).
func (s *SQLiteStore) SaveSelection(ctx context.Context, sel Selection) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO selections (workspace_id, kind, key, label, picked_at)
		VALUES (?, ?, ?, ?, ?)`,
		sel.WorkspaceID, sel.Kind, sel.Key, sel.Label, sel.PickedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("saving selection: %w", err)
	}
	return nil
}

// LoadSelection returns the persisted selection or ErrNotFound.
func (s *SQLiteStore) LoadSelection(ctx context.Context, workspaceID, kind string) (*Selection, error) {
	var (
		sel      Selection
		pickedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT workspace_id, kind, key, label, picked_at
		FROM selections
		WHERE workspace_id = ? AND kind = ?`,
		workspaceID, kind,
	).Scan(&sel.WorkspaceID, &sel.Kind, &sel.Key, &sel.Label, &pickedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading selection: %w", err)
	}

	sel.PickedAt, err = time.Parse(timeFormat, pickedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing picked_at %q: %w", pickedAt, err)
	}
	return &sel, nil
}

// ClearSelection deletes the row for (workspace, kind) if present.
func (s *SQLiteStore) ClearSelection(ctx context.Context, workspaceID, kind string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM selections WHERE workspace_id = ? AND kind = ?`,
		workspaceID, kind)
	if err != nil {
		return fmt.Errorf("clearing selection: %w", err)
	}
	return nil
}

// RecordDispatch appends one dispatch record.
func (s *SQLiteStore) RecordDispatch(ctx context.Context, d Dispatch) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispatches (id, workspace_id, kind, item_key, item_label, started_at, outcome, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.WorkspaceID, d.Kind, d.ItemKey, d.ItemLabel,
		d.StartedAt.UTC().Format(timeFormat), d.Outcome, d.Detail)
	if err != nil {
		return fmt.Errorf("recording dispatch: %w", err)
	}
	return nil
}

// RecentDispatches returns up to limit records for the workspace,
// newest first. Insert order breaks started_at ties.
func (s *SQLiteStore) RecentDispatches(ctx context.Context, workspaceID string, limit int) ([]Dispatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, kind, item_key, item_label, started_at, outcome, detail
		FROM dispatches
		WHERE workspace_id = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`,
		workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying dispatches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Dispatch
	for rows.Next() {
		var (
			d         Dispatch
			startedAt string
		)
		if err := rows.Scan(&d.ID, &d.WorkspaceID, &d.Kind, &d.ItemKey,
			&d.ItemLabel, &startedAt, &d.Outcome, &d.Detail); err != nil {
			return nil, fmt.Errorf("scanning dispatch: %w", err)
		}
		if d.StartedAt, err = time.Parse(timeFormat, startedAt); err != nil {
			return nil, fmt.Errorf("parsing started_at %q: %w", startedAt, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading dispatches: %w", err)
	}
	return out, nil
}

// migrate brings the schema to schemaVersion. Migrations are forward
// only; a database written by a newer build is refused.
func migrate(db *sql.DB) error {
	current, err := currentSchemaVersion(db)
	if err != nil {
		return err
	}

	switch {
	case current == schemaVersion:
		return nil
	case current > schemaVersion:
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, schemaVersion)
	case current == 0:
		return createSchema(db)
	default:
		return fmt.Errorf("no migration path from schema version %d", current)
	}
}

// currentSchemaVersion reads the highest recorded version, creating the
// tracking table on first contact.
func currentSchemaVersion(db *sql.DB) (int, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
	)`)
	if err != nil {
		return 0, fmt.Errorf("creating schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow(`SELECT version FROM schema_version ORDER BY version DESC LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// createSchema creates the version 1 schema on an empty database.
func createSchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("executing %s: %w", pragma, err)
		}
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS selections (
			workspace_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			key TEXT NOT NULL,
			label TEXT NOT NULL,
			picked_at TEXT NOT NULL,
			PRIMARY KEY (workspace_id, kind)
		)`,
		`CREATE TABLE IF NOT EXISTS dispatches (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			item_key TEXT NOT NULL,
			item_label TEXT NOT NULL,
			started_at TEXT NOT NULL,
			outcome TEXT NOT NULL CHECK (outcome IN ('handed_off', 'failed')),
			detail TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("creating table: %w", err)
		}
	}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_dispatches_workspace ON dispatches(workspace_id, started_at)",
	}
	for _, ddl := range indices {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}

	if _, err := db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
		return fmt.Errorf("setting schema version: %w", err)
	}
	return nil
}
