package index

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Migration is a database migration with timestamp-based versioning
// (Rails-style).
type Migration struct {
	Version     int64 // YYYYMMDDHHmmss
	Description string
	Up          func(*sql.Tx) error
	Down        func(*sql.Tx) error // optional rollback
}

// migrations is the full ordered history of the index schema.
var migrations = []Migration{
	{
		Version:     20260815120000,
		Description: "create entries table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS entries (
					id TEXT PRIMARY KEY,
					kind TEXT NOT NULL,
					name TEXT NOT NULL,
					source TEXT NOT NULL,
					path TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					model TEXT NOT NULL DEFAULT '',
					argument_hint TEXT NOT NULL DEFAULT '',
					content TEXT NOT NULL DEFAULT '',
					content_hash TEXT NOT NULL,
					size_bytes INTEGER NOT NULL DEFAULT 0,
					indexed_at DATETIME NOT NULL,
					UNIQUE (kind, name, source)
				)
			`)
			return err
		},
		Down: func(tx *sql.Tx) error {
			_, err := tx.Exec("DROP TABLE IF EXISTS entries")
			return err
		},
	},
	{
		Version:     20260815120001,
		Description: "index entries by kind and name",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_entries_kind_name ON entries (kind, name)")
			return err
		},
		Down: func(tx *sql.Tx) error {
			_, err := tx.Exec("DROP INDEX IF EXISTS idx_entries_kind_name")
			return err
		},
	},
}

// MigrationRunner applies pending migrations.
type MigrationRunner struct {
	db *sqlx.DB
}

// NewMigrationRunner creates a migration runner.
func NewMigrationRunner(db *sqlx.DB) *MigrationRunner {
	return &MigrationRunner{db: db}
}

// Run executes all pending migrations in timestamp order.
func (r *MigrationRunner) Run(ctx context.Context, migrations []Migration) error {
	if err := r.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	applied, err := r.getAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})

	for _, m := range sorted {
		if !applied[m.Version] {
			if err := r.applyMigration(ctx, m); err != nil {
				return errors.Wrapf(err, "failed to apply migration %d: %s", m.Version, m.Description)
			}
		}
	}

	return nil
}

// Rollback rolls back the last applied migration.
func (r *MigrationRunner) Rollback(ctx context.Context, migrations []Migration) error {
	if err := r.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	var version int64
	err := r.db.GetContext(ctx, &version, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err != nil {
		return errors.Wrap(err, "failed to get latest migration version")
	}
	if version == 0 {
		return nil
	}

	for _, m := range migrations {
		if m.Version == version {
			if m.Down == nil {
				return errors.Errorf("migration %d has no rollback function", version)
			}
			return r.rollbackMigration(ctx, m)
		}
	}

	return errors.Errorf("migration %d not found in provided migrations", version)
}

func (r *MigrationRunner) ensureMigrationsTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL,
			description TEXT
		)
	`)
	return errors.Wrap(err, "failed to create schema_migrations table")
}

func (r *MigrationRunner) getAppliedMigrations(ctx context.Context) (map[int64]bool, error) {
	var versions []int64
	err := r.db.SelectContext(ctx, &versions, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, errors.Wrap(err, "failed to get applied migrations")
	}

	applied := make(map[int64]bool)
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

func (r *MigrationRunner) applyMigration(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := m.Up(tx.Tx); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
		m.Version, time.Now(), m.Description)
	if err != nil {
		return errors.Wrap(err, "failed to record migration")
	}

	return tx.Commit()
}

func (r *MigrationRunner) rollbackMigration(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := m.Down(tx.Tx); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", m.Version)
	if err != nil {
		return errors.Wrap(err, "failed to remove migration record")
	}

	return tx.Commit()
}

// GetAppliedVersions returns the applied migration versions in order.
func (r *MigrationRunner) GetAppliedVersions(ctx context.Context) ([]int64, error) {
	if err := r.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}

	var versions []int64
	err := r.db.SelectContext(ctx, &versions, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, errors.Wrap(err, "failed to get applied versions")
	}
	return versions, nil
}
