// Package index maintains a SQLite cache of the corpus for fast search
// and change detection. The index is derived state: deleting the database
// file and re-running sync rebuilds it from the workspace roots.
package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// DBFileName is the index database file, written into the project root's
// workspace directory.
const DBFileName = "index.db"

// DefaultDBPath resolves the index location: PROMPTPACK_BASE_PATH when
// set, otherwise the repo-local workspace directory.
func DefaultDBPath() (string, error) {
	if basePath := os.Getenv("PROMPTPACK_BASE_PATH"); basePath != "" {
		return filepath.Join(basePath, DBFileName), nil
	}
	return filepath.Join(".promptpack", DBFileName), nil
}

// openDB opens or creates the SQLite database with WAL-mode pragmas and a
// single connection.
func openDB(ctx context.Context, dbPath string) (*sqlx.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create index directory")
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open index database")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping index database")
	}

	if err := configure(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to configure index database")
	}

	return db, nil
}

func configure(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=1000",
		"PRAGMA temp_store=memory",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Wrapf(err, "failed to execute pragma: %s", pragma)
		}
	}

	db.SetMaxIdleConns(1)
	db.SetMaxOpenConns(1)

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return errors.Wrap(err, "failed to query journal mode")
	}
	if strings.ToLower(journalMode) != "wal" {
		return errors.Errorf("WAL mode not enabled. Current mode: %s", journalMode)
	}

	return nil
}
