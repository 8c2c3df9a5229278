package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"

	"devicefarm-server/internal/database/migrations"
	_ "modernc.org/sqlite"
)

// pragmas are applied by the driver on every new physical connection, in
// order. page_size has to precede journal_mode or it is ignored on a fresh
// file.
var pragmas = []string{
	"page_size(32768)",
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"cache_size(-64000)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
}

// DB is the single owned handle every store goes through. The pool is capped
// at one connection, so statements from all callers are serialized here.
type DB struct {
	*sql.DB
	path string
}

func DSN(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return path + "?" + q.Encode()
}

// Open opens (or creates) the database file at path. It does not touch the
// schema; call EnsureSchema for that.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	sqldb, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)

	if err := sqldb.Ping(); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return &DB{DB: sqldb, path: path}, nil
}

func (db *DB) Path() string { return db.path }

// EnsureSchema creates every table that is missing and seeds the default
// dialog watcher when that table is empty.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if err := migrations.Run(ctx, db.DB); err != nil {
		return err
	}
	return db.seedDialogWatcher(ctx)
}

func (db *DB) seedDialogWatcher(ctx context.Context) error {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dialog_watcher`).Scan(&count); err != nil {
		return fmt.Errorf("count dialog_watcher: %w", err)
	}
	if count > 0 {
		return nil
	}

	log.Printf("database: seeding default dialog watcher")
	_, err := db.ExecContext(ctx,
		`INSERT INTO dialog_watcher (name, conditions, action, status) VALUES ('init1', 'DENY,ALLOW', 'click', 1)`)
	if err != nil {
		return fmt.Errorf("seed dialog_watcher: %w", err)
	}
	return nil
}

// WithTx runs fn inside one transaction. fn must only use tx: the pool has a
// single connection, so touching db from inside fn would block forever.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
