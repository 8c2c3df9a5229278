package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var embedMigrations embed.FS

var (
	setupOnce sync.Once
	setupErr  error
)

// setup configures goose's package-level state once; later calls share it
// read-only, so health checks can query the version concurrently.
func setup() error {
	setupOnce.Do(func() {
		goose.SetBaseFS(embedMigrations)
		if err := goose.SetDialect("sqlite3"); err != nil {
			setupErr = fmt.Errorf("failed to set goose dialect: %w", err)
		}
	})
	return setupErr
}

// Run applies all pending migrations. Every statement is idempotent, so a
// database created before goose tracking existed is adopted as-is.
func Run(ctx context.Context, db *sql.DB) error {
	if err := setup(); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Version reports the current schema version.
func Version(ctx context.Context, db *sql.DB) (int64, error) {
	if err := setup(); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db)
}
