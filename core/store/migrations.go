package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"crisishub/config"
	"crisishub/core/utils"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// ApplyMigrations brings the schema up to date with goose, selecting
// the migration set for the configured driver.
func ApplyMigrations(ctx context.Context, db *sql.DB, cfg *config.AppConfig, logger *utils.Logger) error {
	dialect := "sqlite3"
	dir := "migrations/sqlite"
	switch strings.ToLower(strings.TrimSpace(cfg.DBDriver)) {
	case "", "sqlite", "sqlite3":
	case "postgres", "pgx":
		dialect = "postgres"
		dir = "migrations/postgres"
	default:
		return fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	if logger != nil {
		logger.Printf("DB migrations applied dialect=%s", dialect)
	}
	return nil
}
