package accountsdb

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver with database/sql
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var EmbedMigrations embed.FS

// slogGooseLogger adapts slog.Logger to goose.Logger interface
type slogGooseLogger struct {
	log *slog.Logger
}

func (l *slogGooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *slogGooseLogger) Printf(format string, v ...any) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func prepareGoose(log *slog.Logger) error {
	goose.SetLogger(&slogGooseLogger{log: log})
	goose.SetBaseFS(EmbedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return nil
}

func openSQL(connStr string) (*sql.DB, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database for migrations: %w", err)
	}
	return db, nil
}

// MigrateUp applies all pending account store migrations.
func MigrateUp(ctx context.Context, log *slog.Logger, connStr string) error {
	db, err := openSQL(connStr)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := prepareGoose(log); err != nil {
		return err
	}
	log.Info("accountsdb: running PostgreSQL migrations (up)")
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("accountsdb: PostgreSQL migrations completed")
	return nil
}

// MigrateDown rolls back the most recent account store migration.
func MigrateDown(ctx context.Context, log *slog.Logger, connStr string) error {
	db, err := openSQL(connStr)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := prepareGoose(log); err != nil {
		return err
	}
	log.Info("accountsdb: rolling back PostgreSQL migration (down)")
	if err := goose.DownContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	return nil
}

// MigrateStatus logs the state of every account store migration.
func MigrateStatus(ctx context.Context, log *slog.Logger, connStr string) error {
	db, err := openSQL(connStr)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := prepareGoose(log); err != nil {
		return err
	}
	if err := goose.StatusContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	return nil
}
