package admin

import (
	"context"
	"log/slog"

	"github.com/malbeclabs/biox/api/config"
	"github.com/malbeclabs/biox/ledger/pkg/accountsdb"
)

// PgMigrateUp runs all pending account store migrations.
func PgMigrateUp(ctx context.Context, log *slog.Logger, cfg config.PostgresConfig) error {
	return accountsdb.MigrateUp(ctx, log, cfg.ConnString())
}

// PgMigrateDown rolls back the last account store migration.
func PgMigrateDown(ctx context.Context, log *slog.Logger, cfg config.PostgresConfig) error {
	return accountsdb.MigrateDown(ctx, log, cfg.ConnString())
}

func PgMigrateStatus(ctx context.Context, log *slog.Logger, cfg config.PostgresConfig) error {
	return accountsdb.MigrateStatus(ctx, log, cfg.ConnString())
}
