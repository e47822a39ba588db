package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/biox/admin/internal/admin"
	"github.com/malbeclabs/biox/api/config"
	"github.com/malbeclabs/biox/indexer/pkg/clickhouse"
	"github.com/malbeclabs/biox/ledger/pkg/accountsdb"
	"github.com/malbeclabs/biox/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// ClickHouse configuration
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", clickhouse.DefaultDatabase, "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse Cloud (or set CLICKHOUSE_SECURE=true env var)")

	// Snapshot configuration
	s3BucketFlag := flag.String("s3-bucket", "", "S3 bucket for snapshots (or set BIOX_SNAPSHOT_BUCKET env var)")
	s3PrefixFlag := flag.String("s3-prefix", "snapshots/", "key prefix for snapshots (or set BIOX_SNAPSHOT_PREFIX env var)")
	s3RegionFlag := flag.String("s3-region", "", "AWS region (or set AWS_REGION env var)")
	s3EndpointFlag := flag.String("s3-endpoint", "", "S3-compatible endpoint URL (or set BIOX_S3_ENDPOINT env var)")

	// Commands
	pgMigrateFlag := flag.Bool("pg-migrate", false, "Run account store (PostgreSQL) migrations; connection from POSTGRES_* env vars")
	pgMigrateDownFlag := flag.Bool("pg-migrate-down", false, "Roll back the last account store migration")
	pgMigrateStatusFlag := flag.Bool("pg-migrate-status", false, "Show account store migration status")
	clickhouseMigrateFlag := flag.Bool("clickhouse-migrate", false, "Run event analytics (ClickHouse) migrations using goose")
	clickhouseMigrateStatusFlag := flag.Bool("clickhouse-migrate-status", false, "Show event analytics migration status")
	resetDBFlag := flag.Bool("reset-db", false, "Drop the event analytics tables")
	snapshotFlag := flag.Bool("snapshot-s3", false, "Export every account in the account store to S3 as JSON lines")
	dryRunFlag := flag.Bool("dry-run", false, "Dry run mode - show what would be done without actually executing")
	yesFlag := flag.Bool("yes", false, "Skip confirmation prompt (use with caution)")

	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	log := logger.New(*verboseFlag)
	ctx := context.Background()

	// Override flags with environment variables if set
	if v := os.Getenv("CLICKHOUSE_ADDR_TCP"); v != "" {
		*clickhouseAddrFlag = v
	}
	if v := os.Getenv("CLICKHOUSE_DATABASE"); v != "" {
		*clickhouseDatabaseFlag = v
	}
	if v := os.Getenv("CLICKHOUSE_USERNAME"); v != "" {
		*clickhouseUsernameFlag = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		*clickhousePasswordFlag = v
	}
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		*clickhouseSecureFlag = true
	}
	if v := os.Getenv("BIOX_SNAPSHOT_BUCKET"); v != "" {
		*s3BucketFlag = v
	}
	if v := os.Getenv("BIOX_SNAPSHOT_PREFIX"); v != "" {
		*s3PrefixFlag = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		*s3RegionFlag = v
	}
	if v := os.Getenv("BIOX_S3_ENDPOINT"); v != "" {
		*s3EndpointFlag = v
	}

	chCfg := clickhouse.Config{
		Addr:     *clickhouseAddrFlag,
		Database: *clickhouseDatabaseFlag,
		Username: *clickhouseUsernameFlag,
		Password: *clickhousePasswordFlag,
		Secure:   *clickhouseSecureFlag,
	}

	switch {
	case *pgMigrateFlag, *pgMigrateDownFlag, *pgMigrateStatusFlag:
		pgCfg, err := config.PostgresFromEnv()
		if err != nil {
			return err
		}
		switch {
		case *pgMigrateFlag:
			return admin.PgMigrateUp(ctx, log, pgCfg)
		case *pgMigrateDownFlag:
			return admin.PgMigrateDown(ctx, log, pgCfg)
		default:
			return admin.PgMigrateStatus(ctx, log, pgCfg)
		}

	case *clickhouseMigrateFlag:
		if chCfg.Addr == "" {
			return fmt.Errorf("--clickhouse-addr is required for --clickhouse-migrate")
		}
		return clickhouse.Up(ctx, log, chCfg)

	case *clickhouseMigrateStatusFlag:
		if chCfg.Addr == "" {
			return fmt.Errorf("--clickhouse-addr is required for --clickhouse-migrate-status")
		}
		return clickhouse.MigrationStatus(ctx, log, chCfg)

	case *resetDBFlag:
		if chCfg.Addr == "" {
			return fmt.Errorf("--clickhouse-addr is required for --reset-db")
		}
		if err := chCfg.Validate(); err != nil {
			return err
		}
		return admin.ResetDB(ctx, log, chCfg, admin.ResetConfig{
			DryRun:      *dryRunFlag,
			SkipConfirm: *yesFlag,
			In:          os.Stdin,
			Out:         os.Stdout,
		})

	case *snapshotFlag:
		if *s3BucketFlag == "" {
			return fmt.Errorf("--s3-bucket is required for --snapshot-s3")
		}
		programCfg, err := config.ProgramFromEnv()
		if err != nil {
			return err
		}
		pgCfg, err := config.PostgresFromEnv()
		if err != nil {
			return err
		}
		pgCfg.RunMigrations = false
		pool, err := config.NewPostgresPool(ctx, log, pgCfg)
		if err != nil {
			return err
		}
		store, err := accountsdb.NewPostgresStore(accountsdb.PostgresStoreConfig{Logger: log, Pool: pool})
		if err != nil {
			pool.Close()
			return err
		}
		defer store.Close()

		s3Client, err := admin.NewS3Client(ctx, *s3RegionFlag, *s3EndpointFlag)
		if err != nil {
			return err
		}
		if *dryRunFlag {
			count, err := admin.WriteSnapshot(ctx, store, programCfg.ProgramID, os.Stdout)
			log.Info("dry run: snapshot written to stdout", "accounts", count)
			return err
		}
		key, err := admin.SnapshotS3(ctx, log, store, s3Client, admin.SnapshotConfig{
			Bucket:    *s3BucketFlag,
			Prefix:    *s3PrefixFlag,
			ProgramID: programCfg.ProgramID,
		})
		if err != nil {
			return err
		}
		fmt.Printf("s3://%s/%s\n", *s3BucketFlag, key)
		return nil
	}

	flag.Usage()
	return nil
}
