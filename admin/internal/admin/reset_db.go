package admin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/malbeclabs/biox/indexer/pkg/clickhouse"
)

// ResetConfig controls ResetDB. In is read for the confirmation prompt and Out
// receives the report.
type ResetConfig struct {
	DryRun      bool
	SkipConfirm bool
	In          io.Reader
	Out         io.Writer
}

// ResetDB drops the event table, its views and the goose version table so the next
// --clickhouse-migrate starts from scratch. Views go first.
func ResetDB(ctx context.Context, log *slog.Logger, chCfg clickhouse.Config, cfg ResetConfig) error {
	client, err := clickhouse.NewClient(ctx, log, chCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	defer client.Close()

	conn, err := client.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.Query(ctx, `
		SELECT name
		FROM system.tables
		WHERE database = ?
		  AND name IN ('program_events', 'paper_funding_daily', 'goose_db_version')
		ORDER BY engine = 'View' DESC, name
	`, chCfg.Database)
	if err != nil {
		return fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}

	out := cfg.Out
	if len(tables) == 0 {
		fmt.Fprintln(out, "No event tables found")
		return nil
	}

	fmt.Fprintf(out, "WARNING: this will DROP %d table(s) from database '%s':\n", len(tables), chCfg.Database)
	for _, table := range tables {
		fmt.Fprintf(out, "  - %s\n", table)
	}
	if cfg.DryRun {
		fmt.Fprintln(out, "\n[DRY RUN] Would drop the above tables")
		return nil
	}

	if !cfg.SkipConfirm {
		ok, err := confirm(cfg.In, out)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Confirmation failed. Operation cancelled.")
			return nil
		}
	}

	for _, table := range tables {
		if err := conn.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS `%s`", table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
		fmt.Fprintf(out, "  dropped %s\n", table)
	}
	log.Info("admin: event tables dropped", "count", len(tables), "database", chCfg.Database)
	return nil
}

func confirm(in io.Reader, out io.Writer) (bool, error) {
	fmt.Fprint(out, "\nThis is a DESTRUCTIVE operation that cannot be undone!\nType 'yes' to confirm: ")
	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	return strings.TrimSpace(strings.ToLower(response)) == "yes", nil
}
