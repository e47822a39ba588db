package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/malbeclabs/biox/indexer/pkg/clickhouse"
	"github.com/malbeclabs/biox/indexer/pkg/metrics"
	"github.com/malbeclabs/biox/ledger/pkg/runtime"
)

const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

type StoreConfig struct {
	Logger *slog.Logger
	Client clickhouse.Client
}

func (cfg *StoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("clickhouse client is required")
	}
	return nil
}

// Store writes committed program events to ClickHouse and reads them back per paper.
// It is a runtime.EventSink.
type Store struct {
	log *slog.Logger
	cfg StoreConfig
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{log: cfg.Logger, cfg: cfg}, nil
}

func (s *Store) Name() string { return "clickhouse" }

func (s *Store) Publish(ctx context.Context, batch *runtime.EventBatch) error {
	rows, err := RowsFromBatch(batch)
	if err != nil {
		return err
	}
	return s.Write(ctx, rows)
}

// Write inserts rows in a single batch.
func (s *Store) Write(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	start := time.Now()

	conn, err := s.cfg.Client.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get clickhouse connection: %w", err)
	}
	defer conn.Close()

	batch, err := conn.PrepareBatch(ctx, "INSERT INTO "+TableName)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer batch.Close() // Always release the connection back to the pool

	for i := range rows {
		if err := batch.AppendStruct(&rows[i]); err != nil {
			return fmt.Errorf("failed to append row %d: %w", i, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	metrics.WriteBatchDuration.Observe(time.Since(start).Seconds())
	for _, row := range rows {
		metrics.EventsWrittenTotal.WithLabelValues(row.EventName).Inc()
	}
	s.log.Debug("events: wrote batch", "table", TableName, "count", len(rows))
	return nil
}

// PaperEvents returns the most recent events for a paper, newest first.
func (s *Store) PaperEvents(ctx context.Context, paperID uint64, limit int) ([]Row, error) {
	return s.query(ctx, "paper_events", limit,
		`SELECT event_time, slot, signature, event_index, program_id, signer, instruction, event_name, paper_id, payload
		 FROM `+TableName+` FINAL
		 WHERE paper_id = ?
		 ORDER BY slot DESC, event_index DESC
		 LIMIT ?`, paperID)
}

// RecentEvents returns the most recent events of any kind, optionally filtered by name.
func (s *Store) RecentEvents(ctx context.Context, eventName string, limit int) ([]Row, error) {
	if eventName == "" {
		return s.query(ctx, "recent_events", limit,
			`SELECT event_time, slot, signature, event_index, program_id, signer, instruction, event_name, paper_id, payload
			 FROM `+TableName+` FINAL
			 ORDER BY slot DESC, event_index DESC
			 LIMIT ?`)
	}
	return s.query(ctx, "recent_events", limit,
		`SELECT event_time, slot, signature, event_index, program_id, signer, instruction, event_name, paper_id, payload
		 FROM `+TableName+` FINAL
		 WHERE event_name = ?
		 ORDER BY slot DESC, event_index DESC
		 LIMIT ?`, eventName)
}

// FundingDay aggregates one paper's contributions over a UTC day.
type FundingDay struct {
	Day           time.Time `ch:"day" json:"day"`
	Contributions uint64    `ch:"contributions" json:"contributions"`
	NetAmount     uint64    `ch:"net_amount" json:"netAmount"`
	PlatformFees  uint64    `ch:"platform_fees" json:"platformFees"`
}

// FundingDaily returns a paper's per-day contribution totals, most recent day first.
func (s *Store) FundingDaily(ctx context.Context, paperID uint64, limit int) ([]FundingDay, error) {
	start := time.Now()
	days, err := s.fundingDaily(ctx, paperID, clampLimit(limit))
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DatabaseQueriesTotal.WithLabelValues("funding_daily", status).Inc()
	s.log.Debug("events: funding daily", "paperId", paperID, "days", len(days), "duration", time.Since(start))
	return days, err
}

func (s *Store) fundingDaily(ctx context.Context, paperID uint64, limit int) ([]FundingDay, error) {
	conn, err := s.cfg.Client.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get clickhouse connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.Query(ctx,
		`SELECT day, contributions, net_amount, platform_fees
		 FROM `+FundingDailyView+`
		 WHERE paper_id = ?
		 ORDER BY day DESC
		 LIMIT ?`, paperID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query funding totals: %w", err)
	}
	defer rows.Close()

	var out []FundingDay
	for rows.Next() {
		var day FundingDay
		if err := rows.ScanStruct(&day); err != nil {
			return nil, fmt.Errorf("failed to scan funding totals: %w", err)
		}
		out = append(out, day)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating funding totals: %w", err)
	}
	return out, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	return min(limit, MaxQueryLimit)
}

func (s *Store) query(ctx context.Context, name string, limit int, query string, args ...any) ([]Row, error) {
	rows, err := s.scan(ctx, query, append(args, clampLimit(limit))...)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DatabaseQueriesTotal.WithLabelValues(name, status).Inc()
	return rows, err
}

func (s *Store) scan(ctx context.Context, query string, args ...any) ([]Row, error) {
	conn, err := s.cfg.Client.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get clickhouse connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var row Row
		if err := rows.ScanStruct(&row); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return out, nil
}
