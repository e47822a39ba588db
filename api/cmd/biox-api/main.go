package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/malbeclabs/biox/api/config"
	"github.com/malbeclabs/biox/api/handlers"
	"github.com/malbeclabs/biox/api/metrics"
	"github.com/malbeclabs/biox/indexer/pkg/clickhouse"
	"github.com/malbeclabs/biox/indexer/pkg/events"
	"github.com/malbeclabs/biox/indexer/pkg/notify"
	"github.com/malbeclabs/biox/ledger/pkg/accountsdb"
	"github.com/malbeclabs/biox/ledger/pkg/runtime"
	"github.com/malbeclabs/biox/program/pkg/processor"
	"github.com/malbeclabs/biox/program/pkg/token"
	"github.com/malbeclabs/biox/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr = "0.0.0.0:8080"
	storePostgres     = "postgres"
	storeMemory       = "memory"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	logFormatFlag := flag.String("log-format", "text", "log format: text or json (or set LOG_FORMAT env var)")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "HTTP listen address (or set BIOX_LISTEN_ADDR env var)")
	storeFlag := flag.String("store", storePostgres, "account store: postgres or memory (or set BIOX_STORE env var)")
	originsFlag := flag.String("allowed-origins", "*", "comma separated CORS origins (or set BIOX_ALLOWED_ORIGINS env var)")
	submitRateFlag := flag.Float64("submit-rate", 5, "transactions per second allowed per client IP")
	submitBurstFlag := flag.Int("submit-burst", 20, "transaction burst allowed per client IP")
	slackWebhookFlag := flag.String("slack-webhook-url", "", "Slack incoming webhook for milestone notifications (or set SLACK_WEBHOOK_URL env var)")
	sentryDSNFlag := flag.String("sentry-dsn", "", "Sentry DSN (or set SENTRY_DSN env var)")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 30*time.Second, "maximum time to drain in-flight requests on shutdown")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		*logFormatFlag = v
	}
	if v := os.Getenv("BIOX_LISTEN_ADDR"); v != "" {
		*listenAddrFlag = v
	}
	if v := os.Getenv("BIOX_STORE"); v != "" {
		*storeFlag = v
	}
	if v := os.Getenv("BIOX_ALLOWED_ORIGINS"); v != "" {
		*originsFlag = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		*slackWebhookFlag = v
	}
	if v := os.Getenv("SENTRY_DSN"); v != "" {
		*sentryDSNFlag = v
	}

	format, err := logger.ParseFormat(*logFormatFlag)
	if err != nil {
		return err
	}
	log := logger.NewWithOptions(logger.Options{Verbose: *verboseFlag, Format: format})

	if *sentryDSNFlag != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              *sentryDSNFlag,
			Release:          version,
			EnableTracing:    true,
			TracesSampleRate: 0.1,
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		log.Info("sentry initialized")
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	readyChecks := make(map[string]handlers.ReadyCheck)

	store, closeStore, err := openStore(ctx, log, *storeFlag, readyChecks)
	if err != nil {
		return err
	}
	defer closeStore()

	programCfg, err := config.ProgramFromEnv()
	if err != nil {
		return err
	}
	proc, err := processor.New(programCfg)
	if err != nil {
		return fmt.Errorf("failed to configure program: %w", err)
	}

	stream := handlers.NewStreamHub(log)
	sinks := []runtime.EventSink{runtime.NewLogSink(log), stream}

	var eventReader handlers.EventReader
	if chCfg, ok := config.ClickHouseFromEnv(); ok {
		chClient, err := clickhouse.NewClient(ctx, log, chCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		defer chClient.Close()
		eventStore, err := events.NewStore(events.StoreConfig{Logger: log, Client: chClient})
		if err != nil {
			return err
		}
		sinks = append(sinks, eventStore)
		eventReader = eventStore
		readyChecks["clickhouse"] = func(ctx context.Context) error {
			conn, err := chClient.Conn(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()
			return conn.Ping(ctx)
		}
	} else {
		log.Info("CLICKHOUSE_ADDR_TCP not set, event analytics disabled")
	}

	if *slackWebhookFlag != "" {
		notifier, err := notify.New(notify.Config{
			Logger:     log,
			WebhookURL: *slackWebhookFlag,
			Decimals:   proc.Config().Decimals,
		})
		if err != nil {
			return err
		}
		sinks = append(sinks, notifier)
	}

	lastSlot, err := store.LatestSlot(ctx)
	if err != nil {
		return fmt.Errorf("failed to read latest slot: %w", err)
	}
	executor, err := runtime.NewExecutor(runtime.ExecutorConfig{
		Logger:      log,
		Store:       store,
		Programs:    []runtime.Program{token.NewProgram(proc.Config().TokenProgramID), proc},
		Sinks:       sinks,
		InitialSlot: lastSlot,
	})
	if err != nil {
		return fmt.Errorf("failed to create executor: %w", err)
	}

	limiter := handlers.NewRateLimiter(rate.Limit(*submitRateFlag), *submitBurstFlag)
	defer limiter.Close()

	api, err := handlers.New(handlers.Config{
		Logger:         log,
		Executor:       executor,
		Store:          store,
		Program:        proc.Config(),
		Events:         eventReader,
		Stream:         stream,
		SubmitLimiter:  limiter,
		AllowedOrigins: splitList(*originsFlag),
		ReadyChecks:    readyChecks,
		Build:          handlers.BuildInfo{Version: version, Commit: commit, Date: date},
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              *listenAddrFlag,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api: listening", "address", srv.Addr, "programId", proc.Config().ProgramID, "mint", proc.Config().Mint, "slot", lastSlot)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("api: shutting down", "timeout", *shutdownTimeoutFlag)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeoutFlag)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, log *slog.Logger, kind string, readyChecks map[string]handlers.ReadyCheck) (accountsdb.Store, func(), error) {
	switch kind {
	case storeMemory:
		log.Warn("using in-memory account store, state is lost on exit")
		store := accountsdb.NewMemoryStore()
		return store, func() { store.Close() }, nil
	case storePostgres:
		pgCfg, err := config.PostgresFromEnv()
		if err != nil {
			return nil, nil, err
		}
		pool, err := config.NewPostgresPool(ctx, log, pgCfg)
		if err != nil {
			return nil, nil, err
		}
		store, err := accountsdb.NewPostgresStore(accountsdb.PostgresStoreConfig{Logger: log, Pool: pool})
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		readyChecks["postgres"] = pool.Ping
		return store, func() { store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q (want postgres or memory)", kind)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
