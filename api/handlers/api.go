// Package handlers is the HTTP surface of the ledger: transaction submission, raw and
// decoded account reads, program event history and operational endpoints.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/malbeclabs/biox/api/handlers/dberror"
	"github.com/malbeclabs/biox/api/metrics"
	"github.com/malbeclabs/biox/indexer/pkg/events"
	"github.com/malbeclabs/biox/ledger/pkg/accountsdb"
	"github.com/malbeclabs/biox/ledger/pkg/runtime"
	"github.com/malbeclabs/biox/program/pkg/instruction"
	"github.com/malbeclabs/biox/program/pkg/processor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Executor runs signed transactions.
type Executor interface {
	Execute(ctx context.Context, tx *runtime.Transaction) (*runtime.Receipt, error)
}

// EventReader serves program event history.
type EventReader interface {
	PaperEvents(ctx context.Context, paperID uint64, limit int) ([]events.Row, error)
	RecentEvents(ctx context.Context, eventName string, limit int) ([]events.Row, error)
	FundingDaily(ctx context.Context, paperID uint64, limit int) ([]events.FundingDay, error)
}

// ReadyCheck reports whether a backend can serve traffic.
type ReadyCheck func(ctx context.Context) error

type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

type Config struct {
	Logger   *slog.Logger
	Executor Executor
	Store    accountsdb.Store
	Program  processor.Config

	// Events is optional; without it the event endpoints answer 503.
	Events EventReader

	// Stream serves GET /v1/events/stream. It must also be registered as an executor sink.
	Stream *StreamHub

	// SubmitLimiter throttles POST /v1/transactions per client IP. Nil disables it.
	SubmitLimiter *RateLimiter

	AllowedOrigins []string
	ReadyChecks    map[string]ReadyCheck
	Build          BuildInfo
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Executor == nil {
		return errors.New("executor is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if err := cfg.Program.Validate(); err != nil {
		return err
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.Build.Version == "" {
		cfg.Build.Version = "dev"
	}
	return nil
}

type API struct {
	log     *slog.Logger
	cfg     Config
	builder instruction.Builder
	retry   dberror.RetryConfig
}

func New(cfg Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &API{
		log:     cfg.Logger,
		cfg:     cfg,
		builder: cfg.Program.Builder(),
		retry:   dberror.DefaultRetryConfig(),
	}, nil
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", a.GetHealthz)
	r.Get("/readyz", a.GetReadyz)
	r.Get("/version", a.GetVersion)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		submit := r.With()
		if a.cfg.SubmitLimiter != nil {
			submit = r.With(RateLimitMiddleware(a.cfg.SubmitLimiter))
		}
		submit.Post("/transactions", a.PostTransaction)

		r.Get("/accounts/{address}", a.GetAccount)
		r.Get("/state", a.GetProgramState)
		r.Get("/papers", a.ListPapers)
		r.Get("/papers/{id}", a.GetPaper)
		r.Get("/papers/{id}/votes/{voter}", a.GetVote)
		r.Get("/papers/{id}/fundings/{seq}", a.GetFunding)
		r.Get("/papers/{id}/events", a.GetPaperEvents)
		r.Get("/papers/{id}/funding-daily", a.GetFundingDaily)
		r.Get("/events", a.GetRecentEvents)
		r.Get("/events/stream", a.StreamEvents)
		r.Get("/token-accounts/{owner}", a.GetTokenAccount)
	})
	return r
}

func (a *API) GetHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetReadyz runs every readiness check and answers 503 if any fails.
func (a *API) GetReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(a.cfg.ReadyChecks))
	for name, check := range a.cfg.ReadyChecks {
		if err := check(ctx); err != nil {
			a.log.Warn("api: readiness check failed", "check", name, "error", err)
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, map[string]any{"ready": status == http.StatusOK, "checks": checks})
}

type VersionResponse struct {
	BuildInfo
	ProgramID      string `json:"programId"`
	TokenProgramID string `json:"tokenProgramId"`
	Mint           string `json:"mint"`
	Decimals       uint8  `json:"decimals"`
	MaxVoteWeight  uint64 `json:"maxVoteWeight"`
}

// GetVersion returns the build and the program deployment this API serves.
func (a *API) GetVersion(w http.ResponseWriter, r *http.Request) {
	p := a.cfg.Program
	writeJSON(w, http.StatusOK, VersionResponse{
		BuildInfo:      a.cfg.Build,
		ProgramID:      p.ProgramID.String(),
		TokenProgramID: p.TokenProgramID.String(),
		Mint:           p.Mint.String(),
		Decimals:       p.Decimals,
		MaxVoteWeight:  p.MaxVoteWeight,
	})
}
