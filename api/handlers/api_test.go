package handlers_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/biox/api/handlers"
	"github.com/malbeclabs/biox/indexer/pkg/events"
	"github.com/malbeclabs/biox/ledger/pkg/accountsdb"
	"github.com/malbeclabs/biox/ledger/pkg/runtime"
	"github.com/malbeclabs/biox/program/pkg/pda"
	"github.com/malbeclabs/biox/program/pkg/processor"
	programtesting "github.com/malbeclabs/biox/program/pkg/testing"
	bioxtesting "github.com/malbeclabs/biox/utils/pkg/testing"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	t      *testing.T
	ledger *programtesting.Ledger
	srv    *httptest.Server
}

func newFixture(t *testing.T, configure ...func(*handlers.Config)) *fixture {
	t.Helper()
	ledger := programtesting.NewLedger(t)
	cfg := handlers.Config{
		Logger:   bioxtesting.NewLogger(),
		Executor: ledger.Executor,
		Store:    ledger.Store,
		Program:  ledger.Config,
		Build:    handlers.BuildInfo{Version: "v1.2.3", Commit: "abc123"},
	}
	for _, fn := range configure {
		fn(&cfg)
	}
	api, err := handlers.New(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)
	return &fixture{t: t, ledger: ledger, srv: srv}
}

func (f *fixture) get(path string, out any) int {
	f.t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(f.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(f.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *fixture) post(body any, out any) int {
	f.t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(f.t, err)
	resp, err := http.Post(f.srv.URL+"/v1/transactions", "application/json", bytes.NewReader(raw))
	require.NoError(f.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(f.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// signed returns a signer for key that accepts a builder's (instruction, error) pair.
func (f *fixture) signed(key solana.PrivateKey) func(runtime.Instruction, error) []byte {
	return func(ix runtime.Instruction, err error) []byte {
		f.t.Helper()
		require.NoError(f.t, err)
		tx, err := runtime.NewTransaction(key, ix)
		require.NoError(f.t, err)
		raw, err := tx.MarshalBinary()
		require.NoError(f.t, err)
		return raw
	}
}

func base64Request(raw []byte) handlers.SubmitTransactionRequest {
	return handlers.SubmitTransactionRequest{Transaction: base64.StdEncoding.EncodeToString(raw)}
}

type receiptBody struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	Events    []struct {
		Name string          `json:"name"`
		Data json.RawMessage `json:"data"`
	} `json:"events"`
	Logs []string `json:"logs"`
}

type paperBody struct {
	Address        string `json:"address"`
	ID             uint64 `json:"id"`
	Title          string `json:"title"`
	Status         string `json:"status"`
	FundingCurrent uint64 `json:"fundingCurrent"`
	FundingCount   uint64 `json:"fundingCount"`
	Upvotes        uint64 `json:"upvotes"`
}

func TestBiox_API_SubmitAndReadPaper(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	author := f.ledger.Wallet(t, 0)
	b := f.ledger.Builder

	raw := f.signed(author)(b.SubmitPaper(author.PublicKey(), 0, programtesting.SubmitArgs(5*programtesting.OneToken, 30)))
	var receipt receiptBody
	require.Equal(t, http.StatusOK, f.post(base64Request(raw), &receipt))
	require.Len(t, receipt.Events, 1)
	require.Equal(t, "PaperSubmittedEvent", receipt.Events[0].Name)
	require.Contains(t, receipt.Logs, "Program log: Instruction: submit_paper")

	// Replays are rejected without re-running the program.
	var errBody handlers.ErrorResponse
	require.Equal(t, http.StatusConflict, f.post(base64Request(raw), &errBody))
	require.Equal(t, "already_processed", errBody.Error)

	// base58 is accepted too.
	raw = f.signed(author)(b.PublishPaper(author.PublicKey(), 0))
	req := handlers.SubmitTransactionRequest{Transaction: base58.Encode(raw), Encoding: handlers.EncodingBase58}
	require.Equal(t, http.StatusOK, f.post(req, nil))

	var paper paperBody
	require.Equal(t, http.StatusOK, f.get("/v1/papers/0", &paper))
	require.Equal(t, "published", paper.Status)
	require.Equal(t, uint64(0), paper.ID)
	addr, _, err := pda.DerivePaperPDA(processor.DefaultProgramID, 0)
	require.NoError(t, err)
	require.Equal(t, addr.String(), paper.Address)

	var page handlers.PaginatedResponse[paperBody]
	require.Equal(t, http.StatusOK, f.get("/v1/papers?limit=10", &page))
	require.Equal(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	require.Equal(t, paper.Title, page.Items[0].Title)

	require.Equal(t, http.StatusOK, f.get("/v1/papers?offset=5", &page))
	require.Empty(t, page.Items)

	var account handlers.AccountResponse
	require.Equal(t, http.StatusOK, f.get("/v1/accounts/"+addr.String(), &account))
	require.Equal(t, "researchPaper", account.Kind)
	require.Equal(t, processor.DefaultProgramID, account.Owner)

	require.Equal(t, http.StatusNotFound, f.get("/v1/papers/7", nil))
	require.Equal(t, http.StatusBadRequest, f.get("/v1/papers/seven", nil))
}

func TestBiox_API_InstructionErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	author := f.ledger.Wallet(t, 0)

	raw := f.signed(author)(f.ledger.Builder.SubmitPaper(author.PublicKey(), 0, programtesting.SubmitArgs(1, 30)))
	var errBody handlers.ErrorResponse
	require.Equal(t, http.StatusBadRequest, f.post(base64Request(raw), &errBody))
	require.Equal(t, "instruction_error", errBody.Error)
	require.Equal(t, "FundingGoalTooLow", errBody.Name)
	require.NotNil(t, errBody.Code)
	require.Equal(t, uint32(6004), *errBody.Code)

	// A tampered signature never reaches the program.
	raw[0] ^= 0xff
	require.Equal(t, http.StatusBadRequest, f.post(base64Request(raw), &errBody))
	require.Equal(t, "invalid_transaction", errBody.Error)

	require.Equal(t, http.StatusBadRequest, f.post(handlers.SubmitTransactionRequest{Transaction: "!!!"}, &errBody))
	require.Equal(t, "invalid_transaction", errBody.Error)
	require.Equal(t, http.StatusBadRequest, f.post(handlers.SubmitTransactionRequest{Transaction: "AA==", Encoding: "hex"}, &errBody))

	resp, err := http.Post(f.srv.URL+"/v1/transactions", "application/json", bytes.NewReader([]byte("not json")))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBiox_API_FundingVotesAndBalances(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	l := f.ledger
	b := l.Builder

	author := l.Wallet(t, 0)
	l.MustSend(t, author, mustIx(t)(b.SubmitPaper(author.PublicKey(), 0, programtesting.SubmitArgs(5*programtesting.OneToken, 30))))
	l.MustSend(t, author, mustIx(t)(b.PublishPaper(author.PublicKey(), 0)))

	funder := l.Wallet(t, 10*programtesting.OneToken)
	require.Equal(t, http.StatusOK, f.post(base64Request(f.signed(funder)(b.FundPaper(funder.PublicKey(), 0, 0, 2*programtesting.OneToken))), nil))
	require.Equal(t, http.StatusOK, f.post(base64Request(f.signed(funder)(b.VotePaper(funder.PublicKey(), 0, true))), nil))

	var funding struct {
		Funder      string `json:"funder"`
		Seq         uint64 `json:"seq"`
		Amount      uint64 `json:"amount"`
		PlatformFee uint64 `json:"platformFee"`
	}
	require.Equal(t, http.StatusOK, f.get("/v1/papers/0/fundings/0?funder="+funder.PublicKey().String(), &funding))
	require.Equal(t, uint64(1_950_000), funding.Amount)
	require.Equal(t, uint64(50_000), funding.PlatformFee)
	require.Equal(t, funder.PublicKey().String(), funding.Funder)
	require.Equal(t, http.StatusBadRequest, f.get("/v1/papers/0/fundings/0", nil))
	require.Equal(t, http.StatusNotFound, f.get("/v1/papers/0/fundings/1?funder="+funder.PublicKey().String(), nil))

	var vote struct {
		IsUpvote bool   `json:"isUpvote"`
		Weight   uint64 `json:"weight"`
	}
	require.Equal(t, http.StatusOK, f.get("/v1/papers/0/votes/"+funder.PublicKey().String(), &vote))
	require.True(t, vote.IsUpvote)
	require.Equal(t, uint64(8), vote.Weight)
	require.Equal(t, http.StatusNotFound, f.get("/v1/papers/0/votes/"+author.PublicKey().String(), nil))

	var tokenAccount struct {
		Address string `json:"address"`
		Owner   string `json:"owner"`
		Amount  uint64 `json:"amount"`
	}
	require.Equal(t, http.StatusOK, f.get("/v1/token-accounts/"+funder.PublicKey().String(), &tokenAccount))
	require.Equal(t, uint64(8*programtesting.OneToken), tokenAccount.Amount)
	require.Equal(t, funder.PublicKey().String(), tokenAccount.Owner)
	require.Equal(t, http.StatusNotFound, f.get("/v1/token-accounts/"+solana.NewWallet().PublicKey().String(), nil))
	require.Equal(t, http.StatusBadRequest, f.get("/v1/token-accounts/nope", nil))

	var st struct {
		PaperCount      uint64 `json:"paperCount"`
		TotalFunding    uint64 `json:"totalFunding"`
		PlatformFeeRate uint16 `json:"platformFeeRate"`
		Admin           string `json:"admin"`
	}
	require.Equal(t, http.StatusOK, f.get("/v1/state", &st))
	require.Equal(t, uint64(1), st.PaperCount)
	require.Equal(t, uint64(1_950_000), st.TotalFunding)
	require.Equal(t, uint16(250), st.PlatformFeeRate)
	require.Equal(t, l.Admin.PublicKey().String(), st.Admin)

	var paper paperBody
	require.Equal(t, http.StatusOK, f.get("/v1/papers/0", &paper))
	require.Equal(t, uint64(1_950_000), paper.FundingCurrent)
	require.Equal(t, uint64(1), paper.FundingCount)
	require.Equal(t, uint64(8), paper.Upvotes)
}

func mustIx(t *testing.T) func(runtime.Instruction, error) runtime.Instruction {
	return func(ix runtime.Instruction, err error) runtime.Instruction {
		t.Helper()
		require.NoError(t, err)
		return ix
	}
}

type fakeEvents struct {
	rows []events.Row
	err  error
	last struct {
		paperID uint64
		name    string
		limit   int
	}
}

func (e *fakeEvents) PaperEvents(_ context.Context, paperID uint64, limit int) ([]events.Row, error) {
	e.last.paperID, e.last.limit = paperID, limit
	return e.rows, e.err
}

func (e *fakeEvents) FundingDaily(_ context.Context, paperID uint64, limit int) ([]events.FundingDay, error) {
	e.last.paperID, e.last.limit = paperID, limit
	if e.err != nil {
		return nil, e.err
	}
	return []events.FundingDay{{
		Day:           time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC),
		Contributions: 2,
		NetAmount:     3_900_000,
		PlatformFees:  100_000,
	}}, nil
}

func (e *fakeEvents) RecentEvents(_ context.Context, name string, limit int) ([]events.Row, error) {
	e.last.name, e.last.limit = name, limit
	return e.rows, e.err
}

func TestBiox_API_Events(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.Equal(t, http.StatusServiceUnavailable, f.get("/v1/papers/0/events", nil))

	id := uint64(3)
	reader := &fakeEvents{rows: []events.Row{{
		EventTime: time.Unix(programtesting.StartUnix, 0).UTC(),
		Slot:      12,
		EventName: "PaperFundedEvent",
		PaperID:   &id,
		Payload:   `{"paperId":3,"amount":975000}`,
	}}}
	f = newFixture(t, func(cfg *handlers.Config) { cfg.Events = reader })

	var body struct {
		Items []struct {
			EventName string         `json:"eventName"`
			PaperID   *uint64        `json:"paperId"`
			Payload   map[string]any `json:"payload"`
		} `json:"items"`
		Limit int `json:"limit"`
	}
	require.Equal(t, http.StatusOK, f.get("/v1/papers/3/events?limit=5", &body))
	require.Len(t, body.Items, 1)
	require.Equal(t, "PaperFundedEvent", body.Items[0].EventName)
	require.Equal(t, float64(975000), body.Items[0].Payload["amount"])
	require.Equal(t, uint64(3), reader.last.paperID)
	require.Equal(t, 5, reader.last.limit)

	require.Equal(t, http.StatusOK, f.get("/v1/events?name=PaperFundedEvent", &body))
	require.Equal(t, "PaperFundedEvent", reader.last.name)
	require.Equal(t, events.DefaultQueryLimit, reader.last.limit)

	var daily struct {
		PaperID uint64 `json:"paperId"`
		Days    []struct {
			Contributions uint64 `json:"contributions"`
			NetAmount     uint64 `json:"netAmount"`
		} `json:"days"`
	}
	require.Equal(t, http.StatusOK, f.get("/v1/papers/3/funding-daily", &daily))
	require.Equal(t, uint64(3), daily.PaperID)
	require.Len(t, daily.Days, 1)
	require.Equal(t, uint64(3_900_000), daily.Days[0].NetAmount)

	reader.err = errors.New("dial tcp 10.0.0.1:9000: connect: connection refused")
	require.Equal(t, http.StatusServiceUnavailable, f.get("/v1/events", nil))
}

// unavailableStore fails every read the way an unreachable database does.
type unavailableStore struct {
	accountsdb.Store
}

func (unavailableStore) GetAccount(context.Context, solana.PublicKey) (*accountsdb.Account, error) {
	return nil, errors.New("failed to connect to `host=db user=biox`: dial tcp: connection refused")
}

func TestBiox_API_StoreUnavailable(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(cfg *handlers.Config) {
		cfg.Store = unavailableStore{Store: cfg.Store}
	})

	var errBody handlers.ErrorResponse
	require.Equal(t, http.StatusServiceUnavailable, f.get("/v1/state", &errBody))
	require.Equal(t, "unavailable", errBody.Error)
}

func TestBiox_API_OperationalEndpoints(t *testing.T) {
	t.Parallel()

	healthy := true
	f := newFixture(t, func(cfg *handlers.Config) {
		cfg.ReadyChecks = map[string]handlers.ReadyCheck{
			"postgres": func(context.Context) error {
				if !healthy {
					return errors.New("connection refused")
				}
				return nil
			},
		}
	})

	var health map[string]string
	require.Equal(t, http.StatusOK, f.get("/healthz", &health))
	require.Equal(t, "ok", health["status"])

	require.Equal(t, http.StatusOK, f.get("/readyz", nil))
	healthy = false
	var ready struct {
		Ready  bool              `json:"ready"`
		Checks map[string]string `json:"checks"`
	}
	require.Equal(t, http.StatusServiceUnavailable, f.get("/readyz", &ready))
	require.False(t, ready.Ready)
	require.Equal(t, "connection refused", ready.Checks["postgres"])

	var version handlers.VersionResponse
	require.Equal(t, http.StatusOK, f.get("/version", &version))
	require.Equal(t, "v1.2.3", version.Version)
	require.Equal(t, processor.DefaultProgramID.String(), version.ProgramID)
	require.Equal(t, f.ledger.Mint().String(), version.Mint)
	require.Equal(t, uint8(programtesting.Decimals), version.Decimals)

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBiox_API_SubmitRateLimit(t *testing.T) {
	t.Parallel()
	limiter := handlers.NewRateLimiter(0.001, 1)
	t.Cleanup(limiter.Close)
	f := newFixture(t, func(cfg *handlers.Config) { cfg.SubmitLimiter = limiter })

	req := handlers.SubmitTransactionRequest{Transaction: "AA=="}
	require.Equal(t, http.StatusBadRequest, f.post(req, nil))
	require.Equal(t, http.StatusTooManyRequests, f.post(req, nil))

	// Reads are not throttled.
	require.Equal(t, http.StatusOK, f.get("/v1/state", nil))
}
