package biox

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/biox/ledger/pkg/accountsdb"
	"github.com/malbeclabs/biox/ledger/pkg/runtime"
	"github.com/malbeclabs/biox/program/pkg/processor"
	"github.com/malbeclabs/biox/program/pkg/state"
)

// APIError is a non-success response from the biox API that has no ledger meaning.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("biox api: %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) StatusCode() int { return e.Status }

// HTTPBackend talks to a biox API server.
type HTTPBackend struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPBackend returns a backend for the API at baseURL. A nil httpClient gets a
// client with connection and overall timeouts.
func NewHTTPBackend(baseURL string, httpClient *http.Client) *HTTPBackend {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
				MaxIdleConns:          10,
				MaxIdleConnsPerHost:   5,
			},
			Timeout: time.Minute,
		}
	}
	return &HTTPBackend{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

type submitRequest struct {
	Transaction string `json:"transaction"`
	Encoding    string `json:"encoding"`
}

type receiptResponse struct {
	Signature     solana.Signature `json:"signature"`
	Slot          uint64           `json:"slot"`
	UnixTimestamp int64            `json:"unixTimestamp"`
	Instruction   string           `json:"instruction"`
	Logs          []string         `json:"logs"`
}

type errorResponse struct {
	Error     string   `json:"error"`
	Message   string   `json:"message"`
	Code      *uint32  `json:"code"`
	Name      string   `json:"name"`
	Signature string   `json:"signature"`
	Logs      []string `json:"logs"`
}

type versionResponse struct {
	Version        string `json:"version"`
	ProgramID      string `json:"programId"`
	TokenProgramID string `json:"tokenProgramId"`
	Mint           string `json:"mint"`
	Decimals       uint8  `json:"decimals"`
	MaxVoteWeight  uint64 `json:"maxVoteWeight"`
}

type accountResponse struct {
	Address solana.PublicKey `json:"address"`
	Owner   solana.PublicKey `json:"owner"`
	Data    []byte           `json:"data"`
	Version uint64           `json:"version"`
}

func (b *HTTPBackend) Submit(ctx context.Context, tx *runtime.Transaction) (*runtime.Receipt, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	body, err := json.Marshal(submitRequest{Transaction: base64.StdEncoding.EncodeToString(raw), Encoding: "base64"})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to submit transaction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return b.submitError(resp, tx)
	}
	var out receiptResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode receipt: %w", err)
	}
	receipt := &runtime.Receipt{
		Signature:     out.Signature,
		Slot:          out.Slot,
		UnixTimestamp: out.UnixTimestamp,
		Instruction:   out.Instruction,
		Logs:          out.Logs,
	}
	// Events travel in the logs; the JSON rendering loses their concrete types.
	for _, line := range out.Logs {
		ev, ok, err := state.ParseEventLogLine(line)
		if !ok {
			continue
		}
		if err != nil {
			return receipt, fmt.Errorf("failed to decode event in receipt: %w", err)
		}
		receipt.Events = append(receipt.Events, ev)
	}
	return receipt, nil
}

func (b *HTTPBackend) submitError(resp *http.Response, tx *runtime.Transaction) (*runtime.Receipt, error) {
	apiErr, body := decodeError(resp)
	switch {
	case body.Error == "instruction_error" && body.Code != nil:
		ierr := runtime.NewInstructionError(*body.Code, body.Name, body.Message)
		return &runtime.Receipt{Signature: tx.Signature, Logs: body.Logs, Err: ierr}, ierr
	case body.Error == "already_processed":
		return nil, fmt.Errorf("%w: %s", runtime.ErrSignatureAlreadyProcessed, tx.Signature)
	case body.Error == "conflict":
		return nil, fmt.Errorf("%w: %s", accountsdb.ErrConflict, body.Message)
	case body.Error == "program_not_found":
		return nil, fmt.Errorf("%w: %s", runtime.ErrProgramNotFound, body.Message)
	}
	return nil, apiErr
}

func decodeError(resp *http.Response) (*APIError, errorResponse) {
	var body errorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
		body.Message = strings.TrimSpace(string(raw))
	}
	return &APIError{Status: resp.StatusCode, Code: body.Error, Message: body.Message}, body
}

func (b *HTTPBackend) GetAccount(ctx context.Context, addr solana.PublicKey) (*accountsdb.Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/v1/accounts/"+addr.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account %s: %w", addr, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", accountsdb.ErrAccountNotFound, addr)
	default:
		apiErr, _ := decodeError(resp)
		return nil, apiErr
	}

	var out accountResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode account %s: %w", addr, err)
	}
	if !out.Address.Equals(addr) {
		return nil, errors.New("biox api returned a different account than requested")
	}
	return &accountsdb.Account{Address: out.Address, Owner: out.Owner, Data: out.Data, Version: out.Version}, nil
}

// Program reads the deployment the API serves, so clients need only its URL.
func (b *HTTPBackend) Program(ctx context.Context) (processor.Config, error) {
	var cfg processor.Config
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/version", nil)
	if err != nil {
		return cfg, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return cfg, fmt.Errorf("failed to fetch deployment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		apiErr, _ := decodeError(resp)
		return cfg, apiErr
	}

	var out versionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return cfg, fmt.Errorf("failed to decode deployment: %w", err)
	}
	for _, f := range []struct {
		dst   *solana.PublicKey
		name  string
		value string
	}{
		{&cfg.ProgramID, "programId", out.ProgramID},
		{&cfg.TokenProgramID, "tokenProgramId", out.TokenProgramID},
		{&cfg.Mint, "mint", out.Mint},
	} {
		if *f.dst, err = solana.PublicKeyFromBase58(f.value); err != nil {
			return cfg, fmt.Errorf("invalid %s %q: %w", f.name, f.value, err)
		}
	}
	cfg.Decimals = out.Decimals
	cfg.MaxVoteWeight = out.MaxVoteWeight
	return cfg, nil
}
