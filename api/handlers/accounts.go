package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/malbeclabs/biox/api/handlers/dberror"
	"github.com/malbeclabs/biox/api/metrics"
	"github.com/malbeclabs/biox/ledger/pkg/accountsdb"
	"github.com/malbeclabs/biox/program/pkg/pda"
	"github.com/malbeclabs/biox/program/pkg/state"
	"github.com/malbeclabs/biox/program/pkg/token"
)

type AccountResponse struct {
	Address solana.PublicKey `json:"address"`
	Owner   solana.PublicKey `json:"owner"`
	Data    []byte           `json:"data"`
	Version uint64           `json:"version"`

	// Kind and Decoded are set for records of the research and token programs.
	Kind    string `json:"kind,omitempty"`
	Decoded any    `json:"decoded,omitempty"`
}

func (a *API) readAccount(ctx context.Context, addr solana.PublicKey) (*accountsdb.Account, error) {
	start := time.Now()
	acct, err := dberror.Retry(ctx, a.retry, func() (*accountsdb.Account, error) {
		return a.cfg.Store.GetAccount(ctx, addr)
	})
	if errors.Is(err, accountsdb.ErrAccountNotFound) {
		metrics.RecordStoreRead(time.Since(start), nil)
	} else {
		metrics.RecordStoreRead(time.Since(start), err)
	}
	return acct, err
}

// describe decodes acct when it belongs to a known program. Undecodable data is
// returned raw.
func (a *API) describe(acct *accountsdb.Account) (string, any) {
	switch {
	case acct.Owner.Equals(a.cfg.Program.ProgramID):
		rec, err := state.DecodeAccount(acct.Data)
		if err != nil {
			return "", nil
		}
		return state.Kind(acct.Data), rec
	case acct.Owner.Equals(a.cfg.Program.TokenProgramID):
		switch len(acct.Data) {
		case token.MintLen:
			if mint, err := token.LoadMint(a.cfg.Program.TokenProgramID, acct); err == nil {
				return "mint", mint
			}
		case token.AccountLen:
			if ta, err := token.Load(a.cfg.Program.TokenProgramID, acct); err == nil {
				return "tokenAccount", ta
			}
		}
	}
	return "", nil
}

func (a *API) GetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := publicKeyParam(w, r, "address")
	if !ok {
		return
	}
	acct, err := a.readAccount(r.Context(), addr)
	if err != nil {
		a.writeStoreError(w, r, "account", err)
		return
	}
	kind, decoded := a.describe(acct)
	writeJSON(w, http.StatusOK, AccountResponse{
		Address: acct.Address,
		Owner:   acct.Owner,
		Data:    acct.Data,
		Version: acct.Version,
		Kind:    kind,
		Decoded: decoded,
	})
}

type TokenAccountResponse struct {
	Address solana.PublicKey `json:"address"`
	*token.Account
}

// GetTokenAccount returns the owner's associated account for the configured mint.
func (a *API) GetTokenAccount(w http.ResponseWriter, r *http.Request) {
	owner, ok := publicKeyParam(w, r, "owner")
	if !ok {
		return
	}
	addr, err := a.builder.TokenAccount(owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_owner", err.Error())
		return
	}
	acct, err := a.readAccount(r.Context(), addr)
	if err != nil {
		a.writeStoreError(w, r, "token account", err)
		return
	}
	ta, err := token.Load(a.cfg.Program.TokenProgramID, acct)
	if err != nil {
		a.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenAccountResponse{Address: addr, Account: ta})
}

type ProgramStateResponse struct {
	Address solana.PublicKey `json:"address"`
	*state.ProgramState
}

func (a *API) loadProgramState(ctx context.Context) (solana.PublicKey, *state.ProgramState, error) {
	addr, _, err := pda.DeriveProgramStatePDA(a.cfg.Program.ProgramID)
	if err != nil {
		return addr, nil, err
	}
	acct, err := a.readAccount(ctx, addr)
	if err != nil {
		return addr, nil, err
	}
	var ps state.ProgramState
	if err := ps.Unmarshal(acct.Data); err != nil {
		return addr, nil, err
	}
	return addr, &ps, nil
}

func (a *API) GetProgramState(w http.ResponseWriter, r *http.Request) {
	addr, ps, err := a.loadProgramState(r.Context())
	if err != nil {
		a.writeStoreError(w, r, "program state", err)
		return
	}
	writeJSON(w, http.StatusOK, ProgramStateResponse{Address: addr, ProgramState: ps})
}

func publicKeyParam(w http.ResponseWriter, r *http.Request, name string) (solana.PublicKey, bool) {
	key, err := solana.PublicKeyFromBase58(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a base58 public key")
		return key, false
	}
	return key, true
}

func uintParam(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be an unsigned integer")
		return 0, false
	}
	return v, true
}
