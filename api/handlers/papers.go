package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/biox/ledger/pkg/accountsdb"
	"github.com/malbeclabs/biox/program/pkg/pda"
	"github.com/malbeclabs/biox/program/pkg/state"
)

type PaperResponse struct {
	Address solana.PublicKey `json:"address"`
	*state.ResearchPaper
}

type VoteResponse struct {
	Address solana.PublicKey `json:"address"`
	*state.Vote
}

type FundingResponse struct {
	Address solana.PublicKey `json:"address"`
	*state.Funding
}

func (a *API) loadPaper(ctx context.Context, id uint64) (*PaperResponse, error) {
	addr, _, err := pda.DerivePaperPDA(a.cfg.Program.ProgramID, id)
	if err != nil {
		return nil, err
	}
	acct, err := a.readAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	var paper state.ResearchPaper
	if err := paper.Unmarshal(acct.Data); err != nil {
		return nil, err
	}
	return &PaperResponse{Address: addr, ResearchPaper: &paper}, nil
}

// ListPapers pages through papers in id order. Ids are dense, so the page is read
// directly from the derived addresses.
func (a *API) ListPapers(w http.ResponseWriter, r *http.Request) {
	page := ParsePagination(r, DefaultLimit)

	_, ps, err := a.loadProgramState(r.Context())
	if err != nil {
		a.writeStoreError(w, r, "program state", err)
		return
	}

	items := []PaperResponse{}
	end := min(uint64(page.Offset)+uint64(page.Limit), ps.PaperCount)
	for id := uint64(page.Offset); id < end; id++ {
		paper, err := a.loadPaper(r.Context(), id)
		if errors.Is(err, accountsdb.ErrAccountNotFound) {
			continue
		}
		if err != nil {
			a.writeBackendError(w, r, err)
			return
		}
		items = append(items, *paper)
	}
	writeJSON(w, http.StatusOK, PaginatedResponse[PaperResponse]{
		Items:  items,
		Total:  int(ps.PaperCount),
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

func (a *API) GetPaper(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	paper, err := a.loadPaper(r.Context(), id)
	if err != nil {
		a.writeStoreError(w, r, "paper", err)
		return
	}
	writeJSON(w, http.StatusOK, paper)
}

func (a *API) GetVote(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	voter, ok := publicKeyParam(w, r, "voter")
	if !ok {
		return
	}
	addr, _, err := pda.DeriveVotePDA(a.cfg.Program.ProgramID, id, voter)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_voter", err.Error())
		return
	}
	acct, err := a.readAccount(r.Context(), addr)
	if err != nil {
		a.writeStoreError(w, r, "vote", err)
		return
	}
	var vote state.Vote
	if err := vote.Unmarshal(acct.Data); err != nil {
		a.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VoteResponse{Address: addr, Vote: &vote})
}

// GetFunding returns the receipt at seq. Receipt addresses include the funder, so it
// is required as the funder query parameter.
func (a *API) GetFunding(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	seq, ok := uintParam(w, r, "seq")
	if !ok {
		return
	}
	funder, err := solana.PublicKeyFromBase58(r.URL.Query().Get("funder"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_funder", "funder query parameter must be a base58 public key")
		return
	}
	addr, _, err := pda.DeriveFundingPDA(a.cfg.Program.ProgramID, id, funder, seq)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_funder", err.Error())
		return
	}
	acct, err := a.readAccount(r.Context(), addr)
	if err != nil {
		a.writeStoreError(w, r, "funding", err)
		return
	}
	var funding state.Funding
	if err := funding.Unmarshal(acct.Data); err != nil {
		a.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FundingResponse{Address: addr, Funding: &funding})
}
