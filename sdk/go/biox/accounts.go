package biox

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/biox/program/pkg/pda"
	"github.com/malbeclabs/biox/program/pkg/state"
	"github.com/malbeclabs/biox/program/pkg/token"
)

func (c *Client) ProgramStateAddress() (solana.PublicKey, error) {
	addr, _, err := pda.DeriveProgramStatePDA(c.cfg.Program.ProgramID)
	return addr, err
}

func (c *Client) PaperAddress(paperID uint64) (solana.PublicKey, error) {
	addr, _, err := pda.DerivePaperPDA(c.cfg.Program.ProgramID, paperID)
	return addr, err
}

func (c *Client) EscrowAddress(paperID uint64) (solana.PublicKey, error) {
	addr, _, err := pda.DerivePaperTokenPDA(c.cfg.Program.ProgramID, paperID)
	return addr, err
}

func (c *Client) PlatformVaultAddress() (solana.PublicKey, error) {
	addr, _, err := pda.DerivePlatformVaultPDA(c.cfg.Program.ProgramID)
	return addr, err
}

func (c *Client) FundingAddress(paperID uint64, funder solana.PublicKey, seq uint64) (solana.PublicKey, error) {
	addr, _, err := pda.DeriveFundingPDA(c.cfg.Program.ProgramID, paperID, funder, seq)
	return addr, err
}

func (c *Client) VoteAddress(paperID uint64, voter solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := pda.DeriveVotePDA(c.cfg.Program.ProgramID, paperID, voter)
	return addr, err
}

type record interface {
	Unmarshal(data []byte) error
}

func (c *Client) fetch(ctx context.Context, addr solana.PublicKey, out record) error {
	acct, err := c.backend.GetAccount(ctx, addr)
	if err != nil {
		return err
	}
	if !acct.Owner.Equals(c.cfg.Program.ProgramID) {
		return fmt.Errorf("account %s is owned by %s, not program %s", addr, acct.Owner, c.cfg.Program.ProgramID)
	}
	if err := out.Unmarshal(acct.Data); err != nil {
		return fmt.Errorf("failed to decode account %s: %w", addr, err)
	}
	return nil
}

func (c *Client) ProgramState(ctx context.Context) (*state.ProgramState, error) {
	addr, err := c.ProgramStateAddress()
	if err != nil {
		return nil, err
	}
	var st state.ProgramState
	if err := c.fetch(ctx, addr, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) Paper(ctx context.Context, paperID uint64) (*state.ResearchPaper, error) {
	addr, err := c.PaperAddress(paperID)
	if err != nil {
		return nil, err
	}
	var paper state.ResearchPaper
	if err := c.fetch(ctx, addr, &paper); err != nil {
		return nil, err
	}
	return &paper, nil
}

func (c *Client) Vote(ctx context.Context, paperID uint64, voter solana.PublicKey) (*state.Vote, error) {
	addr, err := c.VoteAddress(paperID, voter)
	if err != nil {
		return nil, err
	}
	var vote state.Vote
	if err := c.fetch(ctx, addr, &vote); err != nil {
		return nil, err
	}
	return &vote, nil
}

func (c *Client) Funding(ctx context.Context, paperID uint64, funder solana.PublicKey, seq uint64) (*state.Funding, error) {
	addr, err := c.FundingAddress(paperID, funder, seq)
	if err != nil {
		return nil, err
	}
	var funding state.Funding
	if err := c.fetch(ctx, addr, &funding); err != nil {
		return nil, err
	}
	return &funding, nil
}

// TokenAccount reads owner's associated account for the configured mint.
func (c *Client) TokenAccount(ctx context.Context, owner solana.PublicKey) (*token.Account, error) {
	addr, err := c.builder.TokenAccount(owner)
	if err != nil {
		return nil, err
	}
	return c.loadTokenAccount(ctx, addr)
}

// Escrow reads the token account holding a paper's contributions.
func (c *Client) Escrow(ctx context.Context, paperID uint64) (*token.Account, error) {
	addr, err := c.EscrowAddress(paperID)
	if err != nil {
		return nil, err
	}
	return c.loadTokenAccount(ctx, addr)
}

func (c *Client) loadTokenAccount(ctx context.Context, addr solana.PublicKey) (*token.Account, error) {
	acct, err := c.backend.GetAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	return token.Load(c.cfg.Program.TokenProgramID, acct)
}
