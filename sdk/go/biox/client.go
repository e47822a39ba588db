// Package biox is a Go client for the research funding program.
package biox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/biox/ledger/pkg/accountsdb"
	"github.com/malbeclabs/biox/ledger/pkg/runtime"
	"github.com/malbeclabs/biox/program/pkg/instruction"
	"github.com/malbeclabs/biox/program/pkg/processor"
	"github.com/malbeclabs/biox/program/pkg/token"
	"github.com/malbeclabs/biox/utils/pkg/retry"
)

type Config struct {
	Backend Backend
	Program processor.Config

	// Retry governs resubmission of SubmitPaper and FundPaper after losing an
	// address race. ShouldRetry defaults to LostAddressRace.
	Retry retry.Config
}

func (cfg *Config) Validate() error {
	if cfg.Backend == nil {
		return errors.New("backend is required")
	}
	if err := cfg.Program.Validate(); err != nil {
		return fmt.Errorf("invalid program config: %w", err)
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.Config{
			MaxAttempts: 5,
			BaseBackoff: 50 * time.Millisecond,
			MaxBackoff:  time.Second,
		}
	}
	if cfg.Retry.ShouldRetry == nil {
		cfg.Retry.ShouldRetry = LostAddressRace
	}
	return nil
}

type Client struct {
	cfg     Config
	backend Backend
	builder instruction.Builder
}

func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, backend: cfg.Backend, builder: cfg.Program.Builder()}, nil
}

func (c *Client) Program() processor.Config      { return c.cfg.Program }
func (c *Client) Builder() instruction.Builder { return c.builder }

// LostAddressRace reports whether err means another transaction claimed the
// address a counter-derived instruction was built for. Re-reading the counter and
// resubmitting resolves it.
func LostAddressRace(err error) bool {
	return errors.Is(err, runtime.ErrConstraintSeeds) ||
		errors.Is(err, runtime.ErrAccountAlreadyInUse) ||
		errors.Is(err, accountsdb.ErrConflict)
}

// Send signs ix with key and submits it.
func (c *Client) Send(ctx context.Context, key solana.PrivateKey, ix runtime.Instruction) (*runtime.Receipt, error) {
	tx, err := runtime.NewTransaction(key, ix)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return c.backend.Submit(ctx, tx)
}

func (c *Client) sendBuilt(ctx context.Context, key solana.PrivateKey, ix runtime.Instruction, err error) (*runtime.Receipt, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to build instruction: %w", err)
	}
	return c.Send(ctx, key, ix)
}

func (c *Client) Initialize(ctx context.Context, admin solana.PrivateKey) (*runtime.Receipt, error) {
	ix, err := c.builder.Initialize(admin.PublicKey())
	return c.sendBuilt(ctx, admin, ix, err)
}

// SubmitPaper registers a draft under the next paper id and returns that id.
func (c *Client) SubmitPaper(ctx context.Context, author solana.PrivateKey, args instruction.SubmitPaperArgs) (uint64, *runtime.Receipt, error) {
	var (
		paperID uint64
		receipt *runtime.Receipt
	)
	err := retry.Do(ctx, c.cfg.Retry, func() error {
		st, err := c.ProgramState(ctx)
		if err != nil {
			return err
		}
		paperID = st.PaperCount
		ix, err := c.builder.SubmitPaper(author.PublicKey(), paperID, args)
		receipt, err = c.sendBuilt(ctx, author, ix, err)
		return err
	})
	return paperID, receipt, err
}

func (c *Client) PublishPaper(ctx context.Context, authority solana.PrivateKey, paperID uint64) (*runtime.Receipt, error) {
	ix, err := c.builder.PublishPaper(authority.PublicKey(), paperID)
	return c.sendBuilt(ctx, authority, ix, err)
}

// FundPaper contributes amount, fee included, and returns the sequence number of
// the funding receipt it created.
func (c *Client) FundPaper(ctx context.Context, funder solana.PrivateKey, paperID, amount uint64) (uint64, *runtime.Receipt, error) {
	var (
		seq     uint64
		receipt *runtime.Receipt
	)
	err := retry.Do(ctx, c.cfg.Retry, func() error {
		paper, err := c.Paper(ctx, paperID)
		if err != nil {
			return err
		}
		seq = paper.FundingCount
		ix, err := c.builder.FundPaper(funder.PublicKey(), paperID, seq, amount)
		receipt, err = c.sendBuilt(ctx, funder, ix, err)
		return err
	})
	return seq, receipt, err
}

func (c *Client) VotePaper(ctx context.Context, voter solana.PrivateKey, paperID uint64, isUpvote bool) (*runtime.Receipt, error) {
	ix, err := c.builder.VotePaper(voter.PublicKey(), paperID, isUpvote)
	return c.sendBuilt(ctx, voter, ix, err)
}

func (c *Client) ClaimFunds(ctx context.Context, author solana.PrivateKey, paperID uint64) (*runtime.Receipt, error) {
	ix, err := c.builder.ClaimFunds(author.PublicKey(), paperID)
	return c.sendBuilt(ctx, author, ix, err)
}

func (c *Client) TogglePause(ctx context.Context, admin solana.PrivateKey) (*runtime.Receipt, error) {
	ix, err := c.builder.TogglePause(admin.PublicKey())
	return c.sendBuilt(ctx, admin, ix, err)
}

func (c *Client) UpdateSettings(ctx context.Context, admin solana.PrivateKey, args instruction.UpdateSettingsArgs) (*runtime.Receipt, error) {
	ix, err := c.builder.UpdateSettings(admin.PublicKey(), args)
	return c.sendBuilt(ctx, admin, ix, err)
}

// CreateMint creates the mint controlled by authority. Its address is derived from
// the authority, so it only matches the configured mint for the deployment's own
// mint authority.
func (c *Client) CreateMint(ctx context.Context, authority solana.PrivateKey, decimals uint8) (solana.PublicKey, *runtime.Receipt, error) {
	mint, _, err := token.DeriveMintAddress(c.cfg.Program.TokenProgramID, authority.PublicKey())
	if err != nil {
		return mint, nil, err
	}
	ix := token.NewInitializeMintInstruction(c.cfg.Program.TokenProgramID, mint, authority.PublicKey(), decimals)
	receipt, err := c.Send(ctx, authority, ix)
	return mint, receipt, err
}

// CreateTokenAccount opens owner's associated account for the configured mint.
func (c *Client) CreateTokenAccount(ctx context.Context, owner solana.PrivateKey) (solana.PublicKey, *runtime.Receipt, error) {
	addr, err := c.builder.TokenAccount(owner.PublicKey())
	if err != nil {
		return addr, nil, err
	}
	ix := token.NewInitializeAccountInstruction(c.cfg.Program.TokenProgramID, addr, c.cfg.Program.Mint, owner.PublicKey(), false)
	receipt, err := c.Send(ctx, owner, ix)
	return addr, receipt, err
}

// MintTo issues amount base units into owner's associated account.
func (c *Client) MintTo(ctx context.Context, authority solana.PrivateKey, owner solana.PublicKey, amount uint64) (*runtime.Receipt, error) {
	addr, err := c.builder.TokenAccount(owner)
	if err != nil {
		return nil, err
	}
	ix := token.NewMintToInstruction(c.cfg.Program.TokenProgramID, c.cfg.Program.Mint, addr, authority.PublicKey(), amount)
	return c.Send(ctx, authority, ix)
}
