// Package processor is the research funding program: paper submission and
// publication, contributions with a platform fee, weighted voting and fund claims.
package processor

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/biox/ledger/pkg/runtime"
	"github.com/malbeclabs/biox/program/pkg/instruction"
	"github.com/malbeclabs/biox/program/pkg/token"
)

var DefaultProgramID = solana.MustPublicKeyFromBase58("4TsLtFAfkbpcFjesanK4ojZNTK1bsQPfPuVxt5g19hhM")

// maxDecimals keeps 10^decimals within a u64.
const maxDecimals = 19

type Config struct {
	ProgramID      solana.PublicKey
	TokenProgramID solana.PublicKey

	// Mint is the token contributions are made in; Decimals is its precision.
	Mint     solana.PublicKey
	Decimals uint8

	// MaxVoteWeight caps a single vote. Zero leaves weight uncapped.
	MaxVoteWeight uint64
}

func (cfg *Config) Validate() error {
	if cfg.ProgramID.IsZero() {
		cfg.ProgramID = DefaultProgramID
	}
	if cfg.TokenProgramID.IsZero() {
		cfg.TokenProgramID = token.DefaultProgramID
	}
	if cfg.Mint.IsZero() {
		return errors.New("mint is required")
	}
	if cfg.Decimals > maxDecimals {
		return fmt.Errorf("decimals must be at most %d", maxDecimals)
	}
	return nil
}

// Builder returns an instruction builder for this deployment.
func (cfg Config) Builder() instruction.Builder {
	return instruction.Builder{
		ProgramID:      cfg.ProgramID,
		TokenProgramID: cfg.TokenProgramID,
		Mint:           cfg.Mint,
	}
}

type Processor struct {
	cfg Config
}

func New(cfg Config) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Processor{cfg: cfg}, nil
}

func (p *Processor) ProgramID() solana.PublicKey { return p.cfg.ProgramID }

func (p *Processor) Config() Config { return p.cfg }

func (p *Processor) InstructionName(data []byte) string {
	k, err := instruction.Peek(data)
	if err != nil {
		return ""
	}
	return k.String()
}

func (p *Processor) Process(ic *runtime.InvokeContext) error {
	k, args, err := instruction.Decode(ic.Data())
	switch {
	case errors.Is(err, instruction.ErrUnknownInstruction):
		return runtime.ErrInstructionFallbackNotFound
	case err != nil:
		return runtime.ErrInstructionDidNotDeserialize.Withf("%v", err)
	}
	if err := ic.RequireAccounts(instruction.AccountCount(k)); err != nil {
		return err
	}
	ic.Logf("Instruction: %s", k)

	switch a := args.(type) {
	case *instruction.InitializeArgs:
		return p.initialize(ic)
	case *instruction.SubmitPaperArgs:
		return p.submitPaper(ic, a)
	case *instruction.PublishPaperArgs:
		return p.publishPaper(ic, a)
	case *instruction.FundPaperArgs:
		return p.fundPaper(ic, a)
	case *instruction.VotePaperArgs:
		return p.votePaper(ic, a)
	case *instruction.ClaimFundsArgs:
		return p.claimFunds(ic, a)
	case *instruction.TogglePauseArgs:
		return p.togglePause(ic)
	case *instruction.UpdateSettingsArgs:
		return p.updateSettings(ic, a)
	}
	return runtime.ErrInstructionFallbackNotFound
}
