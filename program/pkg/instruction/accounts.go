package instruction

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/biox/ledger/pkg/runtime"
	"github.com/malbeclabs/biox/program/pkg/pda"
	"github.com/malbeclabs/biox/program/pkg/token"
)

// Account indexes, per instruction.
const (
	InitializeAdmin = iota
	InitializeProgramState
	InitializePlatformVault
	InitializeMint
	initializeAccounts
)

const (
	SubmitPaperAuthor = iota
	SubmitPaperPaper
	SubmitPaperProgramState
	submitPaperAccounts
)

const (
	PublishPaperAuthority = iota
	PublishPaperPaper
	PublishPaperProgramState
	publishPaperAccounts
)

const (
	FundPaperFunder = iota
	FundPaperPaper
	FundPaperFunderToken
	FundPaperPaperToken
	FundPaperPlatformVault
	FundPaperFunding
	FundPaperProgramState
	FundPaperMint
	fundPaperAccounts
)

const (
	VotePaperVoter = iota
	VotePaperPaper
	VotePaperProgramState
	VotePaperVoterToken
	VotePaperVote
	votePaperAccounts
)

const (
	ClaimFundsAuthor = iota
	ClaimFundsPaper
	ClaimFundsPaperToken
	ClaimFundsAuthorToken
	ClaimFundsProgramState
	ClaimFundsMint
	claimFundsAccounts
)

const (
	AdminAdmin = iota
	AdminProgramState
	adminAccounts
)

// AccountCount is the number of accounts each instruction expects.
func AccountCount(k Kind) int {
	switch k {
	case KindInitialize:
		return initializeAccounts
	case KindSubmitPaper:
		return submitPaperAccounts
	case KindPublishPaper:
		return publishPaperAccounts
	case KindFundPaper:
		return fundPaperAccounts
	case KindVotePaper:
		return votePaperAccounts
	case KindClaimFunds:
		return claimFundsAccounts
	case KindTogglePause, KindUpdateSettings:
		return adminAccounts
	}
	return 0
}

// Builder assembles instructions for one deployment of the research program. User
// token accounts are the owner's associated account for Mint.
type Builder struct {
	ProgramID      solana.PublicKey
	TokenProgramID solana.PublicKey
	Mint           solana.PublicKey
}

func (b Builder) build(args any, metas ...runtime.AccountMeta) (runtime.Instruction, error) {
	data, err := Encode(args)
	if err != nil {
		return runtime.Instruction{}, err
	}
	return runtime.Instruction{ProgramID: b.ProgramID, Accounts: metas, Data: data}, nil
}

func (b Builder) programState() (solana.PublicKey, error) {
	addr, _, err := pda.DeriveProgramStatePDA(b.ProgramID)
	if err != nil {
		return addr, fmt.Errorf("failed to derive program state address: %w", err)
	}
	return addr, nil
}

// TokenAccount returns owner's associated token account.
func (b Builder) TokenAccount(owner solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := token.DeriveAssociatedAccount(b.TokenProgramID, owner, b.Mint)
	if err != nil {
		return addr, fmt.Errorf("failed to derive token account: %w", err)
	}
	return addr, nil
}

func (b Builder) Initialize(admin solana.PublicKey) (runtime.Instruction, error) {
	programState, err := b.programState()
	if err != nil {
		return runtime.Instruction{}, err
	}
	vault, _, err := pda.DerivePlatformVaultPDA(b.ProgramID)
	if err != nil {
		return runtime.Instruction{}, err
	}
	return b.build(&InitializeArgs{},
		runtime.NewAccountMeta(admin, true, true),
		runtime.NewAccountMeta(programState, true, false),
		runtime.NewAccountMeta(vault, true, false),
		runtime.NewAccountMeta(b.Mint, false, false),
	)
}

// SubmitPaper targets paperID, which must equal the program's current paper count.
func (b Builder) SubmitPaper(author solana.PublicKey, paperID uint64, args SubmitPaperArgs) (runtime.Instruction, error) {
	programState, err := b.programState()
	if err != nil {
		return runtime.Instruction{}, err
	}
	paper, _, err := pda.DerivePaperPDA(b.ProgramID, paperID)
	if err != nil {
		return runtime.Instruction{}, err
	}
	return b.build(&args,
		runtime.NewAccountMeta(author, true, true),
		runtime.NewAccountMeta(paper, true, false),
		runtime.NewAccountMeta(programState, true, false),
	)
}

func (b Builder) PublishPaper(authority solana.PublicKey, paperID uint64) (runtime.Instruction, error) {
	programState, err := b.programState()
	if err != nil {
		return runtime.Instruction{}, err
	}
	paper, _, err := pda.DerivePaperPDA(b.ProgramID, paperID)
	if err != nil {
		return runtime.Instruction{}, err
	}
	return b.build(&PublishPaperArgs{PaperID: paperID},
		runtime.NewAccountMeta(authority, false, true),
		runtime.NewAccountMeta(paper, true, false),
		runtime.NewAccountMeta(programState, false, false),
	)
}

// FundPaper targets the receipt at seq, which must equal the paper's current funding count.
func (b Builder) FundPaper(funder solana.PublicKey, paperID, seq, amount uint64) (runtime.Instruction, error) {
	programState, err := b.programState()
	if err != nil {
		return runtime.Instruction{}, err
	}
	paper, _, err := pda.DerivePaperPDA(b.ProgramID, paperID)
	if err != nil {
		return runtime.Instruction{}, err
	}
	funderToken, err := b.TokenAccount(funder)
	if err != nil {
		return runtime.Instruction{}, err
	}
	escrow, _, err := pda.DerivePaperTokenPDA(b.ProgramID, paperID)
	if err != nil {
		return runtime.Instruction{}, err
	}
	vault, _, err := pda.DerivePlatformVaultPDA(b.ProgramID)
	if err != nil {
		return runtime.Instruction{}, err
	}
	funding, _, err := pda.DeriveFundingPDA(b.ProgramID, paperID, funder, seq)
	if err != nil {
		return runtime.Instruction{}, err
	}
	return b.build(&FundPaperArgs{PaperID: paperID, Amount: amount},
		runtime.NewAccountMeta(funder, true, true),
		runtime.NewAccountMeta(paper, true, false),
		runtime.NewAccountMeta(funderToken, true, false),
		runtime.NewAccountMeta(escrow, true, false),
		runtime.NewAccountMeta(vault, true, false),
		runtime.NewAccountMeta(funding, true, false),
		runtime.NewAccountMeta(programState, true, false),
		runtime.NewAccountMeta(b.Mint, false, false),
	)
}

func (b Builder) VotePaper(voter solana.PublicKey, paperID uint64, isUpvote bool) (runtime.Instruction, error) {
	programState, err := b.programState()
	if err != nil {
		return runtime.Instruction{}, err
	}
	paper, _, err := pda.DerivePaperPDA(b.ProgramID, paperID)
	if err != nil {
		return runtime.Instruction{}, err
	}
	voterToken, err := b.TokenAccount(voter)
	if err != nil {
		return runtime.Instruction{}, err
	}
	vote, _, err := pda.DeriveVotePDA(b.ProgramID, paperID, voter)
	if err != nil {
		return runtime.Instruction{}, err
	}
	return b.build(&VotePaperArgs{PaperID: paperID, IsUpvote: isUpvote},
		runtime.NewAccountMeta(voter, true, true),
		runtime.NewAccountMeta(paper, true, false),
		runtime.NewAccountMeta(programState, false, false),
		runtime.NewAccountMeta(voterToken, false, false),
		runtime.NewAccountMeta(vote, true, false),
	)
}

func (b Builder) ClaimFunds(author solana.PublicKey, paperID uint64) (runtime.Instruction, error) {
	programState, err := b.programState()
	if err != nil {
		return runtime.Instruction{}, err
	}
	paper, _, err := pda.DerivePaperPDA(b.ProgramID, paperID)
	if err != nil {
		return runtime.Instruction{}, err
	}
	escrow, _, err := pda.DerivePaperTokenPDA(b.ProgramID, paperID)
	if err != nil {
		return runtime.Instruction{}, err
	}
	authorToken, err := b.TokenAccount(author)
	if err != nil {
		return runtime.Instruction{}, err
	}
	return b.build(&ClaimFundsArgs{PaperID: paperID},
		runtime.NewAccountMeta(author, false, true),
		runtime.NewAccountMeta(paper, true, false),
		runtime.NewAccountMeta(escrow, true, false),
		runtime.NewAccountMeta(authorToken, true, false),
		runtime.NewAccountMeta(programState, false, false),
		runtime.NewAccountMeta(b.Mint, false, false),
	)
}

func (b Builder) TogglePause(admin solana.PublicKey) (runtime.Instruction, error) {
	programState, err := b.programState()
	if err != nil {
		return runtime.Instruction{}, err
	}
	return b.build(&TogglePauseArgs{},
		runtime.NewAccountMeta(admin, false, true),
		runtime.NewAccountMeta(programState, true, false),
	)
}

func (b Builder) UpdateSettings(admin solana.PublicKey, args UpdateSettingsArgs) (runtime.Instruction, error) {
	programState, err := b.programState()
	if err != nil {
		return runtime.Instruction{}, err
	}
	return b.build(&args,
		runtime.NewAccountMeta(admin, false, true),
		runtime.NewAccountMeta(programState, true, false),
	)
}
