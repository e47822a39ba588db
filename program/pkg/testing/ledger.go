// Package programtesting runs the research and token programs on an in-memory ledger
// for tests of the layers above them.
package programtesting

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/biox/ledger/pkg/accountsdb"
	"github.com/malbeclabs/biox/ledger/pkg/runtime"
	"github.com/malbeclabs/biox/program/pkg/instruction"
	"github.com/malbeclabs/biox/program/pkg/processor"
	"github.com/malbeclabs/biox/program/pkg/token"
	bioxtesting "github.com/malbeclabs/biox/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

const (
	StartUnix = 1_700_000_000
	Decimals  = 6
	OneToken  = 1_000_000
)

// Ledger is an initialized deployment: the mint exists and the program state has
// been created by Admin.
type Ledger struct {
	Executor      *runtime.Executor
	Store         *accountsdb.MemoryStore
	Clock         *clockwork.FakeClock
	Config        processor.Config
	Builder       instruction.Builder
	Admin         solana.PrivateKey
	MintAuthority solana.PrivateKey
}

func NewLedger(t *testing.T, sinks ...runtime.EventSink) *Ledger {
	t.Helper()

	l := &Ledger{
		Store:         accountsdb.NewMemoryStore(),
		Clock:         clockwork.NewFakeClockAt(time.Unix(StartUnix, 0)),
		Admin:         solana.NewWallet().PrivateKey,
		MintAuthority: solana.NewWallet().PrivateKey,
	}
	mint, _, err := token.DeriveMintAddress(token.DefaultProgramID, l.MintAuthority.PublicKey())
	require.NoError(t, err)

	proc, err := processor.New(processor.Config{Mint: mint, Decimals: Decimals})
	require.NoError(t, err)
	l.Config = proc.Config()
	l.Builder = l.Config.Builder()

	l.Executor, err = runtime.NewExecutor(runtime.ExecutorConfig{
		Logger:   bioxtesting.NewLogger(),
		Store:    l.Store,
		Clock:    l.Clock,
		Programs: []runtime.Program{token.NewProgram(token.DefaultProgramID), proc},
		Sinks:    sinks,
	})
	require.NoError(t, err)

	l.MustSend(t, l.MintAuthority, token.NewInitializeMintInstruction(token.DefaultProgramID, mint, l.MintAuthority.PublicKey(), Decimals))
	ix, err := l.Builder.Initialize(l.Admin.PublicKey())
	require.NoError(t, err)
	l.MustSend(t, l.Admin, ix)
	return l
}

func (l *Ledger) Mint() solana.PublicKey { return l.Config.Mint }

func (l *Ledger) Send(key solana.PrivateKey, ix runtime.Instruction) (*runtime.Receipt, error) {
	tx, err := runtime.NewTransaction(key, ix)
	if err != nil {
		return nil, err
	}
	return l.Executor.Execute(context.Background(), tx)
}

func (l *Ledger) MustSend(t *testing.T, key solana.PrivateKey, ix runtime.Instruction) *runtime.Receipt {
	t.Helper()
	receipt, err := l.Send(key, ix)
	require.NoError(t, err)
	return receipt
}

// Wallet returns a new key whose associated token account holds amount.
func (l *Ledger) Wallet(t *testing.T, amount uint64) solana.PrivateKey {
	t.Helper()
	key := solana.NewWallet().PrivateKey
	addr, err := l.Builder.TokenAccount(key.PublicKey())
	require.NoError(t, err)
	l.MustSend(t, key, token.NewInitializeAccountInstruction(token.DefaultProgramID, addr, l.Mint(), key.PublicKey(), false))
	if amount > 0 {
		l.MustSend(t, l.MintAuthority, token.NewMintToInstruction(token.DefaultProgramID, l.Mint(), addr, l.MintAuthority.PublicKey(), amount))
	}
	return key
}

// SubmitArgs is a valid submission with the given goal and funding window.
func SubmitArgs(goal, days uint64) instruction.SubmitPaperArgs {
	return instruction.SubmitPaperArgs{
		Title:             "Soil microbiome shifts under drought stress",
		AbstractText:      "A longitudinal survey of rhizosphere communities.",
		IPFSHash:          "QmT78zSuBmuS4z925WZfrqQ1qHaJ56DQaTfyMUF7F8ff5o",
		Authors:           []string{"C. Field"},
		FundingGoal:       goal,
		FundingPeriodDays: days,
	}
}
