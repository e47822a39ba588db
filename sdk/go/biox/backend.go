package biox

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/biox/ledger/pkg/accountsdb"
	"github.com/malbeclabs/biox/ledger/pkg/runtime"
)

// Backend delivers signed transactions to a ledger and reads raw accounts back.
// Submit returns the receipt together with a *runtime.InstructionError when the
// program rejected the transaction. GetAccount returns accountsdb.ErrAccountNotFound
// for addresses that hold nothing.
type Backend interface {
	Submit(ctx context.Context, tx *runtime.Transaction) (*runtime.Receipt, error)
	GetAccount(ctx context.Context, addr solana.PublicKey) (*accountsdb.Account, error)
}

// LocalBackend runs transactions on an in-process executor.
type LocalBackend struct {
	executor *runtime.Executor
}

func NewLocalBackend(executor *runtime.Executor) *LocalBackend {
	return &LocalBackend{executor: executor}
}

func (b *LocalBackend) Submit(ctx context.Context, tx *runtime.Transaction) (*runtime.Receipt, error) {
	return b.executor.Execute(ctx, tx)
}

func (b *LocalBackend) GetAccount(ctx context.Context, addr solana.PublicKey) (*accountsdb.Account, error) {
	return b.executor.Store().GetAccount(ctx, addr)
}
