// Package accountsdb stores ledger accounts. Writes happen inside a Tx and become
// visible all at once on Commit; a Tx that is rolled back leaves no trace.
package accountsdb

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrAccountNotFound           = errors.New("account not found")
	ErrAccountAlreadyInUse       = errors.New("account already in use")
	ErrSignatureAlreadyProcessed = errors.New("transaction signature already processed")
	ErrConflict                  = errors.New("account modified by a concurrent transaction")
	ErrTxDone                    = errors.New("transaction already committed or rolled back")
)

// Account is a single addressable record. Owner is the program allowed to write Data.
type Account struct {
	Address solana.PublicKey
	Owner   solana.PublicKey
	Data    []byte

	// Version is assigned by the store and increases on every committed write.
	Version uint64
}

func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	data := make([]byte, len(a.Data))
	copy(data, a.Data)
	return &Account{
		Address: a.Address,
		Owner:   a.Owner,
		Data:    data,
		Version: a.Version,
	}
}

// Store is a transactional account store.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	// GetAccount reads the latest committed version of an account.
	GetAccount(ctx context.Context, addr solana.PublicKey) (*Account, error)

	// ForEach visits every committed account in address order.
	ForEach(ctx context.Context, fn func(*Account) error) error

	// LatestSlot is the highest slot recorded with a processed signature, or zero.
	LatestSlot(ctx context.Context) (uint64, error)

	Close() error
}

// Tx is a unit of all-or-nothing work against a Store.
type Tx interface {
	Get(ctx context.Context, addr solana.PublicKey) (*Account, error)

	// Create fails with ErrAccountAlreadyInUse if anything already lives at the address.
	Create(ctx context.Context, acct *Account) error

	// Update fails with ErrAccountNotFound if the account does not exist.
	Update(ctx context.Context, acct *Account) error

	// RecordSignature fails with ErrSignatureAlreadyProcessed for a replayed signature.
	RecordSignature(ctx context.Context, sig solana.Signature, slot uint64) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
