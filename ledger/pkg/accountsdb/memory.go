package accountsdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// MemoryStore keeps accounts in process memory. Transactions validate the versions
// they read at commit time, so two transactions racing on one account cannot both land.
type MemoryStore struct {
	mu         sync.RWMutex
	accounts   map[solana.PublicKey]*Account
	signatures map[solana.Signature]uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[solana.PublicKey]*Account),
		signatures: make(map[solana.Signature]uint64),
	}
}

func (s *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	return &memoryTx{
		s:      s,
		reads:  make(map[solana.PublicKey]uint64),
		writes: make(map[solana.PublicKey]*Account),
		sigs:   make(map[solana.Signature]uint64),
	}, nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, addr solana.PublicKey) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[addr]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acct.Clone(), nil
}

func (s *MemoryStore) ForEach(ctx context.Context, fn func(*Account) error) error {
	s.mu.RLock()
	accounts := make([]*Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		accounts = append(accounts, acct.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i].Address[:], accounts[j].Address[:]) < 0
	})
	for _, acct := range accounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(acct); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) LatestSlot(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest uint64
	for _, slot := range s.signatures {
		latest = max(latest, slot)
	}
	return latest, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

type memoryTx struct {
	s      *MemoryStore
	reads  map[solana.PublicKey]uint64
	writes map[solana.PublicKey]*Account
	sigs   map[solana.Signature]uint64
	done   bool
}

func (tx *memoryTx) Get(ctx context.Context, addr solana.PublicKey) (*Account, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	if acct, ok := tx.writes[addr]; ok {
		return acct.Clone(), nil
	}

	tx.s.mu.RLock()
	acct, ok := tx.s.accounts[addr]
	tx.s.mu.RUnlock()

	if !ok {
		if _, seen := tx.reads[addr]; !seen {
			tx.reads[addr] = 0
		}
		return nil, ErrAccountNotFound
	}
	if _, seen := tx.reads[addr]; !seen {
		tx.reads[addr] = acct.Version
	}
	return acct.Clone(), nil
}

func (tx *memoryTx) Create(ctx context.Context, acct *Account) error {
	_, err := tx.Get(ctx, acct.Address)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrAccountAlreadyInUse, acct.Address)
	case !errors.Is(err, ErrAccountNotFound):
		return err
	}
	created := acct.Clone()
	created.Version = 1
	tx.writes[acct.Address] = created
	acct.Version = created.Version
	return nil
}

func (tx *memoryTx) Update(ctx context.Context, acct *Account) error {
	current, err := tx.Get(ctx, acct.Address)
	if err != nil {
		return err
	}
	updated := acct.Clone()
	if _, pending := tx.writes[acct.Address]; pending {
		updated.Version = current.Version
	} else {
		updated.Version = current.Version + 1
	}
	tx.writes[acct.Address] = updated
	acct.Version = updated.Version
	return nil
}

func (tx *memoryTx) RecordSignature(ctx context.Context, sig solana.Signature, slot uint64) error {
	if tx.done {
		return ErrTxDone
	}
	if _, ok := tx.sigs[sig]; ok {
		return ErrSignatureAlreadyProcessed
	}
	tx.s.mu.RLock()
	_, ok := tx.s.signatures[sig]
	tx.s.mu.RUnlock()
	if ok {
		return ErrSignatureAlreadyProcessed
	}
	tx.sigs[sig] = slot
	return nil
}

func (tx *memoryTx) Commit(ctx context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true

	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()

	for addr, version := range tx.reads {
		var current uint64
		if acct, ok := tx.s.accounts[addr]; ok {
			current = acct.Version
		}
		if current != version {
			return fmt.Errorf("%w: %s", ErrConflict, addr)
		}
	}
	for sig := range tx.sigs {
		if _, ok := tx.s.signatures[sig]; ok {
			return ErrSignatureAlreadyProcessed
		}
	}

	for addr, acct := range tx.writes {
		tx.s.accounts[addr] = acct
	}
	for sig, slot := range tx.sigs {
		tx.s.signatures[sig] = slot
	}
	return nil
}

func (tx *memoryTx) Rollback(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.writes = nil
	tx.sigs = nil
	return nil
}
