package accountsdb_test

import (
	"context"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/biox/ledger/pkg/accountsdb"
	"github.com/stretchr/testify/require"
)

var testOwner = solana.MustPublicKeyFromBase58("4TsLtFAfkbpcFjesanK4ojZNTK1bsQPfPuVxt5g19hhM")

func newAccount(data string) *accountsdb.Account {
	return &accountsdb.Account{
		Address: solana.NewWallet().PublicKey(),
		Owner:   testOwner,
		Data:    []byte(data),
	}
}

func createCommitted(t *testing.T, store accountsdb.Store, acct *accountsdb.Account) {
	t.Helper()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Create(ctx, acct))
	require.NoError(t, tx.Commit(ctx))
}

// runStoreSuite exercises the Store contract shared by every implementation.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) accountsdb.Store) {
	t.Run("create then read committed", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		acct := newAccount("paper")

		createCommitted(t, store, acct)

		got, err := store.GetAccount(ctx, acct.Address)
		require.NoError(t, err)
		require.Equal(t, acct.Owner, got.Owner)
		require.Equal(t, []byte("paper"), got.Data)
		require.Equal(t, uint64(1), got.Version)
	})

	t.Run("missing account", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetAccount(context.Background(), solana.NewWallet().PublicKey())
		require.ErrorIs(t, err, accountsdb.ErrAccountNotFound)
	})

	t.Run("create at occupied address fails", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		acct := newAccount("first")
		createCommitted(t, store, acct)

		tx, err := store.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)
		err = tx.Create(ctx, &accountsdb.Account{Address: acct.Address, Owner: testOwner, Data: []byte("second")})
		require.ErrorIs(t, err, accountsdb.ErrAccountAlreadyInUse)
	})

	t.Run("update requires existing account", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		tx, err := store.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)
		err = tx.Update(ctx, newAccount("ghost"))
		require.ErrorIs(t, err, accountsdb.ErrAccountNotFound)
	})

	t.Run("rollback discards writes", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		existing := newAccount("before")
		createCommitted(t, store, existing)

		tx, err := store.Begin(ctx)
		require.NoError(t, err)
		fresh := newAccount("fresh")
		require.NoError(t, tx.Create(ctx, fresh))
		existing.Data = []byte("after")
		require.NoError(t, tx.Update(ctx, existing))
		require.NoError(t, tx.Rollback(ctx))

		_, err = store.GetAccount(ctx, fresh.Address)
		require.ErrorIs(t, err, accountsdb.ErrAccountNotFound)
		got, err := store.GetAccount(ctx, existing.Address)
		require.NoError(t, err)
		require.Equal(t, []byte("before"), got.Data)
	})

	t.Run("updates bump version once per commit", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		acct := newAccount("v1")
		createCommitted(t, store, acct)

		tx, err := store.Begin(ctx)
		require.NoError(t, err)
		cur, err := tx.Get(ctx, acct.Address)
		require.NoError(t, err)
		cur.Data = []byte("v2")
		require.NoError(t, tx.Update(ctx, cur))
		got, err := tx.Get(ctx, acct.Address)
		require.NoError(t, err)
		require.Equal(t, []byte("v2"), got.Data, "tx must read its own writes")
		require.NoError(t, tx.Commit(ctx))

		got, err = store.GetAccount(ctx, acct.Address)
		require.NoError(t, err)
		require.Equal(t, []byte("v2"), got.Data)
		require.Equal(t, uint64(2), got.Version)
	})

	t.Run("replayed signature rejected", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		var sig solana.Signature
		copy(sig[:], []byte("replayed-signature-bytes"))

		tx, err := store.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.RecordSignature(ctx, sig, 1))
		require.NoError(t, tx.Commit(ctx))

		tx, err = store.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)
		require.ErrorIs(t, tx.RecordSignature(ctx, sig, 2), accountsdb.ErrSignatureAlreadyProcessed)
	})

	t.Run("concurrent creates at one address admit a single winner", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		addr := solana.NewWallet().PublicKey()

		const racers = 8
		var wg sync.WaitGroup
		results := make(chan error, racers)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				tx, err := store.Begin(ctx)
				if err != nil {
					results <- err
					return
				}
				if err := tx.Create(ctx, &accountsdb.Account{Address: addr, Owner: testOwner, Data: []byte("x")}); err != nil {
					_ = tx.Rollback(ctx)
					results <- err
					return
				}
				results <- tx.Commit(ctx)
			}()
		}
		wg.Wait()
		close(results)

		wins := 0
		for err := range results {
			if err == nil {
				wins++
			}
		}
		require.Equal(t, 1, wins)
	})

	t.Run("for each visits committed accounts", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			createCommitted(t, store, newAccount("acct"))
		}

		count := 0
		err := store.ForEach(ctx, func(a *accountsdb.Account) error {
			count++
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, count)
	})

	t.Run("latest slot tracks committed signatures", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		slot, err := store.LatestSlot(ctx)
		require.NoError(t, err)
		require.Zero(t, slot)

		for _, s := range []uint64{4, 9, 7} {
			tx, err := store.Begin(ctx)
			require.NoError(t, err)
			require.NoError(t, tx.RecordSignature(ctx, solana.Signature{byte(s)}, s))
			require.NoError(t, tx.Commit(ctx))
		}

		tx, err := store.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.RecordSignature(ctx, solana.Signature{99}, 99))
		require.NoError(t, tx.Rollback(ctx))

		slot, err = store.LatestSlot(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(9), slot)
	})
}
