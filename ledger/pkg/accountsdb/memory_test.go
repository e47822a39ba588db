package accountsdb_test

import (
	"context"
	"testing"

	"github.com/malbeclabs/biox/ledger/pkg/accountsdb"
	"github.com/stretchr/testify/require"
)

func TestBiox_AccountsDB_Memory(t *testing.T) {
	t.Parallel()
	runStoreSuite(t, func(t *testing.T) accountsdb.Store {
		return accountsdb.NewMemoryStore()
	})
}

func TestBiox_AccountsDB_Memory_StaleReadConflicts(t *testing.T) {
	t.Parallel()

	store := accountsdb.NewMemoryStore()
	ctx := context.Background()
	acct := newAccount("v1")
	createCommitted(t, store, acct)

	slow, err := store.Begin(ctx)
	require.NoError(t, err)
	stale, err := slow.Get(ctx, acct.Address)
	require.NoError(t, err)

	fast, err := store.Begin(ctx)
	require.NoError(t, err)
	cur, err := fast.Get(ctx, acct.Address)
	require.NoError(t, err)
	cur.Data = []byte("fast")
	require.NoError(t, fast.Update(ctx, cur))
	require.NoError(t, fast.Commit(ctx))

	stale.Data = []byte("slow")
	require.NoError(t, slow.Update(ctx, stale))
	require.ErrorIs(t, slow.Commit(ctx), accountsdb.ErrConflict)

	got, err := store.GetAccount(ctx, acct.Address)
	require.NoError(t, err)
	require.Equal(t, []byte("fast"), got.Data)
}

func TestBiox_AccountsDB_Memory_TxDone(t *testing.T) {
	t.Parallel()

	store := accountsdb.NewMemoryStore()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	require.ErrorIs(t, tx.Commit(ctx), accountsdb.ErrTxDone)
	_, err = tx.Get(ctx, newAccount("x").Address)
	require.ErrorIs(t, err, accountsdb.ErrTxDone)
	require.NoError(t, tx.Rollback(ctx))
}
