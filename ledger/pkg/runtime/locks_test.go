package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestBiox_Runtime_AccountLocks(t *testing.T) {
	t.Parallel()

	locks := newAccountLocks()
	a := solana.NewWallet().PublicKey()
	b := solana.NewWallet().PublicKey()
	ctx := context.Background()

	readA1, err := locks.acquire(ctx, []AccountMeta{{PublicKey: a}})
	require.NoError(t, err)
	readA2, err := locks.acquire(ctx, []AccountMeta{{PublicKey: a}})
	require.NoError(t, err, "read-only locks are shared")

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locks.acquire(short, []AccountMeta{{PublicKey: b, IsWritable: true}, {PublicKey: a, IsWritable: true}})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The failed request must not have kept b.
	writeB, err := locks.acquire(ctx, []AccountMeta{{PublicKey: b, IsWritable: true}})
	require.NoError(t, err)
	writeB()

	acquired := make(chan func())
	go func() {
		release, err := locks.acquire(ctx, []AccountMeta{{PublicKey: a}, {PublicKey: a, IsWritable: true}})
		if err == nil {
			acquired <- release
		}
	}()

	readA1()
	select {
	case <-acquired:
		t.Fatal("writer acquired while a reader still holds the account")
	case <-time.After(20 * time.Millisecond):
	}
	readA2()
	readA2() // release is idempotent

	select {
	case release := <-acquired:
		release()
	case <-time.After(time.Second):
		t.Fatal("writer never acquired the lock")
	}
}
