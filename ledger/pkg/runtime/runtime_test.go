package runtime_test

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/biox/ledger/pkg/accountsdb"
	"github.com/malbeclabs/biox/ledger/pkg/runtime"
	bioxtesting "github.com/malbeclabs/biox/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

const (
	opInit byte = iota
	opIncrement
	opIncrementThenFail
	opTouch
	_
	opUpdateReadonly
)

var (
	counterProgramID = solana.MustPublicKeyFromBase58("Counter111111111111111111111111111111111111")
	relayProgramID   = solana.MustPublicKeyFromBase58("Re1ay11111111111111111111111111111111111111")
	errCustom        = runtime.NewInstructionError(6000, "Custom", "custom failure")
)

type incremented struct {
	Value uint64
}

func (*incremented) EventName() string { return "Incremented" }

func counterSeeds(owner solana.PublicKey) [][]byte {
	return [][]byte{[]byte("counter"), owner.Bytes()}
}

// counterProgram keeps a little-endian u64 in a derived account.
type counterProgram struct{}

func (counterProgram) ProgramID() solana.PublicKey { return counterProgramID }

func (counterProgram) InstructionName(data []byte) string {
	names := []string{"init", "increment", "increment_then_fail", "touch", "", "update_readonly"}
	if len(data) == 0 || int(data[0]) >= len(names) {
		return ""
	}
	return names[data[0]]
}

func (counterProgram) Process(ic *runtime.InvokeContext) error {
	data := ic.Data()
	if len(data) == 0 {
		return runtime.ErrInstructionFallbackNotFound
	}
	switch data[0] {
	case opInit:
		if err := ic.RequireAccounts(2); err != nil {
			return err
		}
		_, bump, err := solana.FindProgramAddress(counterSeeds(ic.Key(0)), ic.ProgramID())
		if err != nil {
			return err
		}
		seeds := append(counterSeeds(ic.Key(0)), []byte{bump})
		return ic.CreateProgramAccount(1, seeds, make([]byte, 8))
	case opIncrement, opIncrementThenFail, opUpdateReadonly:
		acct, err := ic.GetOwned(0)
		if err != nil {
			return err
		}
		n := binary.LittleEndian.Uint64(acct.Data) + 1
		out := make([]byte, 8)
		binary.LittleEndian.PutUint64(out, n)
		if err := ic.Update(0, out); err != nil {
			return err
		}
		ic.Logf("counter=%d", n)
		ic.Emit(&incremented{Value: n})
		if data[0] == opIncrementThenFail {
			return errCustom
		}
		return nil
	case opTouch:
		_, err := ic.Get(int(data[1]))
		return err
	}
	return runtime.ErrInstructionFallbackNotFound
}

// relayProgram forwards an increment to the counter program.
type relayProgram struct {
	escalate bool
}

func (relayProgram) ProgramID() solana.PublicKey { return relayProgramID }

func (p relayProgram) Process(ic *runtime.InvokeContext) error {
	meta := runtime.NewAccountMeta(ic.Key(0), true, false)
	if p.escalate {
		meta.IsSigner = true
	}
	return ic.Invoke(runtime.Instruction{
		ProgramID: counterProgramID,
		Accounts:  []runtime.AccountMeta{meta},
		Data:      []byte{opIncrement},
	})
}

type harness struct {
	exec   *runtime.Executor
	store  *accountsdb.MemoryStore
	clock  *clockwork.FakeClock
	mu     sync.Mutex
	events []runtime.Event
}

func newHarness(t *testing.T, programs ...runtime.Program) *harness {
	t.Helper()
	h := &harness{
		store: accountsdb.NewMemoryStore(),
		clock: clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0)),
	}
	if len(programs) == 0 {
		programs = []runtime.Program{counterProgram{}}
	}
	exec, err := runtime.NewExecutor(runtime.ExecutorConfig{
		Logger:   bioxtesting.NewLogger(),
		Store:    h.store,
		Clock:    h.clock,
		Programs: programs,
		Sinks: []runtime.EventSink{runtime.SinkFunc{
			SinkName: "capture",
			Fn: func(ctx context.Context, batch *runtime.EventBatch) error {
				h.mu.Lock()
				defer h.mu.Unlock()
				h.events = append(h.events, batch.Events...)
				return nil
			},
		}},
	})
	require.NoError(t, err)
	h.exec = exec
	return h
}

func (h *harness) captured() []runtime.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]runtime.Event(nil), h.events...)
}

func (h *harness) send(t *testing.T, key solana.PrivateKey, programID solana.PublicKey, data []byte, metas ...runtime.AccountMeta) (*runtime.Receipt, error) {
	t.Helper()
	tx, err := runtime.NewTransaction(key, runtime.Instruction{ProgramID: programID, Accounts: metas, Data: data})
	require.NoError(t, err)
	return h.exec.Execute(context.Background(), tx)
}

func (h *harness) initCounter(t *testing.T, key solana.PrivateKey) solana.PublicKey {
	t.Helper()
	addr, _, err := solana.FindProgramAddress(counterSeeds(key.PublicKey()), counterProgramID)
	require.NoError(t, err)
	_, err = h.send(t, key, counterProgramID, []byte{opInit},
		runtime.NewAccountMeta(key.PublicKey(), true, true),
		runtime.NewAccountMeta(addr, true, false),
	)
	require.NoError(t, err)
	return addr
}

func (h *harness) counter(t *testing.T, addr solana.PublicKey) uint64 {
	t.Helper()
	acct, err := h.store.GetAccount(context.Background(), addr)
	require.NoError(t, err)
	return binary.LittleEndian.Uint64(acct.Data)
}

func TestBiox_Runtime_TransactionEncoding(t *testing.T) {
	t.Parallel()

	key := solana.NewWallet().PrivateKey
	tx, err := runtime.NewTransaction(key, runtime.Instruction{
		ProgramID: counterProgramID,
		Accounts:  []runtime.AccountMeta{runtime.NewAccountMeta(key.PublicKey(), true, true)},
		Data:      []byte{1, 2, 3},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Verify())

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	decoded, err := runtime.UnmarshalTransaction(raw)
	require.NoError(t, err)
	require.Equal(t, tx, decoded)
	require.NoError(t, decoded.Verify())

	decoded.Message.Instruction.Data[0] = 9
	require.ErrorIs(t, decoded.Verify(), runtime.ErrInvalidSignature)

	_, err = runtime.UnmarshalTransaction(append(raw, 0))
	require.ErrorIs(t, err, runtime.ErrMalformedTransaction)
	_, err = runtime.UnmarshalTransaction(raw[:40])
	require.ErrorIs(t, err, runtime.ErrMalformedTransaction)
}

func TestBiox_Runtime_CommitsAndEmits(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	key := solana.NewWallet().PrivateKey
	addr := h.initCounter(t, key)

	receipt, err := h.send(t, key, counterProgramID, []byte{opIncrement}, runtime.NewAccountMeta(addr, true, false))
	require.NoError(t, err)
	require.Nil(t, receipt.Err)
	require.Equal(t, "increment", receipt.Instruction)
	require.Equal(t, uint64(2), receipt.Slot)
	require.Equal(t, int64(1_700_000_000), receipt.UnixTimestamp)
	require.Contains(t, receipt.Logs, "Program log: counter=1")
	require.Len(t, receipt.Events, 1)
	require.Equal(t, uint64(1), h.counter(t, addr))
	require.Equal(t, []runtime.Event{&incremented{Value: 1}}, h.captured())
}

func TestBiox_Runtime_FailedInstructionRollsBack(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	key := solana.NewWallet().PrivateKey
	addr := h.initCounter(t, key)

	receipt, err := h.send(t, key, counterProgramID, []byte{opIncrementThenFail}, runtime.NewAccountMeta(addr, true, false))
	require.ErrorIs(t, err, errCustom)
	require.NotNil(t, receipt)
	require.Equal(t, uint32(6000), receipt.Err.Code)
	require.Empty(t, receipt.Events)
	require.NotEmpty(t, receipt.Logs)
	require.Equal(t, uint64(0), h.counter(t, addr))
	require.Empty(t, h.captured())
}

func TestBiox_Runtime_RejectsBadSignatureAndReplay(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	key := solana.NewWallet().PrivateKey
	addr := h.initCounter(t, key)

	tx, err := runtime.NewTransaction(key, runtime.Instruction{
		ProgramID: counterProgramID,
		Accounts:  []runtime.AccountMeta{runtime.NewAccountMeta(addr, true, false)},
		Data:      []byte{opIncrement},
	})
	require.NoError(t, err)

	forged := *tx
	forged.Signature[0] ^= 0xff
	_, err = h.exec.Execute(context.Background(), &forged)
	require.ErrorIs(t, err, runtime.ErrInvalidSignature)

	_, err = h.exec.Execute(context.Background(), tx)
	require.NoError(t, err)
	_, err = h.exec.Execute(context.Background(), tx)
	require.ErrorIs(t, err, runtime.ErrSignatureAlreadyProcessed)
	require.Equal(t, uint64(1), h.counter(t, addr))
}

func TestBiox_Runtime_SignerMustMatchTransaction(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	key := solana.NewWallet().PrivateKey
	other := solana.NewWallet().PublicKey()
	_, err := h.send(t, key, counterProgramID, []byte{opInit},
		runtime.NewAccountMeta(other, true, true),
		runtime.NewAccountMeta(solana.NewWallet().PublicKey(), true, false),
	)
	require.ErrorIs(t, err, runtime.ErrMissingRequiredSignature)
}

func TestBiox_Runtime_AccountAccessIsDeclared(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	key := solana.NewWallet().PrivateKey
	addr := h.initCounter(t, key)

	_, err := h.send(t, key, counterProgramID, []byte{opTouch, 3}, runtime.NewAccountMeta(addr, false, false))
	require.ErrorIs(t, err, runtime.ErrNotEnoughAccountKeys)

	_, err = h.send(t, key, counterProgramID, []byte{opUpdateReadonly}, runtime.NewAccountMeta(addr, false, false))
	require.ErrorIs(t, err, runtime.ErrAccountNotMutable)
	require.Equal(t, uint64(0), h.counter(t, addr))

	_, err = h.send(t, key, counterProgramID, []byte{99}, runtime.NewAccountMeta(addr, true, false))
	require.ErrorIs(t, err, runtime.ErrInstructionFallbackNotFound)

	_, err = h.send(t, key, solana.NewWallet().PublicKey(), []byte{opIncrement}, runtime.NewAccountMeta(addr, true, false))
	require.ErrorIs(t, err, runtime.ErrProgramNotFound)
}

func TestBiox_Runtime_DuplicateCreateIsAlreadyInUse(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	key := solana.NewWallet().PrivateKey
	addr := h.initCounter(t, key)

	_, err := h.send(t, key, counterProgramID, []byte{opInit},
		runtime.NewAccountMeta(key.PublicKey(), true, true),
		runtime.NewAccountMeta(addr, true, false),
	)
	require.ErrorIs(t, err, runtime.ErrAccountAlreadyInUse)
}

func TestBiox_Runtime_SeedsMustMatchAddress(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	key := solana.NewWallet().PrivateKey
	_, err := h.send(t, key, counterProgramID, []byte{opInit},
		runtime.NewAccountMeta(key.PublicKey(), true, true),
		runtime.NewAccountMeta(solana.NewWallet().PublicKey(), true, false),
	)
	require.ErrorIs(t, err, runtime.ErrConstraintSeeds)
}

func TestBiox_Runtime_CrossProgramInvocation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, counterProgram{}, relayProgram{})
	key := solana.NewWallet().PrivateKey
	addr := h.initCounter(t, key)

	receipt, err := h.send(t, key, relayProgramID, nil, runtime.NewAccountMeta(addr, true, false))
	require.NoError(t, err)
	require.Equal(t, uint64(1), h.counter(t, addr))
	require.Contains(t, receipt.Logs, "Program "+counterProgramID.String()+" invoke [2]")

	_, err = h.send(t, key, relayProgramID, nil, runtime.NewAccountMeta(addr, false, false))
	require.ErrorIs(t, err, runtime.ErrPrivilegeEscalation)

	h2 := newHarness(t, counterProgram{}, relayProgram{escalate: true})
	addr2 := h2.initCounter(t, key)
	_, err = h2.send(t, key, relayProgramID, nil, runtime.NewAccountMeta(addr2, true, false))
	require.ErrorIs(t, err, runtime.ErrPrivilegeEscalation)
}

func TestBiox_Runtime_ConcurrentWritersSerialize(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	key := solana.NewWallet().PrivateKey
	addr := h.initCounter(t, key)

	const writers = 32
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := runtime.NewTransaction(key, runtime.Instruction{
				ProgramID: counterProgramID,
				Accounts:  []runtime.AccountMeta{runtime.NewAccountMeta(addr, true, false)},
				Data:      []byte{opIncrement},
			})
			if err != nil {
				errs <- err
				return
			}
			_, err = h.exec.Execute(context.Background(), tx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, uint64(writers), h.counter(t, addr))
	require.Len(t, h.captured(), writers)
}

func TestBiox_Runtime_LockWaitHonorsContext(t *testing.T) {
	t.Parallel()

	bp := &blockingProgram{entered: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(t, bp)
	key := solana.NewWallet().PrivateKey
	shared := solana.NewWallet().PublicKey()

	done := make(chan error, 1)
	go func() {
		tx, err := runtime.NewTransaction(key, runtime.Instruction{
			ProgramID: blockingProgramID,
			Accounts:  []runtime.AccountMeta{runtime.NewAccountMeta(shared, true, false)},
		})
		if err != nil {
			done <- err
			return
		}
		_, err = h.exec.Execute(context.Background(), tx)
		done <- err
	}()
	<-bp.entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	tx, err := runtime.NewTransaction(key, runtime.Instruction{
		ProgramID: blockingProgramID,
		Accounts:  []runtime.AccountMeta{runtime.NewAccountMeta(shared, false, false)},
	})
	require.NoError(t, err)
	_, err = h.exec.Execute(ctx, tx)
	require.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)

	close(bp.release)
	require.NoError(t, <-done)
}

var blockingProgramID = solana.MustPublicKeyFromBase58("B1ock11111111111111111111111111111111111111")

// blockingProgram parks inside Process until released, holding its account locks.
type blockingProgram struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (*blockingProgram) ProgramID() solana.PublicKey { return blockingProgramID }

func (p *blockingProgram) Process(ic *runtime.InvokeContext) error {
	p.once.Do(func() { close(p.entered) })
	<-p.release
	return nil
}

func TestBiox_Runtime_SinksRunWithoutAccountLocks(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	gate := make(chan struct{})
	var calls sync.Mutex
	first := true
	store := accountsdb.NewMemoryStore()
	exec, err := runtime.NewExecutor(runtime.ExecutorConfig{
		Logger:   bioxtesting.NewLogger(),
		Store:    store,
		Clock:    clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0)),
		Programs: []runtime.Program{counterProgram{}},
		Sinks: []runtime.EventSink{runtime.SinkFunc{
			SinkName: "slow",
			Fn: func(ctx context.Context, batch *runtime.EventBatch) error {
				calls.Lock()
				block := first
				first = false
				calls.Unlock()
				if block {
					close(entered)
					<-gate
				}
				return nil
			},
		}},
	})
	require.NoError(t, err)
	h := &harness{store: store, exec: exec}
	key := solana.NewWallet().PrivateKey
	addr := h.initCounter(t, key)

	increment := func(ctx context.Context) error {
		tx, err := runtime.NewTransaction(key, runtime.Instruction{
			ProgramID: counterProgramID,
			Accounts:  []runtime.AccountMeta{runtime.NewAccountMeta(addr, true, false)},
			Data:      []byte{opIncrement},
		})
		if err != nil {
			return err
		}
		_, err = exec.Execute(ctx, tx)
		return err
	}

	done := make(chan error, 1)
	go func() { done <- increment(context.Background()) }()
	<-entered

	// The first transaction is still inside its sink; the same account must be writable.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, increment(ctx))
	require.Equal(t, uint64(2), h.counter(t, addr))

	close(gate)
	require.NoError(t, <-done)
}
