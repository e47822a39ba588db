package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/biox/ledger/pkg/accountsdb"
)

const MaxInvokeDepth = 4

type invokeOutput struct {
	logs   []string
	events []Event
}

// InvokeContext is a program's only view of the ledger. It exposes the accounts the
// instruction names, by index, and refuses writes the instruction did not declare.
type InvokeContext struct {
	ctx       context.Context
	exec      *Executor
	tx        accountsdb.Tx
	programID solana.PublicKey
	accounts  []AccountMeta
	data      []byte
	clock     Clock
	depth     int
	out       *invokeOutput
}

func (ic *InvokeContext) Context() context.Context     { return ic.ctx }
func (ic *InvokeContext) ProgramID() solana.PublicKey { return ic.programID }
func (ic *InvokeContext) Data() []byte                { return ic.data }
func (ic *InvokeContext) Clock() Clock                { return ic.clock }
func (ic *InvokeContext) NumAccounts() int            { return len(ic.accounts) }

// RequireAccounts fails unless at least n accounts were supplied.
func (ic *InvokeContext) RequireAccounts(n int) error {
	if len(ic.accounts) < n {
		return ErrNotEnoughAccountKeys.Withf("want %d, got %d", n, len(ic.accounts))
	}
	return nil
}

// Key returns the address at index i, or the zero key when i is out of range.
func (ic *InvokeContext) Key(i int) solana.PublicKey {
	if i < 0 || i >= len(ic.accounts) {
		return solana.PublicKey{}
	}
	return ic.accounts[i].PublicKey
}

func (ic *InvokeContext) IsSigner(i int) bool {
	return i >= 0 && i < len(ic.accounts) && ic.accounts[i].IsSigner
}

func (ic *InvokeContext) IsWritable(i int) bool {
	return i >= 0 && i < len(ic.accounts) && ic.accounts[i].IsWritable
}

func (ic *InvokeContext) meta(i int) (AccountMeta, error) {
	if i < 0 || i >= len(ic.accounts) {
		return AccountMeta{}, ErrNotEnoughAccountKeys.Withf("no account at index %d", i)
	}
	return ic.accounts[i], nil
}

func (ic *InvokeContext) writableMeta(i int) (AccountMeta, error) {
	meta, err := ic.meta(i)
	if err != nil {
		return meta, err
	}
	if !meta.IsWritable {
		return meta, ErrAccountNotMutable.Withf("%s", meta.PublicKey)
	}
	return meta, nil
}

// Get reads the account at index i. A missing account yields accountsdb.ErrAccountNotFound.
func (ic *InvokeContext) Get(i int) (*accountsdb.Account, error) {
	meta, err := ic.meta(i)
	if err != nil {
		return nil, err
	}
	return ic.tx.Get(ic.ctx, meta.PublicKey)
}

// GetOwned reads an account that must exist and belong to the running program.
func (ic *InvokeContext) GetOwned(i int) (*accountsdb.Account, error) {
	acct, err := ic.Get(i)
	if errors.Is(err, accountsdb.ErrAccountNotFound) {
		return nil, ErrAccountNotInitialized.Withf("%s", ic.Key(i))
	}
	if err != nil {
		return nil, err
	}
	if !acct.Owner.Equals(ic.programID) {
		return nil, ErrAccountOwnedByWrongProgram.Withf("%s is owned by %s", acct.Address, acct.Owner)
	}
	return acct, nil
}

// Update replaces the data of an existing account owned by the running program.
func (ic *InvokeContext) Update(i int, data []byte) error {
	meta, err := ic.writableMeta(i)
	if err != nil {
		return err
	}
	acct, err := ic.GetOwned(i)
	if err != nil {
		return err
	}
	acct.Data = data
	if err := ic.tx.Update(ic.ctx, acct); err != nil {
		return fmt.Errorf("failed to update account %s: %w", meta.PublicKey, err)
	}
	return nil
}

// CreateAccount allocates a new account owned by the running program. The address must
// have signed, either as the transaction signer or through invoke seeds.
func (ic *InvokeContext) CreateAccount(i int, data []byte) error {
	meta, err := ic.writableMeta(i)
	if err != nil {
		return err
	}
	if !meta.IsSigner {
		return ErrAccountNotSigner.Withf("%s", meta.PublicKey)
	}
	return ic.create(meta.PublicKey, data)
}

// CreateProgramAccount allocates a new account at an address derived from the running
// program. seeds must include the bump.
func (ic *InvokeContext) CreateProgramAccount(i int, seeds [][]byte, data []byte) error {
	meta, err := ic.writableMeta(i)
	if err != nil {
		return err
	}
	derived, err := solana.CreateProgramAddress(seeds, ic.programID)
	if err != nil || !derived.Equals(meta.PublicKey) {
		return ErrConstraintSeeds.Withf("%s", meta.PublicKey)
	}
	return ic.create(meta.PublicKey, data)
}

func (ic *InvokeContext) create(addr solana.PublicKey, data []byte) error {
	err := ic.tx.Create(ic.ctx, &accountsdb.Account{
		Address: addr,
		Owner:   ic.programID,
		Data:    data,
	})
	if errors.Is(err, accountsdb.ErrAccountAlreadyInUse) {
		return ErrAccountAlreadyInUse.Withf("%s", addr)
	}
	return err
}

// Log appends a raw line to the transaction log.
func (ic *InvokeContext) Log(line string) {
	ic.out.logs = append(ic.out.logs, line)
}

func (ic *InvokeContext) Logf(format string, args ...any) {
	ic.Log("Program log: " + fmt.Sprintf(format, args...))
}

// Emit records an event. Events reach sinks only if the transaction commits.
func (ic *InvokeContext) Emit(ev Event) {
	ic.out.events = append(ic.out.events, ev)
}

// Invoke runs another program against a subset of this instruction's accounts. An
// account may be passed as a signer if it signed this instruction or if it is derived
// from the running program with one of signerSeeds (each including its bump).
func (ic *InvokeContext) Invoke(ix Instruction, signerSeeds ...[][]byte) error {
	if ic.depth+1 > MaxInvokeDepth {
		return ErrCallDepthExceeded
	}
	prog, ok := ic.exec.programs[ix.ProgramID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, ix.ProgramID)
	}

	pdaSigners := make(map[solana.PublicKey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		addr, err := solana.CreateProgramAddress(seeds, ic.programID)
		if err != nil {
			return ErrConstraintSeeds.Withf("invalid signer seeds: %v", err)
		}
		pdaSigners[addr] = true
	}

	for _, m := range ix.Accounts {
		parent, declared := ic.declared(m.PublicKey)
		if !declared {
			return ErrAccountNotDeclared.Withf("%s", m.PublicKey)
		}
		if m.IsWritable && !parent.IsWritable {
			return ErrPrivilegeEscalation.Withf("%s is not writable", m.PublicKey)
		}
		if m.IsSigner && !parent.IsSigner && !pdaSigners[m.PublicKey] {
			return ErrPrivilegeEscalation.Withf("%s did not sign", m.PublicKey)
		}
	}

	child := &InvokeContext{
		ctx:       ic.ctx,
		exec:      ic.exec,
		tx:        ic.tx,
		programID: ix.ProgramID,
		accounts:  ix.Accounts,
		data:      ix.Data,
		clock:     ic.clock,
		depth:     ic.depth + 1,
		out:       ic.out,
	}
	return child.run(prog)
}

// declared merges every occurrence of key in the instruction's account list.
func (ic *InvokeContext) declared(key solana.PublicKey) (AccountMeta, bool) {
	merged := AccountMeta{PublicKey: key}
	found := false
	for _, m := range ic.accounts {
		if m.PublicKey.Equals(key) {
			found = true
			merged.IsSigner = merged.IsSigner || m.IsSigner
			merged.IsWritable = merged.IsWritable || m.IsWritable
		}
	}
	return merged, found
}

func (ic *InvokeContext) run(prog Program) error {
	ic.Log(fmt.Sprintf("Program %s invoke [%d]", ic.programID, ic.depth))
	if err := prog.Process(ic); err != nil {
		ic.Log(fmt.Sprintf("Program %s failed: %v", ic.programID, err))
		return err
	}
	ic.Log(fmt.Sprintf("Program %s success", ic.programID))
	return nil
}
