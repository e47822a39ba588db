package token

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/biox/ledger/pkg/accountsdb"
	"github.com/malbeclabs/biox/ledger/pkg/runtime"
)

var DefaultProgramID = solana.MustPublicKeyFromBase58("BioxToken1111111111111111111111111111111111")

const (
	InstructionInitializeMint    uint8 = 0
	InstructionInitializeAccount uint8 = 1
	InstructionTransfer          uint8 = 3
	InstructionMintTo            uint8 = 7
)

var (
	ErrInsufficientFunds   = runtime.NewInstructionError(1, "InsufficientFunds", "insufficient funds")
	ErrInvalidMint         = runtime.NewInstructionError(2, "InvalidMint", "invalid mint")
	ErrMintMismatch        = runtime.NewInstructionError(3, "MintMismatch", "account not associated with this mint")
	ErrOwnerMismatch       = runtime.NewInstructionError(4, "OwnerMismatch", "owner does not match")
	ErrFixedSupply         = runtime.NewInstructionError(5, "FixedSupply", "fixed supply")
	ErrInvalidInstruction  = runtime.NewInstructionError(12, "InvalidInstruction", "invalid instruction")
	ErrOverflow            = runtime.NewInstructionError(14, "Overflow", "operation overflowed")
	ErrAccountFrozen       = runtime.NewInstructionError(17, "AccountFrozen", "account is frozen")
	ErrUninitializedState  = runtime.NewInstructionError(9, "UninitializedState", "state is uninitialized")
	ErrInvalidAccountOwner = runtime.NewInstructionError(100, "InvalidAssociatedAccount", "token account address is not derivable for this owner")
)

var (
	seedMint       = []byte("mint")
	seedAssociated = []byte("associated")
)

func MintSeeds(authority solana.PublicKey) [][]byte {
	return [][]byte{seedMint, authority.Bytes()}
}

func AssociatedSeeds(owner, mint solana.PublicKey) [][]byte {
	return [][]byte{seedAssociated, owner.Bytes(), mint.Bytes()}
}

// DeriveMintAddress returns the single mint an authority may create.
func DeriveMintAddress(programID, authority solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(MintSeeds(authority), programID)
}

// DeriveAssociatedAccount returns owner's canonical token account for mint.
func DeriveAssociatedAccount(programID, owner, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(AssociatedSeeds(owner, mint), programID)
}

// Program implements the token ledger as a runtime program.
type Program struct {
	id solana.PublicKey
}

func NewProgram(programID solana.PublicKey) *Program {
	return &Program{id: programID}
}

func (p *Program) ProgramID() solana.PublicKey { return p.id }

func (p *Program) InstructionName(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	switch data[0] {
	case InstructionInitializeMint:
		return "token_initialize_mint"
	case InstructionInitializeAccount:
		return "token_initialize_account"
	case InstructionTransfer:
		return "token_transfer"
	case InstructionMintTo:
		return "token_mint_to"
	}
	return ""
}

func (p *Program) Process(ic *runtime.InvokeContext) error {
	data := ic.Data()
	if len(data) == 0 {
		return ErrInvalidInstruction
	}
	args := data[1:]
	switch data[0] {
	case InstructionInitializeMint:
		if len(args) != 1+solana.PublicKeyLength {
			return ErrInvalidInstruction
		}
		return p.initializeMint(ic, args[0], solana.PublicKeyFromBytes(args[1:]))
	case InstructionInitializeAccount:
		if len(args) != 0 {
			return ErrInvalidInstruction
		}
		return p.initializeAccount(ic)
	case InstructionTransfer:
		if len(args) != 8 {
			return ErrInvalidInstruction
		}
		return p.transfer(ic, binary.LittleEndian.Uint64(args))
	case InstructionMintTo:
		if len(args) != 8 {
			return ErrInvalidInstruction
		}
		return p.mintTo(ic, binary.LittleEndian.Uint64(args))
	}
	return ErrInvalidInstruction
}

// initializeMint accounts: [mint w, authority s]
func (p *Program) initializeMint(ic *runtime.InvokeContext, decimals uint8, authority solana.PublicKey) error {
	if err := ic.RequireAccounts(2); err != nil {
		return err
	}
	if !ic.IsSigner(1) {
		return runtime.ErrAccountNotSigner.Withf("mint authority %s", ic.Key(1))
	}
	if !ic.Key(1).Equals(authority) {
		return ErrOwnerMismatch.Withf("signer is not the requested mint authority")
	}
	_, bump, err := DeriveMintAddress(p.id, authority)
	if err != nil {
		return err
	}
	mint := &Mint{MintAuthority: &authority, Decimals: decimals, IsInitialized: true}
	out, err := mint.Marshal()
	if err != nil {
		return err
	}
	if err := ic.CreateProgramAccount(0, append(MintSeeds(authority), []byte{bump}), out); err != nil {
		return err
	}
	ic.Logf("Instruction: InitializeMint")
	return nil
}

// initializeAccount accounts: [account w, mint, owner]. The account must either have
// signed (a caller-derived address passed with invoke seeds) or be the owner's
// associated account.
func (p *Program) initializeAccount(ic *runtime.InvokeContext) error {
	if err := ic.RequireAccounts(3); err != nil {
		return err
	}
	if _, err := p.loadMint(ic, 1); err != nil {
		return err
	}
	acct := &Account{Mint: ic.Key(1), Owner: ic.Key(2), State: AccountStateInitialized}
	out, err := acct.Marshal()
	if err != nil {
		return err
	}

	if ic.IsSigner(0) {
		err = ic.CreateAccount(0, out)
	} else {
		addr, bump, derr := DeriveAssociatedAccount(p.id, acct.Owner, acct.Mint)
		if derr != nil {
			return derr
		}
		if !addr.Equals(ic.Key(0)) {
			return ErrInvalidAccountOwner.Withf("%s", ic.Key(0))
		}
		err = ic.CreateProgramAccount(0, append(AssociatedSeeds(acct.Owner, acct.Mint), []byte{bump}), out)
	}
	if err != nil {
		return err
	}
	ic.Logf("Instruction: InitializeAccount")
	return nil
}

// transfer accounts: [source w, destination w, authority s]
func (p *Program) transfer(ic *runtime.InvokeContext, amount uint64) error {
	if err := ic.RequireAccounts(3); err != nil {
		return err
	}
	if !ic.IsSigner(2) {
		return runtime.ErrAccountNotSigner.Withf("transfer authority %s", ic.Key(2))
	}
	src, err := p.loadAccount(ic, 0)
	if err != nil {
		return err
	}
	dst, err := p.loadAccount(ic, 1)
	if err != nil {
		return err
	}
	if !src.Owner.Equals(ic.Key(2)) {
		return ErrOwnerMismatch
	}
	if !src.Mint.Equals(dst.Mint) {
		return ErrMintMismatch
	}
	if src.State == AccountStateFrozen || dst.State == AccountStateFrozen {
		return ErrAccountFrozen
	}
	if src.Amount < amount {
		return ErrInsufficientFunds.Withf("balance %d, need %d", src.Amount, amount)
	}
	ic.Logf("Instruction: Transfer")
	if ic.Key(0).Equals(ic.Key(1)) {
		return nil
	}
	sum, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	src.Amount -= amount
	dst.Amount = sum
	if err := p.store(ic, 0, src); err != nil {
		return err
	}
	return p.store(ic, 1, dst)
}

// mintTo accounts: [mint w, destination w, authority s]
func (p *Program) mintTo(ic *runtime.InvokeContext, amount uint64) error {
	if err := ic.RequireAccounts(3); err != nil {
		return err
	}
	if !ic.IsSigner(2) {
		return runtime.ErrAccountNotSigner.Withf("mint authority %s", ic.Key(2))
	}
	mint, err := p.loadMint(ic, 0)
	if err != nil {
		return err
	}
	if mint.MintAuthority == nil {
		return ErrFixedSupply
	}
	if !mint.MintAuthority.Equals(ic.Key(2)) {
		return ErrOwnerMismatch
	}
	dst, err := p.loadAccount(ic, 1)
	if err != nil {
		return err
	}
	if !dst.Mint.Equals(ic.Key(0)) {
		return ErrMintMismatch
	}
	supply, carry := bits.Add64(mint.Supply, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	balance, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	mint.Supply = supply
	dst.Amount = balance

	out, err := mint.Marshal()
	if err != nil {
		return err
	}
	if err := ic.Update(0, out); err != nil {
		return err
	}
	ic.Logf("Instruction: MintTo")
	return p.store(ic, 1, dst)
}

func (p *Program) loadMint(ic *runtime.InvokeContext, i int) (*Mint, error) {
	raw, err := ic.GetOwned(i)
	if err != nil {
		return nil, err
	}
	var mint Mint
	if err := mint.Unmarshal(raw.Data); err != nil || !mint.IsInitialized {
		return nil, ErrInvalidMint.Withf("%s", ic.Key(i))
	}
	return &mint, nil
}

func (p *Program) loadAccount(ic *runtime.InvokeContext, i int) (*Account, error) {
	raw, err := ic.GetOwned(i)
	if err != nil {
		return nil, err
	}
	var acct Account
	if err := acct.Unmarshal(raw.Data); err != nil {
		return nil, ErrUninitializedState.Withf("%s", ic.Key(i))
	}
	if acct.State == AccountStateUninitialized {
		return nil, ErrUninitializedState.Withf("%s", ic.Key(i))
	}
	return &acct, nil
}

func (p *Program) store(ic *runtime.InvokeContext, i int, acct *Account) error {
	out, err := acct.Marshal()
	if err != nil {
		return err
	}
	return ic.Update(i, out)
}

// Load decodes a token account owned by programID. Callers outside the token program
// use it to read balances.
func Load(programID solana.PublicKey, acct *accountsdb.Account) (*Account, error) {
	if !acct.Owner.Equals(programID) {
		return nil, fmt.Errorf("%w: %s is owned by %s", errNotTokenAccount, acct.Address, acct.Owner)
	}
	var out Account
	if err := out.Unmarshal(acct.Data); err != nil {
		return nil, err
	}
	return &out, nil
}

var errNotTokenAccount = errors.New("not a token account")

// LoadMint decodes a mint owned by programID.
func LoadMint(programID solana.PublicKey, acct *accountsdb.Account) (*Mint, error) {
	if !acct.Owner.Equals(programID) {
		return nil, fmt.Errorf("%w: %s is owned by %s", errNotTokenAccount, acct.Address, acct.Owner)
	}
	var out Mint
	if err := out.Unmarshal(acct.Data); err != nil {
		return nil, err
	}
	return &out, nil
}
