package token

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/biox/ledger/pkg/runtime"
)

func NewInitializeMintInstruction(programID, mint, authority solana.PublicKey, decimals uint8) runtime.Instruction {
	data := make([]byte, 0, 2+solana.PublicKeyLength)
	data = append(data, InstructionInitializeMint, decimals)
	data = append(data, authority.Bytes()...)
	return runtime.Instruction{
		ProgramID: programID,
		Accounts: []runtime.AccountMeta{
			runtime.NewAccountMeta(mint, true, false),
			runtime.NewAccountMeta(authority, false, true),
		},
		Data: data,
	}
}

// NewInitializeAccountInstruction creates a token account for owner. Pass signer=true when
// the account address signs through invoke seeds instead of being the associated account.
func NewInitializeAccountInstruction(programID, account, mint, owner solana.PublicKey, signer bool) runtime.Instruction {
	return runtime.Instruction{
		ProgramID: programID,
		Accounts: []runtime.AccountMeta{
			runtime.NewAccountMeta(account, true, signer),
			runtime.NewAccountMeta(mint, false, false),
			runtime.NewAccountMeta(owner, false, false),
		},
		Data: []byte{InstructionInitializeAccount},
	}
}

func NewTransferInstruction(programID, source, destination, authority solana.PublicKey, amount uint64) runtime.Instruction {
	return runtime.Instruction{
		ProgramID: programID,
		Accounts: []runtime.AccountMeta{
			runtime.NewAccountMeta(source, true, false),
			runtime.NewAccountMeta(destination, true, false),
			runtime.NewAccountMeta(authority, false, true),
		},
		Data: amountData(InstructionTransfer, amount),
	}
}

func NewMintToInstruction(programID, mint, destination, authority solana.PublicKey, amount uint64) runtime.Instruction {
	return runtime.Instruction{
		ProgramID: programID,
		Accounts: []runtime.AccountMeta{
			runtime.NewAccountMeta(mint, true, false),
			runtime.NewAccountMeta(destination, true, false),
			runtime.NewAccountMeta(authority, false, true),
		},
		Data: amountData(InstructionMintTo, amount),
	}
}

func amountData(op uint8, amount uint64) []byte {
	data := make([]byte, 9)
	data[0] = op
	binary.LittleEndian.PutUint64(data[1:], amount)
	return data
}
