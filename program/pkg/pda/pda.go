// Package pda derives the program-owned account addresses used by the research
// ledger. Every address is recomputed from its seeds on each instruction; callers
// never get to choose where a program record lives.
package pda

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	seedProgramState  = []byte("program-state")
	seedPaper         = []byte("paper")
	seedPaperToken    = []byte("paper-token")
	seedPlatformVault = []byte("platform-vault")
	seedFunding       = []byte("funding")
	seedVote          = []byte("vote")
)

// ErrAddressMismatch is returned by Verify when a supplied address does not match
// the address derived from its seeds.
var ErrAddressMismatch = errors.New("address does not match derived address")

func u64LE(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func ProgramStateSeeds() [][]byte {
	return [][]byte{seedProgramState}
}

func PaperSeeds(paperID uint64) [][]byte {
	return [][]byte{seedPaper, u64LE(paperID)}
}

func PaperTokenSeeds(paperID uint64) [][]byte {
	return [][]byte{seedPaperToken, u64LE(paperID)}
}

func PlatformVaultSeeds() [][]byte {
	return [][]byte{seedPlatformVault}
}

// FundingSeeds salts the receipt with the paper's contribution sequence so a funder
// can contribute to the same paper more than once without colliding.
func FundingSeeds(paperID uint64, funder solana.PublicKey, seq uint64) [][]byte {
	return [][]byte{seedFunding, u64LE(paperID), funder.Bytes(), u64LE(seq)}
}

func VoteSeeds(paperID uint64, voter solana.PublicKey) [][]byte {
	return [][]byte{seedVote, u64LE(paperID), voter.Bytes()}
}

func DeriveProgramStatePDA(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(ProgramStateSeeds(), programID)
}

func DerivePaperPDA(programID solana.PublicKey, paperID uint64) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(PaperSeeds(paperID), programID)
}

func DerivePaperTokenPDA(programID solana.PublicKey, paperID uint64) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(PaperTokenSeeds(paperID), programID)
}

func DerivePlatformVaultPDA(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(PlatformVaultSeeds(), programID)
}

func DeriveFundingPDA(programID solana.PublicKey, paperID uint64, funder solana.PublicKey, seq uint64) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(FundingSeeds(paperID, funder, seq), programID)
}

func DeriveVotePDA(programID solana.PublicKey, paperID uint64, voter solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(VoteSeeds(paperID, voter), programID)
}

// Verify recomputes the canonical address for seeds and checks it against the
// supplied address. It returns the bump so callers can store it alongside the record.
func Verify(programID solana.PublicKey, supplied solana.PublicKey, seeds [][]byte) (uint8, error) {
	derived, bump, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return 0, fmt.Errorf("failed to derive address: %w", err)
	}
	if !derived.Equals(supplied) {
		return 0, fmt.Errorf("%w: got %s, want %s", ErrAddressMismatch, supplied, derived)
	}
	return bump, nil
}

// VerifyWithBump checks a supplied address against seeds plus a previously stored bump.
// It is cheaper than Verify because it skips the bump search.
func VerifyWithBump(programID solana.PublicKey, supplied solana.PublicKey, seeds [][]byte, bump uint8) error {
	withBump := make([][]byte, 0, len(seeds)+1)
	withBump = append(withBump, seeds...)
	withBump = append(withBump, []byte{bump})
	derived, err := solana.CreateProgramAddress(withBump, programID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAddressMismatch, err)
	}
	if !derived.Equals(supplied) {
		return fmt.Errorf("%w: got %s, want %s", ErrAddressMismatch, supplied, derived)
	}
	return nil
}
