package pda

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

var testProgramID = solana.MustPublicKeyFromBase58("4TsLtFAfkbpcFjesanK4ojZNTK1bsQPfPuVxt5g19hhM")

func TestBiox_PDA_Deterministic(t *testing.T) {
	t.Parallel()

	a1, b1, err := DerivePaperPDA(testProgramID, 7)
	require.NoError(t, err)
	a2, b2, err := DerivePaperPDA(testProgramID, 7)
	require.NoError(t, err)
	require.Equal(t, a1, a2)
	require.Equal(t, b1, b2)

	other, _, err := DerivePaperPDA(testProgramID, 8)
	require.NoError(t, err)
	require.NotEqual(t, a1, other)
}

func TestBiox_PDA_DistinctTags(t *testing.T) {
	t.Parallel()

	voter := solana.NewWallet().PublicKey()

	state, _, err := DeriveProgramStatePDA(testProgramID)
	require.NoError(t, err)
	vault, _, err := DerivePlatformVaultPDA(testProgramID)
	require.NoError(t, err)
	paper, _, err := DerivePaperPDA(testProgramID, 0)
	require.NoError(t, err)
	escrow, _, err := DerivePaperTokenPDA(testProgramID, 0)
	require.NoError(t, err)
	vote, _, err := DeriveVotePDA(testProgramID, 0, voter)
	require.NoError(t, err)
	funding, _, err := DeriveFundingPDA(testProgramID, 0, voter, 0)
	require.NoError(t, err)

	seen := map[solana.PublicKey]bool{}
	for _, addr := range []solana.PublicKey{state, vault, paper, escrow, vote, funding} {
		require.False(t, seen[addr], "duplicate address %s", addr)
		seen[addr] = true
	}
}

func TestBiox_PDA_FundingSequenceSalts(t *testing.T) {
	t.Parallel()

	funder := solana.NewWallet().PublicKey()
	first, _, err := DeriveFundingPDA(testProgramID, 3, funder, 0)
	require.NoError(t, err)
	second, _, err := DeriveFundingPDA(testProgramID, 3, funder, 1)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestBiox_PDA_Verify(t *testing.T) {
	t.Parallel()

	voter := solana.NewWallet().PublicKey()
	addr, bump, err := DeriveVotePDA(testProgramID, 4, voter)
	require.NoError(t, err)

	gotBump, err := Verify(testProgramID, addr, VoteSeeds(4, voter))
	require.NoError(t, err)
	require.Equal(t, bump, gotBump)
	require.NoError(t, VerifyWithBump(testProgramID, addr, VoteSeeds(4, voter), bump))

	spoofed := solana.NewWallet().PublicKey()
	_, err = Verify(testProgramID, spoofed, VoteSeeds(4, voter))
	require.ErrorIs(t, err, ErrAddressMismatch)

	_, err = Verify(testProgramID, addr, VoteSeeds(5, voter))
	require.ErrorIs(t, err, ErrAddressMismatch)

	require.ErrorIs(t, VerifyWithBump(testProgramID, spoofed, VoteSeeds(4, voter), bump), ErrAddressMismatch)
}
