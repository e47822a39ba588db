package processor

import (
	"errors"
	"math/bits"

	"github.com/malbeclabs/biox/ledger/pkg/runtime"
	"github.com/malbeclabs/biox/program/pkg/instruction"
	"github.com/malbeclabs/biox/program/pkg/pda"
	"github.com/malbeclabs/biox/program/pkg/state"
)

// VoteWeight converts a token balance into whole units. Every vote counts at least once;
// maxWeight caps it unless zero.
func VoteWeight(balance uint64, decimals uint8, maxWeight uint64) uint64 {
	unit := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		unit *= 10
	}
	weight := balance / unit
	if weight == 0 {
		weight = 1
	}
	if maxWeight > 0 && weight > maxWeight {
		weight = maxWeight
	}
	return weight
}

func (p *Processor) voterBalance(ic *runtime.InvokeContext) (uint64, error) {
	acct, found, err := p.loadTokenAccount(ic, instruction.VotePaperVoterToken)
	if err != nil || !found {
		return 0, err
	}
	voter := ic.Key(instruction.VotePaperVoter)
	if !acct.Owner.Equals(voter) || !acct.Mint.Equals(p.cfg.Mint) {
		return 0, runtime.ErrConstraintAddress.Withf("token account %s does not hold %s for %s", ic.Key(instruction.VotePaperVoterToken), p.cfg.Mint, voter)
	}
	return acct.Amount, nil
}

// votePaper records one vote per (paper, voter). The vote record's address is the
// duplicate guard.
func (p *Processor) votePaper(ic *runtime.InvokeContext, args *instruction.VotePaperArgs) error {
	if err := requireSigner(ic, instruction.VotePaperVoter); err != nil {
		return err
	}
	st, err := p.loadProgramState(ic, instruction.VotePaperProgramState)
	if err != nil {
		return err
	}
	if st.IsPaused {
		return ErrProgramPaused
	}
	paper, err := p.loadPaper(ic, instruction.VotePaperPaper, args.PaperID)
	if err != nil {
		return err
	}
	if paper.Status != state.PaperStatusPublished && paper.Status != state.PaperStatusFullyFunded {
		return ErrPaperNotPublished.Withf("paper %d is %s", paper.ID, paper.Status)
	}
	voter := ic.Key(instruction.VotePaperVoter)
	bump, err := p.verifyAddress(ic, instruction.VotePaperVote, pda.VoteSeeds(paper.ID, voter))
	if err != nil {
		return err
	}

	balance, err := p.voterBalance(ic)
	if err != nil {
		return err
	}
	weight := VoteWeight(balance, p.cfg.Decimals, p.cfg.MaxVoteWeight)

	var carry uint64
	if args.IsUpvote {
		paper.Upvotes, carry = bits.Add64(paper.Upvotes, weight, 0)
	} else {
		paper.Downvotes, carry = bits.Add64(paper.Downvotes, weight, 0)
	}
	if carry != 0 {
		return ErrMathOverflow
	}

	now := ic.Clock().UnixTimestamp
	vote := &state.Vote{
		PaperID:   paper.ID,
		Voter:     voter,
		IsUpvote:  args.IsUpvote,
		Weight:    weight,
		Timestamp: now,
		Bump:      bump,
	}
	err = create(ic, instruction.VotePaperVote, pda.VoteSeeds(paper.ID, voter), bump, vote)
	if errors.Is(err, runtime.ErrAccountAlreadyInUse) {
		return ErrAlreadyVoted.Withf("%s on paper %d", voter, paper.ID)
	}
	if err != nil {
		return err
	}

	paper.UpdatedAt = now
	if err := save(ic, instruction.VotePaperPaper, paper); err != nil {
		return err
	}
	return emit(ic, &state.PaperVotedEvent{
		PaperID:   paper.ID,
		Voter:     voter,
		IsUpvote:  args.IsUpvote,
		Weight:    weight,
		Timestamp: now,
	})
}
