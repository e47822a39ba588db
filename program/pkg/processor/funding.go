package processor

import (
	"errors"
	"math/bits"

	"github.com/malbeclabs/biox/ledger/pkg/accountsdb"
	"github.com/malbeclabs/biox/ledger/pkg/runtime"
	"github.com/malbeclabs/biox/program/pkg/instruction"
	"github.com/malbeclabs/biox/program/pkg/pda"
	"github.com/malbeclabs/biox/program/pkg/state"
	"github.com/malbeclabs/biox/program/pkg/token"
)

// PlatformFee returns floor(amount * rate / 10000) without intermediate overflow.
func PlatformFee(amount uint64, rate uint16) (uint64, error) {
	hi, lo := bits.Mul64(amount, uint64(rate))
	if hi >= state.FeeRateDenominator {
		return 0, ErrMathOverflow
	}
	fee, _ := bits.Div64(hi, lo, state.FeeRateDenominator)
	return fee, nil
}

func checkFundable(paper *state.ResearchPaper, now int64) error {
	switch paper.Status {
	case state.PaperStatusPublished, state.PaperStatusFullyFunded:
	case state.PaperStatusDraft:
		return ErrPaperNotPublished.Withf("paper %d", paper.ID)
	default:
		return ErrInvalidPaperStatus.Withf("paper %d is %s", paper.ID, paper.Status)
	}
	if now > paper.FundingDeadline {
		return ErrFundingDeadlinePassed.Withf("deadline %d, now %d", paper.FundingDeadline, now)
	}
	return nil
}

func (p *Processor) fundPaper(ic *runtime.InvokeContext, args *instruction.FundPaperArgs) error {
	if err := requireSigner(ic, instruction.FundPaperFunder); err != nil {
		return err
	}
	st, err := p.loadProgramState(ic, instruction.FundPaperProgramState)
	if err != nil {
		return err
	}
	if st.IsPaused {
		return ErrProgramPaused
	}
	if args.Amount == 0 {
		return ErrInvalidAmount
	}
	paper, err := p.loadPaper(ic, instruction.FundPaperPaper, args.PaperID)
	if err != nil {
		return err
	}
	now := ic.Clock().UnixTimestamp
	if err := checkFundable(paper, now); err != nil {
		return err
	}

	if err := p.verifyMint(ic, instruction.FundPaperMint); err != nil {
		return err
	}
	escrowBump, err := p.verifyAddress(ic, instruction.FundPaperPaperToken, pda.PaperTokenSeeds(paper.ID))
	if err != nil {
		return err
	}
	if _, err := p.verifyAddress(ic, instruction.FundPaperPlatformVault, pda.PlatformVaultSeeds()); err != nil {
		return err
	}
	funder := ic.Key(instruction.FundPaperFunder)
	seq := paper.FundingCount
	receiptBump, err := p.verifyAddress(ic, instruction.FundPaperFunding, pda.FundingSeeds(paper.ID, funder, seq))
	if err != nil {
		return err
	}

	fee, err := PlatformFee(args.Amount, st.PlatformFeeRate)
	if err != nil {
		return err
	}
	net := args.Amount - fee

	current, carry := bits.Add64(paper.FundingCurrent, net, 0)
	if carry != 0 {
		return ErrMathOverflow
	}
	total, carry := bits.Add64(st.TotalFunding, net, 0)
	if carry != 0 {
		return ErrMathOverflow
	}

	escrow := ic.Key(instruction.FundPaperPaperToken)
	escrowSeeds := withBump(pda.PaperTokenSeeds(paper.ID), escrowBump)
	if err := p.ensureEscrow(ic, escrowSeeds); err != nil {
		return err
	}
	funderToken := ic.Key(instruction.FundPaperFunderToken)
	if net > 0 {
		if err := ic.Invoke(token.NewTransferInstruction(p.cfg.TokenProgramID, funderToken, escrow, funder, net)); err != nil {
			return err
		}
	}
	if fee > 0 {
		vault := ic.Key(instruction.FundPaperPlatformVault)
		if err := ic.Invoke(token.NewTransferInstruction(p.cfg.TokenProgramID, funderToken, vault, funder, fee)); err != nil {
			return err
		}
	}

	receipt := &state.Funding{
		PaperID:     paper.ID,
		Funder:      funder,
		Seq:         seq,
		Amount:      net,
		PlatformFee: fee,
		Timestamp:   now,
		Bump:        receiptBump,
	}
	if err := create(ic, instruction.FundPaperFunding, pda.FundingSeeds(paper.ID, funder, seq), receiptBump, receipt); err != nil {
		return err
	}

	paper.FundingCurrent = current
	paper.FundingCount++
	paper.UpdatedAt = now
	reached := paper.Status != state.PaperStatusFullyFunded && paper.FullyFunded()
	if reached {
		paper.Status = state.PaperStatusFullyFunded
	}
	if err := save(ic, instruction.FundPaperPaper, paper); err != nil {
		return err
	}
	st.TotalFunding = total
	if err := save(ic, instruction.FundPaperProgramState, st); err != nil {
		return err
	}

	ic.Logf("Paper %d funded with %d (fee %d)", paper.ID, net, fee)
	return emit(ic, &state.PaperFundedEvent{
		PaperID:      paper.ID,
		Funder:       funder,
		Amount:       net,
		PlatformFee:  fee,
		TotalFunding: paper.FundingCurrent,
		FullyFunded:  paper.Status == state.PaperStatusFullyFunded,
		GoalReached:  reached,
		Timestamp:    now,
	})
}

// ensureEscrow opens the paper's escrow token account on its first contribution. The
// escrow is its own transfer authority.
func (p *Processor) ensureEscrow(ic *runtime.InvokeContext, seeds [][]byte) error {
	_, err := ic.Get(instruction.FundPaperPaperToken)
	if err == nil {
		return nil
	}
	if !errors.Is(err, accountsdb.ErrAccountNotFound) {
		return err
	}
	escrow := ic.Key(instruction.FundPaperPaperToken)
	return ic.Invoke(token.NewInitializeAccountInstruction(p.cfg.TokenProgramID, escrow, p.cfg.Mint, escrow, true), seeds)
}

func (p *Processor) claimFunds(ic *runtime.InvokeContext, args *instruction.ClaimFundsArgs) error {
	if err := requireSigner(ic, instruction.ClaimFundsAuthor); err != nil {
		return err
	}
	st, err := p.loadProgramState(ic, instruction.ClaimFundsProgramState)
	if err != nil {
		return err
	}
	if st.IsPaused {
		return ErrProgramPaused
	}
	paper, err := p.loadPaper(ic, instruction.ClaimFundsPaper, args.PaperID)
	if err != nil {
		return err
	}
	author := ic.Key(instruction.ClaimFundsAuthor)
	if !author.Equals(paper.Author) {
		return ErrUnauthorized.Withf("%s is not the author of paper %d", author, paper.ID)
	}
	switch paper.Status {
	case state.PaperStatusFullyFunded:
	case state.PaperStatusCompleted:
		return ErrNoFundsToClaim.Withf("paper %d already claimed", paper.ID)
	default:
		return ErrNotFullyFunded.Withf("paper %d is %s", paper.ID, paper.Status)
	}

	if err := p.verifyMint(ic, instruction.ClaimFundsMint); err != nil {
		return err
	}
	escrowBump, err := p.verifyAddress(ic, instruction.ClaimFundsPaperToken, pda.PaperTokenSeeds(paper.ID))
	if err != nil {
		return err
	}
	escrow, found, err := p.loadTokenAccount(ic, instruction.ClaimFundsPaperToken)
	if err != nil {
		return err
	}
	if !found || escrow.Amount == 0 {
		return ErrNoFundsToClaim.Withf("paper %d escrow is empty", paper.ID)
	}
	amount := escrow.Amount

	authorToken, _, err := token.DeriveAssociatedAccount(p.cfg.TokenProgramID, author, p.cfg.Mint)
	if err != nil {
		return err
	}
	if !authorToken.Equals(ic.Key(instruction.ClaimFundsAuthorToken)) {
		return runtime.ErrConstraintAddress.Withf("author token account %s, want %s", ic.Key(instruction.ClaimFundsAuthorToken), authorToken)
	}
	if _, found, err := p.loadTokenAccount(ic, instruction.ClaimFundsAuthorToken); err != nil {
		return err
	} else if !found {
		if err := ic.Invoke(token.NewInitializeAccountInstruction(p.cfg.TokenProgramID, authorToken, p.cfg.Mint, author, false)); err != nil {
			return err
		}
	}

	escrowAddr := ic.Key(instruction.ClaimFundsPaperToken)
	if err := ic.Invoke(
		token.NewTransferInstruction(p.cfg.TokenProgramID, escrowAddr, authorToken, escrowAddr, amount),
		withBump(pda.PaperTokenSeeds(paper.ID), escrowBump),
	); err != nil {
		return err
	}

	now := ic.Clock().UnixTimestamp
	paper.Status = state.PaperStatusCompleted
	paper.UpdatedAt = now
	if err := save(ic, instruction.ClaimFundsPaper, paper); err != nil {
		return err
	}
	ic.Logf("Paper %d claimed %d", paper.ID, amount)
	return emit(ic, &state.FundsClaimedEvent{
		PaperID:   paper.ID,
		Author:    paper.Author,
		Amount:    amount,
		Timestamp: now,
	})
}
