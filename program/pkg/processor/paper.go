package processor

import (
	"math/bits"

	"github.com/malbeclabs/biox/ledger/pkg/runtime"
	"github.com/malbeclabs/biox/program/pkg/instruction"
	"github.com/malbeclabs/biox/program/pkg/pda"
	"github.com/malbeclabs/biox/program/pkg/state"
)

func validateSubmission(args *instruction.SubmitPaperArgs, st *state.ProgramState) error {
	if len(args.Title) == 0 || len(args.Title) > state.MaxTitleLen {
		return ErrInvalidTitle.Withf("%d bytes", len(args.Title))
	}
	if len(args.AbstractText) == 0 || len(args.AbstractText) > state.MaxAbstractLen {
		return ErrInvalidAbstract.Withf("%d bytes", len(args.AbstractText))
	}
	if len(args.IPFSHash) == 0 || len(args.IPFSHash) > state.MaxIPFSHashLen {
		return ErrInvalidIPFSHash.Withf("%d bytes", len(args.IPFSHash))
	}
	if len(args.Authors) == 0 || len(args.Authors) > state.MaxAuthors {
		return ErrInvalidAuthors.Withf("%d authors", len(args.Authors))
	}
	for _, a := range args.Authors {
		if len(a) == 0 || len(a) > state.MaxAuthorNameLen {
			return ErrInvalidAuthors.Withf("author name of %d bytes", len(a))
		}
	}
	if args.FundingGoal < st.MinFundingGoal {
		return ErrFundingGoalTooLow.Withf("%d below minimum %d", args.FundingGoal, st.MinFundingGoal)
	}
	if args.FundingPeriodDays == 0 || args.FundingPeriodDays > state.MaxFundingPeriodDays {
		return ErrInvalidFundingPeriod.Withf("%d days", args.FundingPeriodDays)
	}
	if int64(args.FundingPeriodDays)*state.SecondsPerDay > st.MaxFundingPeriod {
		return ErrInvalidFundingPeriod.Withf("%d days exceeds maximum of %d seconds", args.FundingPeriodDays, st.MaxFundingPeriod)
	}
	return nil
}

// submitPaper allocates the next paper id. Two submissions racing for the same id
// collide on the paper address; the loser retries with the new count.
func (p *Processor) submitPaper(ic *runtime.InvokeContext, args *instruction.SubmitPaperArgs) error {
	if err := requireSigner(ic, instruction.SubmitPaperAuthor); err != nil {
		return err
	}
	st, err := p.loadProgramState(ic, instruction.SubmitPaperProgramState)
	if err != nil {
		return err
	}
	if st.IsPaused {
		return ErrProgramPaused
	}
	if err := validateSubmission(args, st); err != nil {
		return err
	}

	id := st.PaperCount
	bump, err := p.verifyAddress(ic, instruction.SubmitPaperPaper, pda.PaperSeeds(id))
	if err != nil {
		return err
	}
	next, carry := bits.Add64(st.PaperCount, 1, 0)
	if carry != 0 {
		return ErrMathOverflow
	}

	now := ic.Clock().UnixTimestamp
	paper := &state.ResearchPaper{
		ID:              id,
		Author:          ic.Key(instruction.SubmitPaperAuthor),
		Title:           args.Title,
		AbstractText:    args.AbstractText,
		IPFSHash:        args.IPFSHash,
		Authors:         args.Authors,
		CreatedAt:       now,
		UpdatedAt:       now,
		FundingGoal:     args.FundingGoal,
		FundingDeadline: now + int64(args.FundingPeriodDays)*state.SecondsPerDay,
		Status:          state.PaperStatusDraft,
		Bump:            bump,
	}
	if err := create(ic, instruction.SubmitPaperPaper, pda.PaperSeeds(id), bump, paper); err != nil {
		return err
	}
	st.PaperCount = next
	if err := save(ic, instruction.SubmitPaperProgramState, st); err != nil {
		return err
	}
	ic.Logf("Paper %d submitted", id)
	return emit(ic, &state.PaperSubmittedEvent{
		PaperID:   id,
		Author:    paper.Author,
		Title:     paper.Title,
		Timestamp: now,
	})
}

func (p *Processor) publishPaper(ic *runtime.InvokeContext, args *instruction.PublishPaperArgs) error {
	if err := requireSigner(ic, instruction.PublishPaperAuthority); err != nil {
		return err
	}
	st, err := p.loadProgramState(ic, instruction.PublishPaperProgramState)
	if err != nil {
		return err
	}
	if st.IsPaused {
		return ErrProgramPaused
	}
	paper, err := p.loadPaper(ic, instruction.PublishPaperPaper, args.PaperID)
	if err != nil {
		return err
	}
	authority := ic.Key(instruction.PublishPaperAuthority)
	if !authority.Equals(paper.Author) && !authority.Equals(st.Admin) {
		return ErrUnauthorized.Withf("%s may not publish paper %d", authority, paper.ID)
	}
	if paper.Status != state.PaperStatusDraft {
		return ErrInvalidPaperStatus.Withf("paper %d is %s", paper.ID, paper.Status)
	}

	now := ic.Clock().UnixTimestamp
	paper.Status = state.PaperStatusPublished
	paper.IsPublished = true
	paper.UpdatedAt = now
	if err := save(ic, instruction.PublishPaperPaper, paper); err != nil {
		return err
	}
	return emit(ic, &state.PaperPublishedEvent{
		PaperID:   paper.ID,
		Author:    paper.Author,
		Timestamp: now,
	})
}
