package processor

import "github.com/malbeclabs/biox/ledger/pkg/runtime"

const errorCodeOffset = 6000

func programError(n uint32, name, message string) *runtime.InstructionError {
	return runtime.NewInstructionError(errorCodeOffset+n, name, message)
}

var (
	ErrInvalidTitle          = programError(0, "InvalidTitle", "Invalid title length")
	ErrInvalidAbstract       = programError(1, "InvalidAbstract", "Invalid abstract length")
	ErrInvalidIPFSHash       = programError(2, "InvalidIPFSHash", "Invalid IPFS hash")
	ErrInvalidAuthors        = programError(3, "InvalidAuthors", "Invalid authors list")
	ErrFundingGoalTooLow     = programError(4, "FundingGoalTooLow", "Funding goal too low")
	ErrInvalidFundingPeriod  = programError(5, "InvalidFundingPeriod", "Invalid funding period")
	ErrUnauthorized          = programError(6, "Unauthorized", "Unauthorized action")
	ErrPaperNotPublished     = programError(7, "PaperNotPublished", "Paper is not published")
	ErrFundingDeadlinePassed = programError(8, "FundingDeadlinePassed", "Funding deadline has passed")
	ErrInvalidAmount         = programError(9, "InvalidAmount", "Invalid amount")
	ErrInvalidPaperStatus    = programError(10, "InvalidPaperStatus", "Invalid paper status")
	ErrNotFullyFunded        = programError(11, "NotFullyFunded", "Paper not fully funded")
	ErrNoFundsToClaim        = programError(12, "NoFundsToClaim", "No funds to claim")
	ErrProgramPaused         = programError(13, "ProgramPaused", "Program is paused")
	ErrFeeTooHigh            = programError(14, "FeeTooHigh", "Fee rate too high")
	ErrAlreadyVoted          = programError(15, "AlreadyVoted", "Voter has already voted on this paper")
	ErrMathOverflow          = programError(16, "MathOverflow", "Arithmetic overflow")
)
