// Package state defines the records the research program stores on the ledger and
// the events it emits. Every record is borsh encoded behind an 8-byte discriminator.
package state

import (
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	MaxTitleLen    = 100
	MaxAbstractLen = 1000
	MaxIPFSHashLen = 100
	MaxAuthors     = 10

	// MaxAuthorNameLen bounds each entry of ResearchPaper.Authors.
	MaxAuthorNameLen = 50

	DefaultPlatformFeeRate  uint16 = 250
	MaxPlatformFeeRate      uint16 = 1000
	FeeRateDenominator      uint64 = 10_000
	DefaultMinFundingGoal   uint64 = 1_000_000
	SecondsPerDay           int64  = 86_400
	DefaultMaxFundingPeriod int64  = 90 * SecondsPerDay
	MaxFundingPeriodDays    uint64 = 365
)

var ErrDiscriminatorMismatch = errors.New("account discriminator mismatch")

var (
	ProgramStateDiscriminator  = AccountDiscriminator("ProgramState")
	ResearchPaperDiscriminator = AccountDiscriminator("ResearchPaper")
	FundingDiscriminator       = AccountDiscriminator("Funding")
	VoteDiscriminator          = AccountDiscriminator("Vote")
)

// ProgramState is the singleton policy and counter record.
type ProgramState struct {
	Admin            solana.PublicKey `json:"admin"`
	PaperCount       uint64           `json:"paperCount"`
	TotalFunding     uint64           `json:"totalFunding"`
	PlatformFeeRate  uint16           `json:"platformFeeRate"`
	MinFundingGoal   uint64           `json:"minFundingGoal"`
	MaxFundingPeriod int64            `json:"maxFundingPeriod"`
	IsPaused         bool             `json:"isPaused"`
	Bump             uint8            `json:"bump"`
}

// ResearchPaper is one submitted paper. ReviewScore and ReviewCount are stored but
// no instruction writes them yet.
type ResearchPaper struct {
	ID              uint64           `json:"id"`
	Author          solana.PublicKey `json:"author"`
	Title           string           `json:"title"`
	AbstractText    string           `json:"abstractText"`
	IPFSHash        string           `json:"ipfsHash"`
	Authors         []string         `json:"authors"`
	CreatedAt       int64            `json:"createdAt"`
	UpdatedAt       int64            `json:"updatedAt"`
	IsPublished     bool             `json:"isPublished"`
	FundingGoal     uint64           `json:"fundingGoal"`
	FundingCurrent  uint64           `json:"fundingCurrent"`
	FundingDeadline int64            `json:"fundingDeadline"`
	Upvotes         uint64           `json:"upvotes"`
	Downvotes       uint64           `json:"downvotes"`
	Status          PaperStatus      `json:"status"`
	ReviewScore     uint32           `json:"reviewScore"`
	ReviewCount     uint32           `json:"reviewCount"`
	FundingCount    uint64           `json:"fundingCount"`
	Bump            uint8            `json:"bump"`
}

// Funding is an immutable receipt for one contribution. Amount is net of the fee.
type Funding struct {
	PaperID     uint64           `json:"paperId"`
	Funder      solana.PublicKey `json:"funder"`
	Seq         uint64           `json:"seq"`
	Amount      uint64           `json:"amount"`
	PlatformFee uint64           `json:"platformFee"`
	Timestamp   int64            `json:"timestamp"`
	Bump        uint8            `json:"bump"`
}

// Vote is an immutable receipt for one voter on one paper.
type Vote struct {
	PaperID   uint64           `json:"paperId"`
	Voter     solana.PublicKey `json:"voter"`
	IsUpvote  bool             `json:"isUpvote"`
	Weight    uint64           `json:"weight"`
	Timestamp int64            `json:"timestamp"`
	Bump      uint8            `json:"bump"`
}

func encodeRecord(d Discriminator, v any) ([]byte, error) {
	body, err := bin.MarshalBorsh(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	out := make([]byte, 0, DiscriminatorLen+len(body))
	out = append(out, d[:]...)
	return append(out, body...), nil
}

func decodeRecord(d Discriminator, data []byte, v any) error {
	if !HasDiscriminator(data, d) {
		return ErrDiscriminatorMismatch
	}
	if err := bin.UnmarshalBorsh(v, data[DiscriminatorLen:]); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	return nil
}

func (s *ProgramState) Marshal() ([]byte, error) {
	return encodeRecord(ProgramStateDiscriminator, s)
}

func (s *ProgramState) Unmarshal(data []byte) error {
	return decodeRecord(ProgramStateDiscriminator, data, s)
}

func (p *ResearchPaper) Marshal() ([]byte, error) {
	return encodeRecord(ResearchPaperDiscriminator, p)
}

func (p *ResearchPaper) Unmarshal(data []byte) error {
	return decodeRecord(ResearchPaperDiscriminator, data, p)
}

// FullyFunded reports whether contributions have reached the goal.
func (p *ResearchPaper) FullyFunded() bool {
	return p.FundingCurrent >= p.FundingGoal
}

func (f *Funding) Marshal() ([]byte, error) {
	return encodeRecord(FundingDiscriminator, f)
}

func (f *Funding) Unmarshal(data []byte) error {
	return decodeRecord(FundingDiscriminator, data, f)
}

func (v *Vote) Marshal() ([]byte, error) {
	return encodeRecord(VoteDiscriminator, v)
}

func (v *Vote) Unmarshal(data []byte) error {
	return decodeRecord(VoteDiscriminator, data, v)
}

// Kind names the record type stored in an account, or "" if it is not a program record.
func Kind(data []byte) string {
	switch {
	case HasDiscriminator(data, ProgramStateDiscriminator):
		return "programState"
	case HasDiscriminator(data, ResearchPaperDiscriminator):
		return "researchPaper"
	case HasDiscriminator(data, FundingDiscriminator):
		return "funding"
	case HasDiscriminator(data, VoteDiscriminator):
		return "vote"
	}
	return ""
}

// DecodeAccount decodes any program record by its discriminator.
func DecodeAccount(data []byte) (any, error) {
	switch Kind(data) {
	case "programState":
		var s ProgramState
		return &s, s.Unmarshal(data)
	case "researchPaper":
		var p ResearchPaper
		return &p, p.Unmarshal(data)
	case "funding":
		var f Funding
		return &f, f.Unmarshal(data)
	case "vote":
		var v Vote
		return &v, v.Unmarshal(data)
	}
	return nil, ErrDiscriminatorMismatch
}
