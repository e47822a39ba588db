// Package instruction is the research program's ABI: instruction discriminators,
// borsh argument layouts and the account lists each instruction expects.
package instruction

import (
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/malbeclabs/biox/program/pkg/state"
)

var (
	ErrUnknownInstruction = errors.New("unknown instruction discriminator")
	ErrInvalidArgs        = errors.New("failed to decode instruction arguments")
)

type Kind uint8

const (
	KindInitialize Kind = iota
	KindSubmitPaper
	KindPublishPaper
	KindFundPaper
	KindVotePaper
	KindClaimFunds
	KindTogglePause
	KindUpdateSettings
)

var kindNames = [...]string{
	KindInitialize:     "initialize",
	KindSubmitPaper:    "submit_paper",
	KindPublishPaper:   "publish_paper",
	KindFundPaper:      "fund_paper",
	KindVotePaper:      "vote_paper",
	KindClaimFunds:     "claim_funds",
	KindTogglePause:    "toggle_pause",
	KindUpdateSettings: "update_settings",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) Discriminator() state.Discriminator {
	return state.InstructionDiscriminator(k.String())
}

var byDiscriminator = func() map[state.Discriminator]Kind {
	m := make(map[state.Discriminator]Kind, len(kindNames))
	for i := range kindNames {
		m[Kind(i).Discriminator()] = Kind(i)
	}
	return m
}()

type InitializeArgs struct{}

type SubmitPaperArgs struct {
	Title             string
	AbstractText      string
	IPFSHash          string
	Authors           []string
	FundingGoal       uint64
	FundingPeriodDays uint64
}

type PublishPaperArgs struct {
	PaperID uint64
}

type FundPaperArgs struct {
	PaperID uint64
	Amount  uint64
}

type VotePaperArgs struct {
	PaperID  uint64
	IsUpvote bool
}

type ClaimFundsArgs struct {
	PaperID uint64
}

type TogglePauseArgs struct{}

// UpdateSettingsArgs leaves a setting unchanged when its field is nil.
type UpdateSettingsArgs struct {
	PlatformFeeRate  *uint16 `bin:"optional"`
	MinFundingGoal   *uint64 `bin:"optional"`
	MaxFundingPeriod *int64  `bin:"optional"`
}

func kindOf(args any) (Kind, error) {
	switch args.(type) {
	case *InitializeArgs:
		return KindInitialize, nil
	case *SubmitPaperArgs:
		return KindSubmitPaper, nil
	case *PublishPaperArgs:
		return KindPublishPaper, nil
	case *FundPaperArgs:
		return KindFundPaper, nil
	case *VotePaperArgs:
		return KindVotePaper, nil
	case *ClaimFundsArgs:
		return KindClaimFunds, nil
	case *TogglePauseArgs:
		return KindTogglePause, nil
	case *UpdateSettingsArgs:
		return KindUpdateSettings, nil
	}
	return 0, fmt.Errorf("unsupported instruction arguments %T", args)
}

func newArgs(k Kind) any {
	switch k {
	case KindInitialize:
		return &InitializeArgs{}
	case KindSubmitPaper:
		return &SubmitPaperArgs{}
	case KindPublishPaper:
		return &PublishPaperArgs{}
	case KindFundPaper:
		return &FundPaperArgs{}
	case KindVotePaper:
		return &VotePaperArgs{}
	case KindClaimFunds:
		return &ClaimFundsArgs{}
	case KindTogglePause:
		return &TogglePauseArgs{}
	case KindUpdateSettings:
		return &UpdateSettingsArgs{}
	}
	return nil
}

// Encode returns the discriminator followed by the borsh encoded arguments.
func Encode(args any) ([]byte, error) {
	k, err := kindOf(args)
	if err != nil {
		return nil, err
	}
	d := k.Discriminator()
	out := append([]byte(nil), d[:]...)
	switch k {
	case KindInitialize, KindTogglePause:
		return out, nil
	}
	body, err := bin.MarshalBorsh(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s arguments: %w", k, err)
	}
	return append(out, body...), nil
}

// Peek identifies an instruction without decoding its arguments.
func Peek(data []byte) (Kind, error) {
	if len(data) < state.DiscriminatorLen {
		return 0, ErrUnknownInstruction
	}
	var d state.Discriminator
	copy(d[:], data[:state.DiscriminatorLen])
	k, ok := byDiscriminator[d]
	if !ok {
		return 0, ErrUnknownInstruction
	}
	return k, nil
}

// Decode identifies an instruction and decodes its arguments. Trailing bytes are rejected.
func Decode(data []byte) (Kind, any, error) {
	k, err := Peek(data)
	if err != nil {
		return 0, nil, err
	}
	args := newArgs(k)
	body := data[state.DiscriminatorLen:]
	switch k {
	case KindInitialize, KindTogglePause:
		if len(body) != 0 {
			return k, nil, fmt.Errorf("%w: %s takes no arguments", ErrInvalidArgs, k)
		}
		return k, args, nil
	}
	dec := bin.NewBorshDecoder(body)
	if err := dec.Decode(args); err != nil {
		return k, nil, fmt.Errorf("%w: %s: %v", ErrInvalidArgs, k, err)
	}
	if dec.Remaining() != 0 {
		return k, nil, fmt.Errorf("%w: %s: %d trailing bytes", ErrInvalidArgs, k, dec.Remaining())
	}
	return k, args, nil
}
