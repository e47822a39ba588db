package state

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// ProgramDataPrefix marks a program log line carrying a base64 encoded event.
const ProgramDataPrefix = "Program data: "

var ErrUnknownEvent = errors.New("unknown event discriminator")

// Event is a structured record emitted by a successful instruction.
type Event interface {
	EventName() string
}

type ProgramInitializedEvent struct {
	Admin            solana.PublicKey `json:"admin"`
	PlatformFeeRate  uint16           `json:"platformFeeRate"`
	MinFundingGoal   uint64           `json:"minFundingGoal"`
	MaxFundingPeriod int64            `json:"maxFundingPeriod"`
	Timestamp        int64            `json:"timestamp"`
}

type PaperSubmittedEvent struct {
	PaperID   uint64           `json:"paperId"`
	Author    solana.PublicKey `json:"author"`
	Title     string           `json:"title"`
	Timestamp int64            `json:"timestamp"`
}

type PaperPublishedEvent struct {
	PaperID   uint64           `json:"paperId"`
	Author    solana.PublicKey `json:"author"`
	Timestamp int64            `json:"timestamp"`
}

// PaperFundedEvent carries the net amount; TotalFunding is the paper's running total.
// FullyFunded is the paper's status after the contribution; GoalReached is set only on
// the contribution that crossed the goal.
type PaperFundedEvent struct {
	PaperID      uint64           `json:"paperId"`
	Funder       solana.PublicKey `json:"funder"`
	Amount       uint64           `json:"amount"`
	PlatformFee  uint64           `json:"platformFee"`
	TotalFunding uint64           `json:"totalFunding"`
	FullyFunded  bool             `json:"fullyFunded"`
	GoalReached  bool             `json:"goalReached"`
	Timestamp    int64            `json:"timestamp"`
}

type PaperVotedEvent struct {
	PaperID   uint64           `json:"paperId"`
	Voter     solana.PublicKey `json:"voter"`
	IsUpvote  bool             `json:"isUpvote"`
	Weight    uint64           `json:"weight"`
	Timestamp int64            `json:"timestamp"`
}

type FundsClaimedEvent struct {
	PaperID   uint64           `json:"paperId"`
	Author    solana.PublicKey `json:"author"`
	Amount    uint64           `json:"amount"`
	Timestamp int64            `json:"timestamp"`
}

type PauseToggledEvent struct {
	IsPaused  bool  `json:"isPaused"`
	Timestamp int64 `json:"timestamp"`
}

type SettingsUpdatedEvent struct {
	PlatformFeeRate  uint16 `json:"platformFeeRate"`
	MinFundingGoal   uint64 `json:"minFundingGoal"`
	MaxFundingPeriod int64  `json:"maxFundingPeriod"`
	Timestamp        int64  `json:"timestamp"`
}

func (*ProgramInitializedEvent) EventName() string { return "ProgramInitializedEvent" }
func (*PaperSubmittedEvent) EventName() string     { return "PaperSubmittedEvent" }
func (*PaperPublishedEvent) EventName() string     { return "PaperPublishedEvent" }
func (*PaperFundedEvent) EventName() string        { return "PaperFundedEvent" }
func (*PaperVotedEvent) EventName() string         { return "PaperVotedEvent" }
func (*FundsClaimedEvent) EventName() string       { return "FundsClaimedEvent" }
func (*PauseToggledEvent) EventName() string       { return "PauseToggledEvent" }
func (*SettingsUpdatedEvent) EventName() string    { return "SettingsUpdatedEvent" }

var eventFactories = map[Discriminator]func() Event{}

func registerEvent(newEvent func() Event) {
	eventFactories[EventDiscriminator(newEvent().EventName())] = newEvent
}

func init() {
	registerEvent(func() Event { return &ProgramInitializedEvent{} })
	registerEvent(func() Event { return &PaperSubmittedEvent{} })
	registerEvent(func() Event { return &PaperPublishedEvent{} })
	registerEvent(func() Event { return &PaperFundedEvent{} })
	registerEvent(func() Event { return &PaperVotedEvent{} })
	registerEvent(func() Event { return &FundsClaimedEvent{} })
	registerEvent(func() Event { return &PauseToggledEvent{} })
	registerEvent(func() Event { return &SettingsUpdatedEvent{} })
}

// EventTimestamp returns the ledger time recorded in ev.
func EventTimestamp(ev Event) int64 {
	switch e := ev.(type) {
	case *ProgramInitializedEvent:
		return e.Timestamp
	case *PaperSubmittedEvent:
		return e.Timestamp
	case *PaperPublishedEvent:
		return e.Timestamp
	case *PaperFundedEvent:
		return e.Timestamp
	case *PaperVotedEvent:
		return e.Timestamp
	case *FundsClaimedEvent:
		return e.Timestamp
	case *PauseToggledEvent:
		return e.Timestamp
	case *SettingsUpdatedEvent:
		return e.Timestamp
	}
	return 0
}

// EventPaperID returns the paper an event refers to, if any.
func EventPaperID(ev Event) (uint64, bool) {
	switch e := ev.(type) {
	case *PaperSubmittedEvent:
		return e.PaperID, true
	case *PaperPublishedEvent:
		return e.PaperID, true
	case *PaperFundedEvent:
		return e.PaperID, true
	case *PaperVotedEvent:
		return e.PaperID, true
	case *FundsClaimedEvent:
		return e.PaperID, true
	}
	return 0, false
}

func EncodeEvent(ev Event) ([]byte, error) {
	return encodeRecord(EventDiscriminator(ev.EventName()), ev)
}

func DecodeEvent(data []byte) (Event, error) {
	if len(data) < DiscriminatorLen {
		return nil, ErrUnknownEvent
	}
	var d Discriminator
	copy(d[:], data[:DiscriminatorLen])
	newEvent, ok := eventFactories[d]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, d)
	}
	ev := newEvent()
	if err := bin.UnmarshalBorsh(ev, data[DiscriminatorLen:]); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", ev.EventName(), err)
	}
	return ev, nil
}

// EventLogLine renders ev the way it appears in program logs.
func EventLogLine(ev Event) (string, error) {
	data, err := EncodeEvent(ev)
	if err != nil {
		return "", err
	}
	return ProgramDataPrefix + base64.StdEncoding.EncodeToString(data), nil
}

// ParseEventLogLine decodes a "Program data:" log line. ok is false for other lines.
func ParseEventLogLine(line string) (ev Event, ok bool, err error) {
	payload, found := strings.CutPrefix(line, ProgramDataPrefix)
	if !found {
		return nil, false, nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, true, fmt.Errorf("failed to decode event payload: %w", err)
	}
	ev, err = DecodeEvent(data)
	return ev, true, err
}
