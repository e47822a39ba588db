package state

import (
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
)

// PaperStatus is the lifecycle position of a research paper. Values only move forward.
type PaperStatus uint8

const (
	PaperStatusDraft PaperStatus = iota
	PaperStatusPublished
	PaperStatusFullyFunded
	PaperStatusCompleted
	PaperStatusRejected
)

var paperStatusNames = [...]string{
	PaperStatusDraft:       "draft",
	PaperStatusPublished:   "published",
	PaperStatusFullyFunded: "fully_funded",
	PaperStatusCompleted:   "completed",
	PaperStatusRejected:    "rejected",
}

func (s PaperStatus) String() string {
	if int(s) < len(paperStatusNames) {
		return paperStatusNames[s]
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

func (s PaperStatus) Valid() bool {
	return int(s) < len(paperStatusNames)
}

// Terminal reports whether no further transition is possible.
func (s PaperStatus) Terminal() bool {
	return s == PaperStatusCompleted || s == PaperStatusRejected
}

// AcceptsContributions reports whether funding and voting are open.
func (s PaperStatus) AcceptsContributions() bool {
	return s == PaperStatusPublished || s == PaperStatusFullyFunded
}

func (s PaperStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid paper status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *PaperStatus) UnmarshalText(text []byte) error {
	parsed, err := ParsePaperStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func ParsePaperStatus(name string) (PaperStatus, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range paperStatusNames {
		if n == name {
			return PaperStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown paper status %q", name)
}

func (s PaperStatus) MarshalWithEncoder(encoder *bin.Encoder) error {
	return encoder.WriteUint8(uint8(s))
}

func (s *PaperStatus) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	v, err := decoder.ReadUint8()
	if err != nil {
		return err
	}
	if !PaperStatus(v).Valid() {
		return fmt.Errorf("invalid paper status %d", v)
	}
	*s = PaperStatus(v)
	return nil
}
