package runtime

import "github.com/gagliardetto/solana-go"

// Program is an on-ledger program. Process runs one instruction; returning an error
// discards every write the instruction made.
type Program interface {
	ProgramID() solana.PublicKey
	Process(ic *InvokeContext) error
}

// InstructionNamer is implemented by programs that can label instruction data for
// logs and metrics.
type InstructionNamer interface {
	InstructionName(data []byte) string
}

// Event is a structured record emitted by a program.
type Event interface {
	EventName() string
}

// Clock is the ledger time handed to a program. It is fixed for the whole transaction.
type Clock struct {
	Slot          uint64 `json:"slot"`
	UnixTimestamp int64  `json:"unixTimestamp"`
}

func instructionName(p Program, data []byte) string {
	if n, ok := p.(InstructionNamer); ok {
		if name := n.InstructionName(data); name != "" {
			return name
		}
	}
	return "unknown"
}
