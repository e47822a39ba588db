package runtime

import (
	"context"
	"log/slog"

	"github.com/gagliardetto/solana-go"
)

// EventBatch is every event one committed transaction emitted.
type EventBatch struct {
	Signature     solana.Signature
	Slot          uint64
	UnixTimestamp int64
	ProgramID     solana.PublicKey
	Signer        solana.PublicKey
	Instruction   string
	Events        []Event
}

// EventSink receives committed events. A failing sink never undoes the transaction.
type EventSink interface {
	Name() string
	Publish(ctx context.Context, batch *EventBatch) error
}

// LogSink writes each event to a structured logger.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(ctx context.Context, batch *EventBatch) error {
	for _, ev := range batch.Events {
		s.log.Info("runtime: event",
			"event", ev.EventName(),
			"instruction", batch.Instruction,
			"slot", batch.Slot,
			"signature", batch.Signature.String(),
		)
	}
	return nil
}

// SinkFunc adapts a function to EventSink.
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, batch *EventBatch) error
}

func (s SinkFunc) Name() string { return s.SinkName }

func (s SinkFunc) Publish(ctx context.Context, batch *EventBatch) error {
	return s.Fn(ctx, batch)
}
