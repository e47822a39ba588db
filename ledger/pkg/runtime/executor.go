// Package runtime executes signed transactions against the account store. Each
// transaction runs exactly one instruction and either commits every write it made or
// none of them.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/getsentry/sentry-go"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/biox/ledger/pkg/accountsdb"
	"github.com/malbeclabs/biox/ledger/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

const defaultSinkTimeout = 10 * time.Second

type ExecutorConfig struct {
	Logger   *slog.Logger
	Store    accountsdb.Store
	Clock    clockwork.Clock
	Programs []Program
	Sinks    []EventSink

	// InitialSlot is the slot preceding the first transaction this executor runs.
	InitialSlot uint64

	SinkTimeout time.Duration
}

func (cfg *ExecutorConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if len(cfg.Programs) == 0 {
		return errors.New("at least one program is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	return nil
}

// Receipt is the outcome of an executed transaction. Err is set when the program
// failed, in which case Events is empty and nothing was written.
type Receipt struct {
	Signature     solana.Signature  `json:"signature"`
	Slot          uint64            `json:"slot"`
	UnixTimestamp int64             `json:"unixTimestamp"`
	Instruction   string            `json:"instruction"`
	Events        []Event           `json:"events"`
	Logs          []string          `json:"logs"`
	Err           *InstructionError `json:"error,omitempty"`
}

type Executor struct {
	log      *slog.Logger
	cfg      ExecutorConfig
	programs map[solana.PublicKey]Program
	locks    *accountLocks
	slot     atomic.Uint64
}

func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	programs := make(map[solana.PublicKey]Program, len(cfg.Programs))
	for _, p := range cfg.Programs {
		if _, dup := programs[p.ProgramID()]; dup {
			return nil, fmt.Errorf("program %s registered twice", p.ProgramID())
		}
		programs[p.ProgramID()] = p
	}
	e := &Executor{
		log:      cfg.Logger,
		cfg:      cfg,
		programs: programs,
		locks:    newAccountLocks(),
	}
	e.slot.Store(cfg.InitialSlot)
	return e, nil
}

func (e *Executor) Store() accountsdb.Store { return e.cfg.Store }

// Slot returns the slot of the most recently started transaction.
func (e *Executor) Slot() uint64 { return e.slot.Load() }

// Execute verifies, runs and commits tx. Transactions that fail validation return a nil
// receipt. Transactions whose program fails return a receipt carrying the program logs
// along with the *InstructionError.
func (e *Executor) Execute(ctx context.Context, tx *Transaction) (*Receipt, error) {
	start := time.Now()

	if err := tx.Verify(); err != nil {
		return nil, err
	}
	msg := &tx.Message
	for _, m := range msg.Instruction.Accounts {
		if m.IsSigner && !m.PublicKey.Equals(msg.Signer) {
			return nil, fmt.Errorf("%w: %s", ErrMissingRequiredSignature, m.PublicKey)
		}
	}
	prog, ok := e.programs[msg.Instruction.ProgramID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProgramNotFound, msg.Instruction.ProgramID)
	}
	name := instructionName(prog, msg.Instruction.Data)

	span := sentry.StartSpan(ctx, "ledger.execute", sentry.WithDescription(name))
	defer span.Finish()
	span.SetTag("instruction", name)
	ctx = span.Context()

	receipt, err := e.execute(ctx, tx, prog, name)

	result := "success"
	switch {
	case err == nil:
		span.Status = sentry.SpanStatusOK
	case receipt != nil && receipt.Err != nil:
		result = "instruction_error"
		span.Status = sentry.SpanStatusFailedPrecondition
	case errors.Is(err, ErrSignatureAlreadyProcessed):
		result = "replayed"
		span.Status = sentry.SpanStatusAlreadyExists
	default:
		result = "error"
		span.Status = sentry.SpanStatusInternalError
		if !errors.Is(err, context.Canceled) {
			sentry.CaptureException(err)
		}
	}
	metrics.TransactionsTotal.WithLabelValues(name, result).Inc()
	metrics.TransactionDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return receipt, err
}

func (e *Executor) execute(ctx context.Context, tx *Transaction, prog Program, name string) (*Receipt, error) {
	msg := &tx.Message

	lockStart := time.Now()
	release, err := e.locks.acquire(ctx, msg.Instruction.Accounts)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire account locks: %w", err)
	}
	defer release()
	metrics.AccountLockWaitDuration.Observe(time.Since(lockStart).Seconds())

	clock := Clock{
		Slot:          e.slot.Add(1),
		UnixTimestamp: e.cfg.Clock.Now().Unix(),
	}
	metrics.Slot.Set(float64(clock.Slot))

	stx, err := e.cfg.Store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin store transaction: %w", err)
	}
	defer func() {
		_ = stx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := stx.RecordSignature(ctx, tx.Signature, clock.Slot); err != nil {
		return nil, err
	}

	ic := &InvokeContext{
		ctx:       ctx,
		exec:      e,
		tx:        stx,
		programID: prog.ProgramID(),
		accounts:  msg.Instruction.Accounts,
		data:      msg.Instruction.Data,
		clock:     clock,
		depth:     1,
		out:       &invokeOutput{},
	}
	receipt := &Receipt{
		Signature:     tx.Signature,
		Slot:          clock.Slot,
		UnixTimestamp: clock.UnixTimestamp,
		Instruction:   name,
	}

	if err := ic.run(prog); err != nil {
		receipt.Logs = ic.out.logs
		if errors.Is(err, accountsdb.ErrAccountAlreadyInUse) {
			err = ErrAccountAlreadyInUse.Withf("%v", err)
		}
		if ierr, ok := AsInstructionError(err); ok {
			receipt.Err = ierr
			e.log.Debug("runtime: instruction failed", "instruction", name, "signature", tx.Signature.String(), "error", ierr)
			return receipt, ierr
		}
		e.log.Error("runtime: instruction aborted", "instruction", name, "signature", tx.Signature.String(), "error", err)
		return nil, err
	}

	if err := stx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	// Sinks run without the account locks; batches from different transactions may
	// arrive out of slot order.
	release()

	receipt.Logs = ic.out.logs
	receipt.Events = ic.out.events
	e.log.Debug("runtime: transaction committed", "instruction", name, "slot", clock.Slot, "signature", tx.Signature.String(), "events", len(receipt.Events))

	if len(receipt.Events) > 0 && len(e.cfg.Sinks) > 0 {
		e.publish(ctx, &EventBatch{
			Signature:     tx.Signature,
			Slot:          clock.Slot,
			UnixTimestamp: clock.UnixTimestamp,
			ProgramID:     prog.ProgramID(),
			Signer:        msg.Signer,
			Instruction:   name,
			Events:        receipt.Events,
		})
	}
	return receipt, nil
}

// publish delivers a batch to every sink concurrently. Sink failures are logged.
func (e *Executor) publish(ctx context.Context, batch *EventBatch) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.SinkTimeout)
	defer cancel()

	var g errgroup.Group
	for _, sink := range e.cfg.Sinks {
		g.Go(func() error {
			if err := sink.Publish(ctx, batch); err != nil {
				metrics.EventsPublishedTotal.WithLabelValues(sink.Name(), "error").Inc()
				e.log.Warn("runtime: event sink failed", "sink", sink.Name(), "slot", batch.Slot, "error", err)
				return nil
			}
			metrics.EventsPublishedTotal.WithLabelValues(sink.Name(), "success").Inc()
			return nil
		})
	}
	_ = g.Wait()
}
