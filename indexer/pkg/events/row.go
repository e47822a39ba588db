// Package events stores program events in ClickHouse as an append-only fact table.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/malbeclabs/biox/ledger/pkg/runtime"
	"github.com/malbeclabs/biox/program/pkg/state"
)

const (
	TableName        = "program_events"
	FundingDailyView = "paper_funding_daily"
)

// Row is one event in program_events. (signature, event_index) identifies it.
type Row struct {
	EventTime   time.Time `ch:"event_time" json:"eventTime"`
	Slot        uint64    `ch:"slot" json:"slot"`
	Signature   string    `ch:"signature" json:"signature"`
	EventIndex  uint16    `ch:"event_index" json:"eventIndex"`
	ProgramID   string    `ch:"program_id" json:"programId"`
	Signer      string    `ch:"signer" json:"signer"`
	Instruction string    `ch:"instruction" json:"instruction"`
	EventName   string    `ch:"event_name" json:"eventName"`
	PaperID     *uint64   `ch:"paper_id" json:"paperId,omitempty"`
	Payload     string    `ch:"payload" json:"payload"`
}

// RowsFromBatch flattens a committed batch into table rows. Payloads are the JSON
// form of each event.
func RowsFromBatch(batch *runtime.EventBatch) ([]Row, error) {
	rows := make([]Row, 0, len(batch.Events))
	for i, ev := range batch.Events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", ev.EventName(), err)
		}
		ts := state.EventTimestamp(ev)
		if ts == 0 {
			ts = batch.UnixTimestamp
		}
		row := Row{
			EventTime:   time.Unix(ts, 0).UTC(),
			Slot:        batch.Slot,
			Signature:   batch.Signature.String(),
			EventIndex:  uint16(i),
			ProgramID:   batch.ProgramID.String(),
			Signer:      batch.Signer.String(),
			Instruction: batch.Instruction,
			EventName:   ev.EventName(),
			Payload:     string(payload),
		}
		if id, ok := state.EventPaperID(ev); ok {
			row.PaperID = &id
		}
		rows = append(rows, row)
	}
	return rows, nil
}
