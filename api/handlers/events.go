package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/malbeclabs/biox/indexer/pkg/events"
)

type EventRowResponse struct {
	EventTime   time.Time       `json:"eventTime"`
	Slot        uint64          `json:"slot"`
	Signature   string          `json:"signature"`
	EventIndex  uint16          `json:"eventIndex"`
	Signer      string          `json:"signer"`
	Instruction string          `json:"instruction"`
	EventName   string          `json:"eventName"`
	PaperID     *uint64         `json:"paperId,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

type EventsResponse struct {
	Items []EventRowResponse `json:"items"`
	Limit int                `json:"limit"`
}

func newEventsResponse(rows []events.Row, limit int) EventsResponse {
	items := make([]EventRowResponse, 0, len(rows))
	for _, row := range rows {
		payload := json.RawMessage(row.Payload)
		if !json.Valid(payload) {
			payload = json.RawMessage("null")
		}
		items = append(items, EventRowResponse{
			EventTime:   row.EventTime,
			Slot:        row.Slot,
			Signature:   row.Signature,
			EventIndex:  row.EventIndex,
			Signer:      row.Signer,
			Instruction: row.Instruction,
			EventName:   row.EventName,
			PaperID:     row.PaperID,
			Payload:     payload,
		})
	}
	return EventsResponse{Items: items, Limit: limit}
}

func (a *API) eventsAvailable(w http.ResponseWriter) bool {
	if a.cfg.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "events_unavailable", "event history is not configured")
		return false
	}
	return true
}

// GetPaperEvents returns a paper's event history, newest first.
func (a *API) GetPaperEvents(w http.ResponseWriter, r *http.Request) {
	if !a.eventsAvailable(w) {
		return
	}
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	limit := ParsePagination(r, events.DefaultQueryLimit).Limit
	rows, err := a.cfg.Events.PaperEvents(r.Context(), id, limit)
	if err != nil {
		a.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEventsResponse(rows, limit))
}

// GetRecentEvents returns the latest events, optionally only those named by ?name=.
func (a *API) GetRecentEvents(w http.ResponseWriter, r *http.Request) {
	if !a.eventsAvailable(w) {
		return
	}
	limit := ParsePagination(r, events.DefaultQueryLimit).Limit
	rows, err := a.cfg.Events.RecentEvents(r.Context(), r.URL.Query().Get("name"), limit)
	if err != nil {
		a.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEventsResponse(rows, limit))
}

type FundingDailyResponse struct {
	PaperID uint64              `json:"paperId"`
	Days    []events.FundingDay `json:"days"`
}

// GetFundingDaily returns a paper's per-day contribution totals.
func (a *API) GetFundingDaily(w http.ResponseWriter, r *http.Request) {
	if !a.eventsAvailable(w) {
		return
	}
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	days, err := a.cfg.Events.FundingDaily(r.Context(), id, ParsePagination(r, events.DefaultQueryLimit).Limit)
	if err != nil {
		a.writeBackendError(w, r, err)
		return
	}
	if days == nil {
		days = []events.FundingDay{}
	}
	writeJSON(w, http.StatusOK, FundingDailyResponse{PaperID: id, Days: days})
}
