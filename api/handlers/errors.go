package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/malbeclabs/biox/api/handlers/dberror"
	"github.com/malbeclabs/biox/ledger/pkg/accountsdb"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`

	// Set for program failures.
	Code      *uint32  `json:"code,omitempty"`
	Name      string   `json:"name,omitempty"`
	Signature string   `json:"signature,omitempty"`
	Logs      []string `json:"logs,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeStoreError maps an account store failure: missing accounts are 404, an
// unreachable store is 503 and anything else is 500.
func (a *API) writeStoreError(w http.ResponseWriter, r *http.Request, what string, err error) {
	if errors.Is(err, accountsdb.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, "not_found", what+" not found")
		return
	}
	a.writeBackendError(w, r, err)
}

func (a *API) writeBackendError(w http.ResponseWriter, r *http.Request, err error) {
	switch dberror.Classify(err) {
	case dberror.ErrorTypeConnectivity, dberror.ErrorTypeTimeout:
		a.log.Warn("api: backend unavailable", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "unavailable", dberror.UserMessage(err))
	default:
		a.log.Error("api: request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", dberror.UserMessage(err))
	}
}
