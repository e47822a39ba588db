package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/biox/api/metrics"
	"github.com/malbeclabs/biox/ledger/pkg/accountsdb"
	"github.com/malbeclabs/biox/ledger/pkg/runtime"
	"github.com/mr-tron/base58"
)

const maxTransactionBody = 64 << 10

const (
	EncodingBase64 = "base64"
	EncodingBase58 = "base58"
)

type SubmitTransactionRequest struct {
	// Transaction is the signature followed by the borsh encoded message.
	Transaction string `json:"transaction"`
	Encoding    string `json:"encoding,omitempty"`
}

type EventResponse struct {
	Name string        `json:"name"`
	Data runtime.Event `json:"data"`
}

type ReceiptResponse struct {
	Signature     solana.Signature `json:"signature"`
	Slot          uint64           `json:"slot"`
	UnixTimestamp int64            `json:"unixTimestamp"`
	Instruction   string           `json:"instruction"`
	Events        []EventResponse  `json:"events"`
	Logs          []string         `json:"logs"`
}

func newReceiptResponse(receipt *runtime.Receipt) ReceiptResponse {
	resp := ReceiptResponse{
		Signature:     receipt.Signature,
		Slot:          receipt.Slot,
		UnixTimestamp: receipt.UnixTimestamp,
		Instruction:   receipt.Instruction,
		Events:        make([]EventResponse, 0, len(receipt.Events)),
		Logs:          receipt.Logs,
	}
	for _, ev := range receipt.Events {
		resp.Events = append(resp.Events, EventResponse{Name: ev.EventName(), Data: ev})
	}
	if resp.Logs == nil {
		resp.Logs = []string{}
	}
	return resp
}

// DecodeTransaction parses a wire transaction in the given encoding; an empty
// encoding means base64.
func DecodeTransaction(encoded, encoding string) (*runtime.Transaction, error) {
	if encoding == "" {
		encoding = EncodingBase64
	}
	var raw []byte
	var err error
	switch encoding {
	case EncodingBase64:
		raw, err = base64.StdEncoding.DecodeString(encoded)
	case EncodingBase58:
		raw, err = base58.Decode(encoded)
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s transaction: %w", encoding, err)
	}
	return runtime.UnmarshalTransaction(raw)
}

// PostTransaction executes one signed transaction. Program failures answer 400 with
// the program error and its logs; replays answer 409.
func (a *API) PostTransaction(w http.ResponseWriter, r *http.Request) {
	var req SubmitTransactionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTransactionBody)).Decode(&req); err != nil {
		metrics.TransactionsSubmittedTotal.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be a JSON object with a transaction")
		return
	}
	tx, err := DecodeTransaction(req.Transaction, req.Encoding)
	if err != nil {
		metrics.TransactionsSubmittedTotal.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadRequest, "invalid_transaction", err.Error())
		return
	}

	receipt, err := a.cfg.Executor.Execute(r.Context(), tx)
	if err == nil {
		metrics.TransactionsSubmittedTotal.WithLabelValues("success").Inc()
		writeJSON(w, http.StatusOK, newReceiptResponse(receipt))
		return
	}

	if ierr, ok := runtime.AsInstructionError(err); ok {
		metrics.TransactionsSubmittedTotal.WithLabelValues("instruction_error").Inc()
		code := ierr.Code
		resp := ErrorResponse{
			Error:     "instruction_error",
			Message:   ierr.Message,
			Code:      &code,
			Name:      ierr.Name,
			Signature: tx.Signature.String(),
		}
		if receipt != nil {
			resp.Logs = receipt.Logs
		}
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	switch {
	case errors.Is(err, runtime.ErrSignatureAlreadyProcessed):
		metrics.TransactionsSubmittedTotal.WithLabelValues("replayed").Inc()
		writeError(w, http.StatusConflict, "already_processed", err.Error())
	case errors.Is(err, accountsdb.ErrConflict):
		metrics.TransactionsSubmittedTotal.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, runtime.ErrInvalidSignature),
		errors.Is(err, runtime.ErrMissingRequiredSignature),
		errors.Is(err, runtime.ErrMalformedTransaction):
		metrics.TransactionsSubmittedTotal.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadRequest, "invalid_transaction", err.Error())
	case errors.Is(err, runtime.ErrProgramNotFound):
		metrics.TransactionsSubmittedTotal.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadRequest, "program_not_found", err.Error())
	default:
		metrics.TransactionsSubmittedTotal.WithLabelValues("error").Inc()
		a.writeBackendError(w, r, err)
	}
}
