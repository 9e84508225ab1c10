package adminapi

import (
	"encoding/json"
	"net/http"

	"mergetree-writer/internal/errors"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Path  string `json:"path,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a writer error Kind onto an HTTP status the way the
// structured error taxonomy intends: SchemaMismatch and TooManyParts are
// client errors, ReservationFailure and IOError are retryable server
// errors, and anything else (including a LogicalError, a programmer
// bug) is a non-retryable server error.
func writeError(w http.ResponseWriter, err error) {
	we, ok := errors.AsWriterError(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch we.Kind {
	case errors.KindSchemaMismatch, errors.KindTooManyParts:
		status = http.StatusBadRequest
	case errors.KindReservationFailure, errors.KindIOError:
		status = http.StatusServiceUnavailable
	case errors.KindLogicalError:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorResponse{Error: we.Error(), Kind: string(we.Kind)})
}
