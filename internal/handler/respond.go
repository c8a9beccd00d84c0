package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/prospector/internal/validate"
)

const maxBodyBytes = 1 << 16

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a size-limited JSON body into v. An empty body decodes as
// the zero value.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// validBody validates body and writes the response when it fails. Field
// failures are the caller's fault; anything else is ours.
func validBody(w http.ResponseWriter, v *validate.Validator, logger *slog.Logger, body any) bool {
	res, err := v.Struct(body)
	if err != nil {
		logger.Error("validate request", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}
	if !res.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": res.Errors})
		return false
	}
	return true
}
