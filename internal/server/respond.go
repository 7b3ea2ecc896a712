package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const maxBodyBytes = 1 << 16

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, kind, description string) {
	writeJSON(w, code, ErrorResponse{Error: kind, ErrorDescription: description})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		desc := "Invalid request body"
		if errors.Is(err, io.EOF) {
			desc = "Empty request body"
		}
		writeError(w, http.StatusBadRequest, "invalid_request", desc)
		return false
	}
	return true
}
