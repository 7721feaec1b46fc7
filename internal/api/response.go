// Package api implements the HTTP surface of the gateway.
package api

import (
	"encoding/json"
	"net/http"
)

// Body status values shared by every JSON reply.
const (
	statusOK      = "ok"
	statusError   = "error"
	statusSkipped = "skipped"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteRawJSON writes an already encoded JSON body unchanged.
func WriteRawJSON(w http.ResponseWriter, status int, body json.RawMessage) {
	if len(body) == 0 {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// WriteError writes an error body.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Status: statusError, Message: message})
}

// SkippedResponse is returned when a gated operation did not run.
type SkippedResponse struct {
	Status  string `json:"status"`
	Mode    string `json:"mode"`
	Message string `json:"message"`
}

// PageResponse is the standard list envelope for paginated endpoints.
type PageResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
