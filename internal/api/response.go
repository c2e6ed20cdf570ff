package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Response is the standard envelope for API payloads. Exactly one field
// is set per response.
type Response struct {
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encoding response body", "error", err)
	}
}

// JSON writes data inside the standard envelope.
func JSON(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Response{Data: data})
}

// JSONMessage writes a human-readable confirmation.
func JSONMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Message: message})
}

// JSONErrorMessage writes an error message in the envelope's error field.
func JSONErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Error: message})
}

// JSONRaw writes data without the envelope. The dispatch endpoint returns
// its results/errors object at the top level, mirroring the shape callers
// integrate against.
func JSONRaw(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, data)
}
