// Package respond provides JSON response helpers for the HTTP API.
package respond

import (
	"encoding/json"
	"net/http"
)

// Error is an API error payload. Details is optional extra context for the
// caller (a field name, an allowed range).
type Error struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Details string `json:"details,omitempty"`
}

// StatusCode returns the HTTP status, defaulting to 500.
func (e Error) StatusCode() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// JSON writes v as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes an error payload with the error's status.
func WriteError(w http.ResponseWriter, e Error) {
	JSON(w, e.StatusCode(), e)
}

// BadRequest creates a 400 error.
func BadRequest(message, details string) Error {
	return Error{Status: http.StatusBadRequest, Message: message, Details: details}
}

// NotFound creates a 404 error.
func NotFound(message string) Error {
	return Error{Status: http.StatusNotFound, Message: message}
}

// TooManyRequests creates a 429 error.
func TooManyRequests(message string) Error {
	if message == "" {
		message = "rate limit exceeded"
	}
	return Error{Status: http.StatusTooManyRequests, Message: message}
}

// Internal creates a 500 error. The message stays generic so internal
// details never leak to callers.
func Internal() Error {
	return Error{Status: http.StatusInternalServerError, Message: "internal server error"}
}
