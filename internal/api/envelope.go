package api

import (
	"encoding/json"
	"net/http"
)

// Fixed numeric error codes, preserved exactly for client compatibility.
const (
	CodeNotFound       = 1513606716
	CodeNoFileAttached = 1613606336
	CodeSaveFailed     = 1613606485
	CodeDecodeFailed   = 1613606512
)

// Envelope is the fixed outer JSON shape wrapping every API response.
// On success Errors is an empty array; on failure Data is an empty array
// and Errors carries a single message/code object.
type Envelope struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
	Errors any    `json:"errors"`
}

// EnvelopeError is the errors object of a failure envelope.
type EnvelopeError struct {
	Message   string `json:"message"`
	ErrorCode int    `json:"error_code"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes a success envelope around data.
func WriteSuccess(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Envelope{
		Status: "success",
		Data:   data,
		Errors: []any{},
	})
}

// WriteFailure writes a failure envelope with a message and numeric code.
func WriteFailure(w http.ResponseWriter, status int, message string, code int) {
	WriteJSON(w, status, Envelope{
		Status: "failure",
		Data:   []any{},
		Errors: EnvelopeError{Message: message, ErrorCode: code},
	})
}
