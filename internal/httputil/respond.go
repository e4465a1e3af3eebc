// Package httputil provides shared HTTP request and response helpers for the
// API layer.
package httputil

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/atriumhq/atrium/internal/errors"
)

// ErrorBody is the JSON error envelope returned by every API endpoint.
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse wraps the error body under a stable top-level key.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// WriteError renders err as the standard error envelope. Service errors keep
// their code and status; anything else becomes an internal error.
func WriteError(w http.ResponseWriter, err error) {
	se := errors.GetServiceError(err)
	if se == nil {
		se = errors.Internal("", err)
	}
	WriteErrorResponse(w, se.HTTPStatus, string(se.Code), se.Message, se.Details)
}

// WriteErrorResponse renders an explicit error envelope.
func WriteErrorResponse(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	WriteJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message, Details: details}})
}

// Unauthorized renders a 401.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, errors.Unauthorized(message))
}

// Forbidden renders a 403.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, errors.Forbidden(message))
}

// InternalError renders a 500 without leaking the cause to the client.
func InternalError(w http.ResponseWriter, err error) {
	WriteError(w, errors.Internal("", err))
}

// DecodeJSON decodes a request body, rejecting unknown fields.
func DecodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.InvalidInput("invalid request body: " + err.Error())
	}
	return nil
}
