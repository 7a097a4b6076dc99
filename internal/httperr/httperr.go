// Package httperr defines the API's error vocabulary. Every error carries
// an HTTP status code and, where useful, a Hint telling the caller how to
// fix the request.
package httperr

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error is the wire shape of every non-2xx response body.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("[%d] %s (hint: %s)", e.Code, e.Message, e.Hint)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Predefined errors for the conditions the API reports most often.
var (
	ErrRuleSetNotFound  = &Error{Code: 404, Message: "Rule set not found", Hint: "List your rule sets with GET /rules"}
	ErrTemplateNotFound = &Error{Code: 404, Message: "Template not found", Hint: "List available templates with GET /templates"}
	ErrScenarioNotFound = &Error{Code: 404, Message: "Test scenario not found", Hint: "List available scenarios with GET /scenarios"}
	ErrRateLimited      = &Error{Code: 429, Message: "Too many requests", Hint: "Wait before retrying or raise limits.per_ip in zeropass.yaml"}
	ErrInvalidBody      = &Error{Code: 400, Message: "Invalid request body", Hint: "Body must be valid JSON matching the endpoint schema"}
)

// BadRequest builds a 400 error with a caller-facing message.
func BadRequest(msg string) *Error {
	return &Error{Code: 400, Message: msg}
}

// Internal builds a 500 error. The message should stay generic; detail
// belongs in the server log, not the response.
func Internal(msg string) *Error {
	return &Error{Code: 500, Message: msg}
}

// Response wraps an Error for HTTP JSON responses.
type Response struct {
	Error Error `json:"error"`
}

// Write serializes err as a JSON response with its status code.
func Write(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	json.NewEncoder(w).Encode(Response{Error: *err})
}
