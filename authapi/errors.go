package authapi

import (
	"errors"
	"fmt"
)

// ErrInvalidResponse indicates a 2xx response whose payload could not be
// decoded or is missing required fields.
var ErrInvalidResponse = errors.New("invalid response from auth api")

// HTTPError represents a non-2xx HTTP response from the auth API.
type HTTPError struct {
	StatusCode int
	Message    string

	// fromServer is set when Message came from the JSON error payload.
	fromServer bool
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsStatus returns true if err (or any wrapped error) is an HTTPError with
// the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}

// ServerMessage returns the human-readable message the server attached to a
// failed request, if any.
func ServerMessage(err error) (string, bool) {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || !httpErr.fromServer || httpErr.Message == "" {
		return "", false
	}
	return httpErr.Message, true
}
