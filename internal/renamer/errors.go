package renamer

import (
	"errors"
	"fmt"
)

// APIError is returned when the backend answers with success=false or a
// non-2xx status. Message is the backend's error text, verbatim.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: backend error (status %d): %s", e.Op, e.StatusCode, e.Message)
}

// TransportError wraps network and decoding failures.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError is returned before any request is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// BackendMessage returns the backend's own error text when err carries one.
func BackendMessage(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message, true
	}
	return "", false
}

// IsValidation reports whether err was raised before any request was sent.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
