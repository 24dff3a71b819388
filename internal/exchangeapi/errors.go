package exchangeapi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized is matched by any error caused by a 401 response
var ErrUnauthorized = errors.New("exchange: unauthorized")

// APIError is a non-2xx response carrying the server's error message
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("exchange: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("exchange: %d %s", e.StatusCode, e.Message)
}

// Unwrap lets errors.Is(err, ErrUnauthorized) match 401 responses
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// TransientError is a failure that says nothing about the credentials:
// network errors, timeouts and 5xx responses.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("exchange: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsCredential reports whether err proves the token was rejected
func IsCredential(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsTransient reports whether err is a network failure or server error
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}
