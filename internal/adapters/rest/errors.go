package rest

import (
	"errors"
	"fmt"
)

// Sentinel kinds for client errors.
var (
	ErrNoBaseURL = errors.New("base URL not configured")
)

// StatusError reports a non-2xx response from the backend of record.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Endpoint, e.Code)
}

// IsStatus reports whether err wraps a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
