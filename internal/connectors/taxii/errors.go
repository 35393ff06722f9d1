package taxii

import (
	"errors"
	"fmt"
)

// TAXII-specific errors.
var (
	// ErrUnexpectedResponse indicates the server answered with a message
	// of the wrong type.
	ErrUnexpectedResponse = errors.New("taxii: unexpected response")

	// ErrNoEndpoint indicates no poll or inbox URL was configured.
	ErrNoEndpoint = errors.New("taxii: no endpoint URL")
)

// StatusError is a TAXII Status_Message that is not SUCCESS.
type StatusError struct {
	StatusType string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("taxii: status %s", e.StatusType)
	}
	return fmt.Sprintf("taxii: status %s: %s", e.StatusType, e.Message)
}

// HTTPError is a non-2xx HTTP response from a TAXII service.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("taxii: HTTP %d from %s", e.StatusCode, e.URL)
}

// IsUnauthorized checks if the error indicates an authentication failure.
func IsUnauthorized(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 401 || httpErr.StatusCode == 403
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusType == "UNAUTHORIZED"
	}
	return false
}
