package model

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationFailed is returned when the backend rejects login credentials.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrRegistrationFailed is returned when the backend rejects registration input.
	ErrRegistrationFailed = errors.New("registration failed")

	// ErrTokenDecode is returned when a cached access token cannot be decoded
	// or carries no expiry claim.
	ErrTokenDecode = errors.New("access token could not be decoded")

	// ErrSessionExpired is returned when a decoded token's expiry has passed.
	ErrSessionExpired = errors.New("session expired")

	// ErrMissingPriorState is returned when an update is attempted without the
	// record's previous state.
	ErrMissingPriorState = errors.New("update requires the previous record state")

	// ErrUnauthorized is returned when a resource call is attempted with no
	// cached credential. No request is sent.
	ErrUnauthorized = errors.New("no active session")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Detail)
}

// StatusCode extracts the HTTP status from an APIError anywhere in err's chain.
// It returns 0 when err carries no APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
