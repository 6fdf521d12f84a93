package ews

import (
	"errors"
	"net/http"
)

// Error types for HTTP level failures.
var (
	// ErrUnauthorised indicates missing or rejected credentials.
	ErrUnauthorised = errors.New("ews: unauthorised")

	// ErrForbidden indicates the account lacks permission for the mailbox.
	ErrForbidden = errors.New("ews: forbidden")

	// ErrNotFound indicates the endpoint does not exist.
	ErrNotFound = errors.New("ews: not found")

	// ErrRateLimited indicates the request was throttled.
	ErrRateLimited = errors.New("ews: rate limited")

	// ErrBadRequest indicates the server rejected the request as malformed.
	ErrBadRequest = errors.New("ews: bad request")

	// ErrServerError indicates a server-side failure without a SOAP fault.
	ErrServerError = errors.New("ews: server error")
)

// WrapError converts an HTTP status code to an appropriate error.
// Returns nil for success and redirect codes.
func WrapError(statusCode int) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorised
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusBadRequest:
		return ErrBadRequest
	default:
		if statusCode >= 500 {
			return ErrServerError
		}
		return nil
	}
}

// IsRedirect checks if the status code carries a Location to follow.
func IsRedirect(statusCode int) bool {
	switch statusCode {
	case http.StatusMovedPermanently, http.StatusFound,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// IsRetryable checks if the status code indicates a transient failure.
func IsRetryable(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout
}
