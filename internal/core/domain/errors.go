package domain

import (
	"errors"
	"fmt"
)

// Local errors are raised by the client itself and are always fatal to the
// current call. They are never retried internally.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMaxRedirectionHops indicates the autodiscover redirect chain used up
	// its hop budget without resolving.
	ErrMaxRedirectionHops = errors.New("maximum redirection hops exceeded")

	// ErrInsecureRedirect indicates a redirect target that is not reachable over HTTPS
	// while secure-only discovery is enforced.
	ErrInsecureRedirect = errors.New("redirect target is not a secure URL")

	// ErrRedirectLoop indicates a redirect back to an already visited target.
	// Only raised when loop detection is enabled.
	ErrRedirectLoop = errors.New("redirect loop detected")

	// ErrMalformedResponse indicates a response that could not be parsed.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrPrologTooLong indicates the XML declaration did not terminate within
	// the lookahead limit.
	ErrPrologTooLong = errors.New("xml prolog too long")

	// ErrInvalidRule indicates a sanitiser rule that cannot be applied,
	// for example a code point outside the Basic Multilingual Plane.
	ErrInvalidRule = errors.New("invalid sanitiser rule")

	// ErrSyncStateInvalid indicates the server rejected the sync-state token.
	// Synchronisation must restart from an empty token.
	ErrSyncStateInvalid = errors.New("sync state is no longer valid, full resync required")

	// ErrSyncInProgress indicates another synchronisation of the same folder and scope is running.
	ErrSyncInProgress = errors.New("sync already in progress")
)

var localErrors = []error{
	ErrInvalidInput,
	ErrMaxRedirectionHops,
	ErrInsecureRedirect,
	ErrRedirectLoop,
	ErrMalformedResponse,
	ErrPrologTooLong,
	ErrInvalidRule,
	ErrSyncInProgress,
}

// IsLocal reports whether err was raised locally by the client rather than
// returned by a server or the transport.
func IsLocal(err error) bool {
	for _, target := range localErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// RemoteError is a structured error payload returned by an autodiscover server.
type RemoteError struct {
	// Code is the autodiscover error code.
	Code ErrorCode
	// Message is the server supplied error message.
	Message string
	// DebugData carries any diagnostic payload the server attached.
	DebugData string
	// Class is the retry classification of Code.
	Class Classification
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("autodiscover error %s (%s)", e.Code, e.Class)
	}
	return fmt.Sprintf("autodiscover error %s (%s): %s", e.Code, e.Class, e.Message)
}

// Retryable reports whether the caller may retry the whole operation.
func (e *RemoteError) Retryable() bool {
	return e.Class == Retryable
}

// AsRemoteError extracts a RemoteError from an error chain.
func AsRemoteError(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// SettingError reports a single requested setting the server could not return.
// The setting name and the message are kept apart; neither embeds the other.
type SettingError struct {
	SettingName string
	Code        ErrorCode
	Message     string
}

// Error implements the error interface.
func (e *SettingError) Error() string {
	return fmt.Sprintf("setting %s: %s: %s", e.SettingName, e.Code, e.Message)
}

// ServiceError is an error response from an EWS operation.
type ServiceError struct {
	// ResponseCode is the EWS response code, e.g. "ErrorItemNotFound".
	ResponseCode string
	// MessageText is the human readable message.
	MessageText string
	// BackOffMilliseconds is set for ErrorServerBusy responses.
	BackOffMilliseconds int
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.MessageText == "" {
		return "ews: " + e.ResponseCode
	}
	return fmt.Sprintf("ews: %s: %s", e.ResponseCode, e.MessageText)
}

// Unwrap maps well known response codes onto sentinel errors.
func (e *ServiceError) Unwrap() error {
	if e.ResponseCode == "ErrorInvalidSyncStateData" {
		return ErrSyncStateInvalid
	}
	return nil
}

// Retryable reports whether the response code signals a transient server condition.
func (e *ServiceError) Retryable() bool {
	return e.ResponseCode == "ErrorServerBusy"
}
