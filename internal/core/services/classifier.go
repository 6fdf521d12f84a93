package services

import (
	"fmt"

	"github.com/custodia-labs/ewsync/internal/core/domain"
)

// Classify maps an autodiscover error code onto the retry taxonomy.
//
// NoError, RedirectAddress and RedirectUrl are not errors: the resolver consumes
// redirects itself. Passing any of them is a programming error and panics.
func Classify(code domain.ErrorCode) domain.Classification {
	switch code {
	case domain.ErrorCodeServerBusy:
		return domain.Retryable
	case domain.ErrorCodeInvalidUser,
		domain.ErrorCodeInvalidRequest,
		domain.ErrorCodeInvalidSetting,
		domain.ErrorCodeSettingIsNotAvailable,
		domain.ErrorCodeInvalidDomain,
		domain.ErrorCodeNotFederated:
		return domain.TerminalClient
	case domain.ErrorCodeInternalServerError:
		return domain.TerminalServer
	case domain.ErrorCodeNoError, domain.ErrorCodeRedirectAddress, domain.ErrorCodeRedirectURL:
		panic(fmt.Sprintf("services: Classify called with non-error code %q", code))
	default:
		// Codes this client does not know are treated as server faults.
		return domain.TerminalServer
	}
}

// NewRemoteError builds a classified RemoteError from an error outcome.
func NewRemoteError(outcome domain.DiscoveryOutcome) *domain.RemoteError {
	return &domain.RemoteError{
		Code:      outcome.Code,
		Message:   outcome.Message,
		DebugData: outcome.DebugData,
		Class:     Classify(outcome.Code),
	}
}

// OutcomeError converts an error outcome into an error. An outcome that
// carries NoError or a redirect code cannot be classified and is reported
// as a malformed response instead.
func OutcomeError(outcome domain.DiscoveryOutcome) error {
	switch outcome.Code {
	case domain.ErrorCodeNoError, domain.ErrorCodeRedirectAddress, domain.ErrorCodeRedirectURL, "":
		return fmt.Errorf("%w: error outcome with code %q", domain.ErrMalformedResponse, outcome.Code)
	default:
		return NewRemoteError(outcome)
	}
}
