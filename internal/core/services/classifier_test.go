package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ewsync/internal/core/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		code domain.ErrorCode
		want domain.Classification
	}{
		{domain.ErrorCodeServerBusy, domain.Retryable},
		{domain.ErrorCodeInvalidUser, domain.TerminalClient},
		{domain.ErrorCodeInvalidRequest, domain.TerminalClient},
		{domain.ErrorCodeInvalidSetting, domain.TerminalClient},
		{domain.ErrorCodeSettingIsNotAvailable, domain.TerminalClient},
		{domain.ErrorCodeInvalidDomain, domain.TerminalClient},
		{domain.ErrorCodeNotFederated, domain.TerminalClient},
		{domain.ErrorCodeInternalServerError, domain.TerminalServer},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.code))
		})
	}
}

func TestClassify_IsStable(t *testing.T) {
	for _, code := range domain.ErrorCodes {
		if code == domain.ErrorCodeNoError ||
			code == domain.ErrorCodeRedirectAddress ||
			code == domain.ErrorCodeRedirectURL {
			continue
		}
		first := Classify(code)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, Classify(code), "classification of %s changed", code)
		}
	}
}

func TestClassify_PanicsOnNonErrors(t *testing.T) {
	for _, code := range []domain.ErrorCode{
		domain.ErrorCodeNoError,
		domain.ErrorCodeRedirectAddress,
		domain.ErrorCodeRedirectURL,
	} {
		t.Run(string(code), func(t *testing.T) {
			assert.Panics(t, func() { Classify(code) })
		})
	}
}

func TestClassify_UnknownIsServerError(t *testing.T) {
	assert.Equal(t, domain.TerminalServer, Classify(domain.ErrorCode("NewFangledError")))
}

func TestNewRemoteError(t *testing.T) {
	outcome := domain.DiscoveryError(domain.ErrorCodeInternalServerError, "boom")
	outcome.DebugData = "trace-id=42"

	err := NewRemoteError(outcome)

	assert.Equal(t, domain.ErrorCodeInternalServerError, err.Code)
	assert.Equal(t, "boom", err.Message)
	assert.Equal(t, "trace-id=42", err.DebugData)
	assert.Equal(t, domain.TerminalServer, err.Class)
	assert.False(t, err.Retryable())
}

func TestOutcomeError(t *testing.T) {
	tests := []struct {
		name      string
		code      domain.ErrorCode
		malformed bool
	}{
		{name: "classified", code: domain.ErrorCodeInvalidUser},
		{name: "unknown code", code: "SomethingNew"},
		{name: "redirect url", code: domain.ErrorCodeRedirectURL, malformed: true},
		{name: "redirect address", code: domain.ErrorCodeRedirectAddress, malformed: true},
		{name: "no error", code: domain.ErrorCodeNoError, malformed: true},
		{name: "empty", code: "", malformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() {
				err = OutcomeError(domain.DiscoveryOutcome{Kind: domain.OutcomeError, Code: tt.code})
			})
			if tt.malformed {
				assert.ErrorIs(t, err, domain.ErrMalformedResponse)
				return
			}
			remote, ok := domain.AsRemoteError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, remote.Code)
		})
	}
}
