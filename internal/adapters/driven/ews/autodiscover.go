package ews

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/custodia-labs/ewsync/internal/core/domain"
)

const (
	soapPath = "/autodiscover/autodiscover.svc"
	poxPath  = "/autodiscover/autodiscover.xml"
)

// candidateURLs returns the endpoints to try for a request. An explicit URL is
// used alone; otherwise endpoints are derived from the e-mail domain.
func candidateURLs(req domain.DiscoveryRequest, path string) ([]string, error) {
	if req.URL != "" {
		return []string{req.URL}, nil
	}
	at := strings.LastIndex(req.EmailAddress, "@")
	if at <= 0 || at == len(req.EmailAddress)-1 {
		return nil, fmt.Errorf("%w: cannot derive autodiscover endpoint from %q", domain.ErrInvalidInput, req.EmailAddress)
	}
	host := strings.ToLower(req.EmailAddress[at+1:])
	return []string{
		"https://autodiscover." + host + path,
		"https://" + host + path,
	}, nil
}

// redirectOutcome turns a 3xx response into a URL redirect.
func redirectOutcome(resp *response) (domain.DiscoveryOutcome, error) {
	location := strings.TrimSpace(resp.Header.Get("Location"))
	if location == "" {
		return domain.DiscoveryOutcome{}, fmt.Errorf("%w: %d from %s without Location", domain.ErrMalformedResponse, resp.StatusCode, resp.URL)
	}
	base, err := url.Parse(resp.URL)
	if err != nil {
		return domain.DiscoveryOutcome{}, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	ref, err := url.Parse(location)
	if err != nil {
		return domain.DiscoveryOutcome{}, fmt.Errorf("%w: Location %q: %v", domain.ErrMalformedResponse, location, err)
	}
	return domain.RedirectToURL(base.ResolveReference(ref).String()), nil
}

// toErrorCode reads a wire error code. Blank means no error; unknown codes are kept verbatim.
func toErrorCode(s string) domain.ErrorCode {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.ErrorCodeNoError
	}
	if code, ok := domain.ParseErrorCode(s); ok {
		return code
	}
	return domain.ErrorCode(s)
}
