package ews

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/ewsync/internal/core/domain"
	"github.com/custodia-labs/ewsync/internal/core/ports/driven"
	"github.com/custodia-labs/ewsync/internal/logger"
	"github.com/custodia-labs/ewsync/internal/sanitiser"
)

const (
	// DefaultTimeout bounds a single HTTP exchange.
	DefaultTimeout = 100 * time.Second

	// DefaultServerVersion is sent as RequestServerVersion on EWS calls.
	DefaultServerVersion = "Exchange2013_SP1"

	// DefaultUserAgent identifies the client to the server.
	DefaultUserAgent = "ewsync"

	maxResponseSize = 32 << 20
)

// Options configures a Client.
type Options struct {
	// HTTPClient is used for requests. Its CheckRedirect is replaced.
	HTTPClient *http.Client

	// Timeout applies when HTTPClient is nil. Zero means DefaultTimeout.
	Timeout time.Duration

	// Tokens authorises requests. Nil sends requests unauthenticated.
	Tokens driven.TokenProvider

	// Limiter spaces requests. Nil uses NewRateLimiter.
	Limiter *RateLimiter

	// UserAgent overrides DefaultUserAgent.
	UserAgent string

	// ServerVersion overrides DefaultServerVersion.
	ServerVersion string

	// ImpersonatedAddress, when set, adds an ExchangeImpersonation header to EWS calls.
	ImpersonatedAddress string
}

// Client performs authenticated, rate limited XML exchanges.
type Client struct {
	http          *http.Client
	tokens        driven.TokenProvider
	limiter       *RateLimiter
	userAgent     string
	serverVersion string
	impersonate   string
	newRequestID  func() string
}

// NewClient creates a client from options.
func NewClient(opts Options) *Client {
	var hc http.Client
	if opts.HTTPClient != nil {
		hc = *opts.HTTPClient
	} else {
		hc.Timeout = opts.Timeout
		if hc.Timeout <= 0 {
			hc.Timeout = DefaultTimeout
		}
	}
	// Redirects are surfaced to the resolver instead of followed.
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	c := &Client{
		http:          &hc,
		tokens:        opts.Tokens,
		limiter:       opts.Limiter,
		userAgent:     opts.UserAgent,
		serverVersion: opts.ServerVersion,
		impersonate:   opts.ImpersonatedAddress,
		newRequestID:  uuid.NewString,
	}
	if c.limiter == nil {
		c.limiter = NewRateLimiter()
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.serverVersion == "" {
		c.serverVersion = DefaultServerVersion
	}
	return c
}

// Limiter returns the client's rate limiter.
func (c *Client) Limiter() *RateLimiter {
	return c.limiter
}

// response is a fully read HTTP response.
type response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        string
}

// post sends body to url and reads the whole response.
// Transport failures are returned wrapped; HTTP status handling is left to callers.
func (c *Client) post(ctx context.Context, url, contentType string, body []byte) (*response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	requestID := c.newRequestID()
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/xml")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("client-request-id", requestID)
	req.Header.Set("return-client-request-id", "true")

	if c.tokens != nil {
		if err := c.tokens.Authorize(ctx, req); err != nil {
			return nil, fmt.Errorf("authorise request: %w", err)
		}
	}

	logger.Debug("ews: POST %s (request %s)", url, requestID)
	logger.Payload("request "+requestID+" to "+url, body)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	logger.Debug("ews: %s answered %d (%d bytes)", url, resp.StatusCode, len(data))
	logger.Payload("response "+requestID+" from "+url, data)

	if IsRetryable(resp.StatusCode) {
		c.limiter.RecordBackoff(retryAfter(resp.Header))
	}

	return &response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		URL:        url,
	}, nil
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// decodeXML decodes a sanitised response body into v.
func decodeXML(body []byte, v any) error {
	dec := xml.NewDecoder(sanitiser.NewDefaultReader(bytes.NewReader(body)))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, domain.ErrPrologTooLong) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrMalformedResponse, err)
	}
	return nil
}

// encodeXML marshals v behind an XML declaration.
func encodeXML(v any) ([]byte, error) {
	body, err := xml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// statusError describes an unexpected HTTP status.
func statusError(resp *response) error {
	if err := WrapError(resp.StatusCode); err != nil {
		return fmt.Errorf("%w: %s returned %d", err, resp.URL, resp.StatusCode)
	}
	return fmt.Errorf("%w: %s returned unexpected status %d", domain.ErrMalformedResponse, resp.URL, resp.StatusCode)
}
