package ews

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/custodia-labs/ewsync/internal/adapters/driven/auth"
)

// newTestClient returns a client without rate limiting.
func newTestClient() *Client {
	return NewClient(Options{
		Limiter: NewRateLimiterWithConfig(RateLimitConfig{}),
		Tokens:  auth.NewBasicTokenProvider("alice@example.com", "pw"),
	})
}

// recordedRequest is a request body and headers captured by a test server.
type recordedRequest struct {
	Path   string
	Header http.Header
	Body   string
}

// fakeServer replies with canned responses and records requests.
type fakeServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r *http.Request)
}

func newFakeServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *fakeServer {
	t.Helper()
	fs := &fakeServer{handler: handler}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fs.mu.Lock()
		fs.requests = append(fs.requests, recordedRequest{Path: r.URL.Path, Header: r.Header.Clone(), Body: string(body)})
		fs.mu.Unlock()
		fs.handler(w, r)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) recorded() []recordedRequest {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]recordedRequest(nil), fs.requests...)
}

// xmlReply writes body as a 200 XML response.
func xmlReply(body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		_, _ = io.WriteString(w, body)
	}
}
