// Package ews implements the autodiscover and synchronisation transports
// over HTTP.
//
// Requests are SOAP or POX envelopes built with encoding/xml. Every response body
// passes through the sanitiser before it is decoded, so stray control characters
// and legacy code page bytes do not break parsing. The HTTP client never follows
// redirects itself; a 3xx answer from an autodiscover endpoint becomes a URL
// redirect outcome for the resolver to judge.
package ews
