//go:build !otelotlp

package otelobs

import "net/http"

// WrapHTTPHandler is a no-op by default. Build with -tags otelotlp to emit
// server spans.
func WrapHTTPHandler(serviceName string, h http.Handler) http.Handler { return h }

// WrapHTTPTransport is a no-op by default. Build with -tags otelotlp to
// propagate trace context on outbound provider calls.
func WrapHTTPTransport(t http.RoundTripper) http.RoundTripper {
	if t == nil {
		return http.DefaultTransport
	}
	return t
}
