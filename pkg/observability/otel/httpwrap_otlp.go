//go:build otelotlp

package otelobs

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// WrapHTTPHandler decorates the handler with otelhttp so every route produces
// a server span. W3C tracecontext propagation is installed globally.
func WrapHTTPHandler(serviceName string, h http.Handler) http.Handler {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return otelhttp.NewHandler(h, serviceName)
}

// WrapHTTPTransport decorates a RoundTripper so outbound provider calls carry
// traceparent headers and appear as client spans.
func WrapHTTPTransport(t http.RoundTripper) http.RoundTripper {
	if t == nil {
		t = http.DefaultTransport
	}
	return otelhttp.NewTransport(t)
}
