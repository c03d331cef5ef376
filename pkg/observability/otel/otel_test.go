package otelobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestInitTracerReturnsUsableShutdown(t *testing.T) {
	shutdown := InitTracer("detection-api")
	if shutdown == nil {
		t.Fatal("InitTracer returned a nil shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestWrapHTTPHandlerServesRequests(t *testing.T) {
	h := WrapHTTPHandler("detection-api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestWrapHTTPTransportNeverNil(t *testing.T) {
	if WrapHTTPTransport(nil) == nil {
		t.Fatal("WrapHTTPTransport(nil) must return a usable transport")
	}
	if WrapHTTPTransport(http.DefaultTransport) == nil {
		t.Fatal("WrapHTTPTransport must return a usable transport")
	}
}
