package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"scamshield/pkg/apperr"
	"scamshield/pkg/logging"
)

func TestAssessDecodesOpinion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/assess" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req["route"] != "detect/chat" {
			t.Errorf("route = %q", req["route"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"riskScore": 80, "confidence": 90, "flags": ["known_scammer"]}`))
	}))
	defer srv.Close()

	c := NewClient("test", srv.URL, time.Second, logging.New("test"))
	op, err := c.Assess(context.Background(), "detect/chat", "wire me money")
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if op.RiskScore == nil || *op.RiskScore != 80 {
		t.Fatalf("riskScore = %v", op.RiskScore)
	}
	if op.Confidence == nil || *op.Confidence != 90 {
		t.Fatalf("confidence = %v", op.Confidence)
	}
	if len(op.Flags) != 1 || op.Flags[0] != "known_scammer" {
		t.Fatalf("flags = %v", op.Flags)
	}
}

func TestAssessServerErrorIsNoOpinion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient("test", srv.URL, 200*time.Millisecond, logging.New("test"))
	op, err := c.Assess(context.Background(), "detect/chat", "hello")
	if err == nil {
		t.Fatal("expected error from failing provider")
	}
	if !apperr.IsKind(err, apperr.KindUpstream) {
		t.Fatalf("err = %v, want KindUpstream", err)
	}
	if op != nil {
		t.Fatal("failed call must not return an opinion")
	}
}

func TestClientOutboundTransportConfigured(t *testing.T) {
	c := NewClient("test", "http://localhost:9", time.Second, logging.New("test"))
	if c.http.Transport == nil {
		t.Fatal("outbound transport not configured")
	}
}

func TestAssessTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient("slow", srv.URL, 50*time.Millisecond, logging.New("test"))
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	if _, err := c.Assess(ctx, "detect/chat", "hello"); err == nil {
		t.Fatal("expected timeout error")
	}
}
