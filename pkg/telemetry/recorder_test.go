package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestRingEvictsOldestFirst(t *testing.T) {
	r := NewRecorder(3, prometheus.NewRegistry(), testLogger())

	for i := 0; i < 5; i++ {
		r.Record(Event{Route: "r" + strconv.Itoa(i), StatusCode: 200, Success: true})
	}

	events := r.Snapshot()
	if len(events) != 3 {
		t.Fatalf("ring length = %d, want 3", len(events))
	}
	for i, want := range []string{"r2", "r3", "r4"} {
		if events[i].Route != want {
			t.Fatalf("events[%d].Route = %q, want %q", i, events[i].Route, want)
		}
	}
}

func TestRecordFillsIDAndTimestamp(t *testing.T) {
	r := NewRecorder(0, prometheus.NewRegistry(), testLogger())
	ev := r.Record(Event{Route: "detect", StatusCode: 200, Success: true})
	if ev.ID == "" {
		t.Fatal("event ID not assigned")
	}
	if ev.CreatedAt.IsZero() {
		t.Fatal("event timestamp not assigned")
	}
}

func TestPrometheusSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(10, reg, testLogger())

	r.Record(Event{Route: "detect", StatusCode: 200, Success: true, DurationMs: 12})
	r.Record(Event{Route: "detect", StatusCode: 200, Success: true, Cached: true, DurationMs: 1})
	r.Record(Event{Route: "detect", StatusCode: 429, DurationMs: 0})

	if got := testutil.ToFloat64(r.ringSize); got != 3 {
		t.Fatalf("ring size gauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(r.requests.WithLabelValues("detect", "false", "2xx", "true")); got != 1 {
		t.Fatalf("uncached 2xx counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.requests.WithLabelValues("detect", "true", "2xx", "true")); got != 1 {
		t.Fatalf("cached 2xx counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.requests.WithLabelValues("detect", "false", "4xx", "false")); got != 1 {
		t.Fatalf("4xx counter = %v, want 1", got)
	}
}

func TestLedgerSinkReceivesEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.jsonl")
	r := NewRecorder(10, prometheus.NewRegistry(), testLogger(),
		&LedgerSink{Path: path, Service: "detection-api"})

	r.Record(Event{Route: "detect", StatusCode: 200, Success: true})

	// Sink writes are asynchronous; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(path); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("ledger file never appeared")
		}
		time.Sleep(10 * time.Millisecond)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("ledger file is empty")
	}
	var line struct {
		Service string `json:"service"`
		Kind    string `json:"kind"`
	}
	if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
		t.Fatalf("ledger line not JSON: %v", err)
	}
	if line.Service != "detection-api" || line.Kind != "telemetry" {
		t.Fatalf("ledger line = %+v", line)
	}
}

type blockingSink struct {
	mu      sync.Mutex
	writes  int
	release chan struct{}
}

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Write(ctx context.Context, _ Event) error {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}

func TestSaturatedSinkDropsInsteadOfBlocking(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	r := NewRecorder(512, prometheus.NewRegistry(), testLogger(), sink)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < sinkPermits*4; i++ {
			r.Record(Event{Route: "detect", StatusCode: 200, Success: true})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a saturated sink")
	}
	close(sink.release)

	sink.mu.Lock()
	writes := sink.writes
	sink.mu.Unlock()
	if writes > sinkPermits {
		t.Fatalf("in-flight sink writes = %d, want at most %d", writes, sinkPermits)
	}
}
