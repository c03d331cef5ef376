// Package telemetry records one event per pipeline invocation: a bounded
// in-memory ring for the recent-events endpoint, Prometheus series for
// scraping, and best-effort fan-out to durable sinks. Recording never blocks
// the request path and never fails it.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// DefaultRingCapacity bounds the in-memory event ring.
const DefaultRingCapacity = 200

// sinkPermits bounds concurrent in-flight sink writes. Saturation drops the
// event rather than queueing unboundedly.
const sinkPermits = 16

// Event is one recorded pipeline invocation.
type Event struct {
	ID         string            `json:"id"`
	Route      string            `json:"route"`
	UserID     string            `json:"userId"`
	CreatedAt  time.Time         `json:"createdAt"`
	DurationMs int64             `json:"durationMs"`
	Cached     bool              `json:"cached"`
	Success    bool              `json:"success"`
	StatusCode int               `json:"statusCode"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Sink receives a durable copy of each event.
type Sink interface {
	Write(ctx context.Context, ev Event) error
	Name() string
}

// Recorder holds the ring and the Prometheus series.
type Recorder struct {
	mu   sync.Mutex
	ring []Event
	cap  int

	sinks []Sink
	sem   *semaphore.Weighted
	log   *logrus.Entry

	ringSize  prometheus.Gauge
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewRecorder registers the telemetry series on reg and returns the recorder.
// capacity <= 0 uses DefaultRingCapacity.
func NewRecorder(capacity int, reg prometheus.Registerer, log *logrus.Entry, sinks ...Sink) *Recorder {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	r := &Recorder{
		cap:   capacity,
		sinks: sinks,
		sem:   semaphore.NewWeighted(sinkPermits),
		log:   log.WithField("component", "telemetry"),
		ringSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scamshield_telemetry_ring_size",
			Help: "Events currently held in the telemetry ring.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scamshield_requests_total",
			Help: "Pipeline invocations by route, cache hit, status, and outcome.",
		}, []string{"route", "cached", "status", "success"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scamshield_request_duration_seconds",
			Help:    "Pipeline invocation latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	reg.MustRegister(r.ringSize, r.requests, r.durations)
	return r
}

// Record stores the event in the ring, updates the Prometheus series, and
// fans it out to sinks in the background. The event's ID and CreatedAt are
// filled in when empty.
func (r *Recorder) Record(ev Event) Event {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	r.ring = append(r.ring, ev)
	if len(r.ring) > r.cap {
		// FIFO: evict the oldest.
		r.ring = r.ring[len(r.ring)-r.cap:]
	}
	size := len(r.ring)
	r.mu.Unlock()

	r.ringSize.Set(float64(size))
	r.requests.WithLabelValues(ev.Route, boolLabel(ev.Cached), statusLabel(ev.StatusCode), boolLabel(ev.Success)).Inc()
	r.durations.WithLabelValues(ev.Route).Observe(float64(ev.DurationMs) / 1000)

	for _, sink := range r.sinks {
		if !r.sem.TryAcquire(1) {
			r.log.WithField("sink", sink.Name()).Warn("telemetry sink saturated, dropping event")
			continue
		}
		go func(s Sink) {
			defer r.sem.Release(1)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Write(ctx, ev); err != nil {
				r.log.WithError(err).WithField("sink", s.Name()).Warn("telemetry sink write failed")
			}
		}(sink)
	}
	return ev
}

// Snapshot returns the ring contents oldest-first.
func (r *Recorder) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.ring))
	copy(out, r.ring)
	return out
}

// Len reports the current ring occupancy.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ring)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
