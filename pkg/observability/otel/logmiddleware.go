package otelobs

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// AccessLogMiddleware emits one structured access line per request with
// trace/span ids when a span is active, and mirrors them onto Trace-Id and
// Span-Id response headers for correlation.
func AccessLogMiddleware(log *logrus.Entry, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		fields := logrus.Fields{"method": r.Method, "path": r.URL.Path}
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
			sr.Header().Set("Trace-Id", sc.TraceID().String())
			sr.Header().Set("Span-Id", sc.SpanID().String())
		}

		next.ServeHTTP(sr, r)

		fields["status"] = sr.status
		fields["dur_ms"] = time.Since(start).Milliseconds()
		log.WithFields(fields).Info("access")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}
