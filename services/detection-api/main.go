// detection-api is the scam-detection pipeline service: heuristic scoring
// endpoints behind per-user rate limiting and response caching, a chunked
// chat-transcript ingestion protocol, and pull-based metrics.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scamshield/pkg/auth"
	"scamshield/pkg/cache"
	"scamshield/pkg/config"
	"scamshield/pkg/fusion"
	"scamshield/pkg/logging"
	otelobs "scamshield/pkg/observability/otel"
	"scamshield/pkg/provider"
	"scamshield/pkg/ratelimit"
	"scamshield/pkg/store"
	"scamshield/pkg/telemetry"
	"scamshield/pkg/transcript"
	"scamshield/pkg/upload"
)

const serviceName = "detection-api"

func main() {
	config.LoadDotenv()
	log := logging.New(serviceName)

	env := config.Get("ENVIRONMENT", "local")
	expose := env == "" || env == "local"
	port := config.Get("PORT", "8084")
	baseURL := config.Get("PUBLIC_BASE_URL", "http://localhost:"+port)

	shutdownTracer := otelobs.InitTracer(serviceName)
	defer func() { _ = shutdownTracer(context.Background()) }()

	limiter := ratelimit.NewFixedWindowLimiter(
		config.GetInt("RATE_LIMIT_MAX", 15),
		config.GetDurationMS("RATE_LIMIT_WINDOW_MS", time.Minute),
	)
	respCache := cache.New(
		config.GetDurationMS("CACHE_TTL_MS", 5*time.Minute),
		config.GetInt("CACHE_MAX_ENTRIES", cache.DefaultMaxEntries),
	)
	analyzer := transcript.NewAnalyzer()
	fusionEngine := fusion.NewEngine()

	var providerClient *provider.Client
	if url := config.Get("PROVIDER_URL", ""); url != "" {
		providerClient = provider.NewClient(
			config.Get("PROVIDER_NAME", "riskdata"),
			url,
			config.GetDurationMS("PROVIDER_TIMEOUT_MS", 3*time.Second),
			log,
		)
	}

	objects := store.NewFSObjectStore(
		config.Get("OBJECT_STORE_DIR", "data/objects"),
		baseURL,
		config.Get("OBJECT_STORE_SECRET", "dev-signing-secret"),
	)

	var records *store.RecordStore
	if dsn := config.Get("DATABASE_URL", ""); dsn != "" {
		var err error
		records, err = store.Open(dsn)
		if err != nil {
			log.WithError(err).Fatal("connect postgres")
		}
		defer records.Close()
	} else {
		log.Warn("DATABASE_URL not set, imports and scan history held in memory only")
	}

	var imports importReader
	var importSaver upload.ImportSaver
	var scans scanSaver
	if records != nil {
		imports, importSaver, scans = records, records, records
	} else {
		mem := newMemImports()
		imports, importSaver = mem, mem
	}

	sinks := []telemetry.Sink{
		&telemetry.LedgerSink{
			Path:    config.Get("TELEMETRY_LEDGER_PATH", "data/ledger-detection.jsonl"),
			Service: serviceName,
		},
	}
	if brokers := config.Get("TELEMETRY_KAFKA_BROKERS", ""); brokers != "" {
		kafkaSink, err := telemetry.NewKafkaSink(
			strings.Split(brokers, ","),
			config.Get("TELEMETRY_KAFKA_TOPIC", "scamshield.telemetry"),
		)
		if err != nil {
			log.WithError(err).Fatal("connect kafka telemetry sink")
		}
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
	}
	if records != nil {
		sinks = append(sinks, &telemetry.StoreSink{Records: records})
	}
	recorder := telemetry.NewRecorder(
		config.GetInt("TELEMETRY_RING_CAPACITY", telemetry.DefaultRingCapacity),
		prometheus.DefaultRegisterer,
		log,
		sinks...,
	)

	uploads := upload.NewManager(
		config.GetInt64("UPLOAD_CHUNK_SIZE", upload.DefaultChunkSize),
		config.GetDurationMS("UPLOAD_SESSION_TTL_MS", upload.DefaultSessionTTL),
		analyzer,
		objects,
		importSaver,
		log,
	)

	a := &api{
		log:      log,
		auth:     auth.NewMiddleware(config.Get("JWT_SECRET", ""), config.GetBool("AUTH_DISABLE", false), expose),
		limiter:  limiter,
		cache:    respCache,
		analyzer: analyzer,
		fusion:   fusionEngine,
		provider: providerClient,
		uploads:  uploads,
		objects:  objects,
		imports:  imports,
		scans:    scans,
		recorder: recorder,
		expose:   expose,
		signTTL:  config.GetDurationMS("DOWNLOAD_URL_TTL_MS", 15*time.Minute),
	}
	if !config.GetBool("AUTH_DISABLE", false) && config.Get("JWT_SECRET", "") == "" {
		log.Fatal("JWT_SECRET is required unless AUTH_DISABLE=1")
	}

	mux := http.NewServeMux()
	a.routes(mux, promhttp.Handler())

	handler := otelobs.WrapHTTPHandler(serviceName, otelobs.AccessLogMiddleware(log, mux))
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("detection-api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
}
