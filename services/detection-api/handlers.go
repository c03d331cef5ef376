package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"scamshield/pkg/apperr"
	"scamshield/pkg/auth"
	"scamshield/pkg/cache"
	"scamshield/pkg/fusion"
	"scamshield/pkg/logging"
	"scamshield/pkg/provider"
	"scamshield/pkg/ratelimit"
	"scamshield/pkg/store"
	"scamshield/pkg/telemetry"
	"scamshield/pkg/transcript"
	"scamshield/pkg/upload"
)

const maxDetectBody = 1 << 20

// detectRoutes is the closed set of scoring endpoints.
var detectRoutes = map[string]bool{
	"contact":  true,
	"chat":     true,
	"trading":  true,
	"veracity": true,
}

// importReader selects a finalized import scoped to its owner. Both
// *store.RecordStore and the in-memory fallback satisfy it.
type importReader interface {
	GetImport(ctx context.Context, id, userID string) (*store.ChatImport, error)
}

// scanSaver persists one detection computation. Optional; nil skips it.
type scanSaver interface {
	SaveScan(ctx context.Context, sc store.Scan) error
}

// memImports is the no-database fallback: finalized imports live in memory so
// single-binary deployments still answer the download endpoint.
type memImports struct {
	mu      sync.Mutex
	imports map[string]store.ChatImport
}

func newMemImports() *memImports {
	return &memImports{imports: make(map[string]store.ChatImport)}
}

func (m *memImports) SaveImport(_ context.Context, ci store.ChatImport) error {
	m.mu.Lock()
	m.imports[ci.ID] = ci
	m.mu.Unlock()
	return nil
}

func (m *memImports) GetImport(_ context.Context, id, userID string) (*store.ChatImport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ci, ok := m.imports[id]
	if !ok || ci.UserID != userID {
		return nil, store.ErrNotFound
	}
	out := ci
	return &out, nil
}

type api struct {
	log      *logrus.Entry
	auth     *auth.Middleware
	limiter  *ratelimit.FixedWindowLimiter
	cache    *cache.ResponseCache
	analyzer *transcript.Analyzer
	fusion   *fusion.Engine
	provider *provider.Client // nil when no provider configured
	uploads  *upload.Manager
	objects  *store.FSObjectStore
	imports  importReader
	scans    scanSaver // nil when no database configured
	recorder *telemetry.Recorder
	expose   bool
	signTTL  time.Duration
}

func (a *api) routes(mux *http.ServeMux, metricsHandler http.Handler) {
	mux.Handle("/detect/", a.auth.Wrap(http.HandlerFunc(a.handleDetect)))
	mux.Handle("/chat-import/initialize", a.auth.Wrap(http.HandlerFunc(a.handleImportInitialize)))
	mux.Handle("/chat-import/upload-chunk/", a.auth.Wrap(http.HandlerFunc(a.handleUploadChunk)))
	mux.Handle("/chat-import/upload/", a.auth.Wrap(http.HandlerFunc(a.handleUploadSession)))
	mux.Handle("/chat-import/finalize", a.auth.Wrap(http.HandlerFunc(a.handleImportFinalize)))
	mux.Handle("/chat-import/", a.auth.Wrap(http.HandlerFunc(a.handleImportDownload)))
	mux.Handle("/telemetry/recent", a.auth.Wrap(http.HandlerFunc(a.handleTelemetryRecent)))
	mux.Handle("/files/", a.objects)
	mux.Handle("/metrics", metricsHandler)
	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/health", a.handleHealth)
}

type detectRequest struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type detectMeta struct {
	Cached bool `json:"cached"`
}

type detectEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    detectMeta      `json:"meta"`
}

// handleDetect runs the scoring pipeline: rate gate, cache lookup, local
// heuristics, optional provider fusion, cache store, telemetry.
func (a *api) handleDetect(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := auth.UserID(r.Context())
	route := strings.TrimPrefix(r.URL.Path, "/detect/")
	log := logging.WithRequest(a.log, r)

	if !detectRoutes[route] {
		a.fail(w, start, route, userID, false, apperr.NotFound("unknown detection route %q", route))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxDetectBody))
	if err != nil {
		a.fail(w, start, route, userID, false, apperr.Validation("read request body: %v", err))
		return
	}
	var req detectRequest
	if err := json.Unmarshal(body, &req); err != nil {
		a.fail(w, start, route, userID, false, apperr.Validation("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		a.fail(w, start, route, userID, false, apperr.Validation("content is required"))
		return
	}

	if allowed, retryAfter := a.limiter.Allow(userID + ":" + route); !allowed {
		a.fail(w, start, route, userID, false, apperr.RateLimited(retryAfter))
		return
	}

	key := cache.Key(route, userID, body)
	if payload, hit := a.cache.Get(key); hit {
		a.writeDetect(w, payload, true)
		a.record(start, route, userID, true, true, http.StatusOK, "")
		return
	}

	local, _ := a.analyzer.Analyze([]byte(req.Content))
	merged := local
	if a.provider != nil {
		// Provider failure degrades to the local assessment, never the caller.
		if op, err := a.provider.Assess(r.Context(), route, req.Content); err == nil {
			merged = a.fusion.Merge(local, op)
		} else {
			log.WithError(err).Debug("provider unavailable, using local assessment")
		}
	}

	payload, err := json.Marshal(merged)
	if err != nil {
		a.fail(w, start, route, userID, false, apperr.Internal(err))
		return
	}
	a.cache.Set(key, payload)

	if a.scans != nil {
		sc := store.Scan{
			ID:        uuid.New().String(),
			UserID:    userID,
			Route:     route,
			RiskScore: merged.Score,
			RiskLevel: string(merged.Level),
			Cached:    false,
			CreatedAt: time.Now().UTC(),
		}
		// Persistence downstream of a computed result never fails the caller.
		if err := a.scans.SaveScan(r.Context(), sc); err != nil {
			log.WithError(err).Warn("scan history insert failed")
		}
	}

	a.writeDetect(w, payload, false)
	a.record(start, route, userID, false, true, http.StatusOK, "")
}

type importInitRequest struct {
	FileName  string `json:"fileName"`
	TotalSize int64  `json:"totalSize"`
}

type importInitResponse struct {
	UploadID    string `json:"uploadId"`
	ChunkSize   int64  `json:"chunkSize"`
	TotalChunks int    `json:"totalChunks"`
}

func (a *api) handleImportInitialize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := auth.UserID(r.Context())

	var req importInitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.fail(w, start, "chat-import/initialize", userID, false, apperr.Validation("invalid JSON body"))
		return
	}
	res, err := a.uploads.Initialize(userID, req.FileName, req.TotalSize)
	if err != nil {
		a.fail(w, start, "chat-import/initialize", userID, false, err)
		return
	}
	writeJSON(w, http.StatusOK, importInitResponse{
		UploadID:    res.SessionID,
		ChunkSize:   res.ChunkSize,
		TotalChunks: res.TotalChunks,
	})
	a.record(start, "chat-import/initialize", userID, false, true, http.StatusOK, "")
}

type chunkResponse struct {
	ChunkIndex int  `json:"chunkIndex"`
	Progress   int  `json:"progress"`
	IsComplete bool `json:"isComplete"`
}

func (a *api) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := auth.UserID(r.Context())

	rest := strings.TrimPrefix(r.URL.Path, "/chat-import/upload-chunk/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		a.fail(w, start, "chat-import/upload-chunk", userID, false,
			apperr.Validation("path must be /chat-import/upload-chunk/{uploadId}/{index}"))
		return
	}
	sessionID := parts[0]
	index, err := strconv.Atoi(parts[1])
	if err != nil {
		a.fail(w, start, "chat-import/upload-chunk", userID, false, apperr.Validation("chunk index must be an integer"))
		return
	}

	// Oversized bodies are rejected, never truncated into a "complete" chunk.
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.uploads.ChunkSize()))
	if err != nil {
		a.fail(w, start, "chat-import/upload-chunk", userID, false,
			apperr.Validation("chunk body exceeds chunk size %d bytes", a.uploads.ChunkSize()))
		return
	}

	prog, err := a.uploads.PutChunk(sessionID, userID, index, data)
	if err != nil {
		a.fail(w, start, "chat-import/upload-chunk", userID, false, err)
		return
	}
	writeJSON(w, http.StatusOK, chunkResponse{ChunkIndex: index, Progress: prog.Progress, IsComplete: prog.Complete})
	a.record(start, "chat-import/upload-chunk", userID, false, true, http.StatusOK, "")
}

type progressResponse struct {
	Progress   int    `json:"progress"`
	IsComplete bool   `json:"isComplete"`
	State      string `json:"state"`
}

// handleUploadSession covers GET .../{uploadId}/progress and DELETE
// .../{uploadId}.
func (a *api) handleUploadSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	userID := auth.UserID(r.Context())
	rest := strings.TrimPrefix(r.URL.Path, "/chat-import/upload/")

	switch r.Method {
	case http.MethodGet:
		sessionID := strings.TrimSuffix(rest, "/progress")
		if sessionID == rest || sessionID == "" {
			a.fail(w, start, "chat-import/progress", userID, false,
				apperr.Validation("path must be /chat-import/upload/{uploadId}/progress"))
			return
		}
		prog, err := a.uploads.Progress(sessionID, userID)
		if err != nil {
			a.fail(w, start, "chat-import/progress", userID, false, err)
			return
		}
		writeJSON(w, http.StatusOK, progressResponse{Progress: prog.Progress, IsComplete: prog.Complete, State: string(prog.State)})
		a.record(start, "chat-import/progress", userID, false, true, http.StatusOK, "")
	case http.MethodDelete:
		if rest == "" || strings.Contains(rest, "/") {
			a.fail(w, start, "chat-import/cancel", userID, false,
				apperr.Validation("path must be /chat-import/upload/{uploadId}"))
			return
		}
		cancelled, err := a.uploads.Cancel(rest, userID)
		if err != nil {
			a.fail(w, start, "chat-import/cancel", userID, false, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
		a.record(start, "chat-import/cancel", userID, false, true, http.StatusOK, "")
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type finalizeRequest struct {
	UploadID string `json:"uploadId"`
	Platform string `json:"platform,omitempty"`
	Language string `json:"language,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

type finalizeResponse struct {
	ChatImportID string `json:"chatImportId"`
	Status       string `json:"status"`
	Summary      string `json:"summary"`
	RiskLevel    string `json:"riskLevel"`
	RiskScore    int    `json:"riskScore"`
	FilePath     string `json:"filePath"`
}

func (a *api) handleImportFinalize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := auth.UserID(r.Context())

	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.fail(w, start, "chat-import/finalize", userID, false, apperr.Validation("invalid JSON body"))
		return
	}
	if req.UploadID == "" {
		a.fail(w, start, "chat-import/finalize", userID, false, apperr.Validation("uploadId is required"))
		return
	}

	art, err := a.uploads.Finalize(r.Context(), req.UploadID, userID, upload.Metadata{
		Platform: req.Platform,
		Language: req.Language,
		Timezone: req.Timezone,
	})
	if err != nil {
		a.fail(w, start, "chat-import/finalize", userID, false, err)
		return
	}
	writeJSON(w, http.StatusOK, finalizeResponse{
		ChatImportID: art.ImportID,
		Status:       art.Status,
		Summary:      art.Summary,
		RiskLevel:    string(art.RiskLevel),
		RiskScore:    art.RiskScore,
		FilePath:     art.FilePath,
	})
	a.record(start, "chat-import/finalize", userID, false, true, http.StatusOK, "")
}

// handleImportDownload answers GET /chat-import/{chatImportId}/download with a
// time-limited signed URL for the stored transcript.
func (a *api) handleImportDownload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := auth.UserID(r.Context())

	rest := strings.TrimPrefix(r.URL.Path, "/chat-import/")
	importID := strings.TrimSuffix(rest, "/download")
	if importID == rest || importID == "" || strings.Contains(importID, "/") {
		a.fail(w, start, "chat-import/download", userID, false, apperr.NotFound("not found"))
		return
	}

	ci, err := a.imports.GetImport(r.Context(), importID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.fail(w, start, "chat-import/download", userID, false, apperr.NotFound("chat import %s not found", importID))
			return
		}
		a.fail(w, start, "chat-import/download", userID, false, apperr.Persistence(err))
		return
	}
	signed, err := a.objects.SignedURL(ci.FilePath, a.signTTL)
	if err != nil {
		a.fail(w, start, "chat-import/download", userID, false, apperr.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"downloadUrl": signed,
		"expiresInMs": a.signTTL.Milliseconds(),
	})
	a.record(start, "chat-import/download", userID, false, true, http.StatusOK, "")
}

func (a *api) handleTelemetryRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": a.recorder.Snapshot()})
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) writeDetect(w http.ResponseWriter, payload []byte, cached bool) {
	writeJSON(w, http.StatusOK, detectEnvelope{Success: true, Data: payload, Meta: detectMeta{Cached: cached}})
}

// fail renders the error and records the failed invocation.
func (a *api) fail(w http.ResponseWriter, start time.Time, route, userID string, cached bool, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		a.log.WithField("route", route).WithError(err).Error("request failed")
	}
	apperr.WriteJSON(w, err, a.expose)
	a.record(start, route, userID, cached, false, status, err.Error())
}

func (a *api) record(start time.Time, route, userID string, cached, success bool, status int, errMsg string) {
	a.recorder.Record(telemetry.Event{
		Route:      route,
		UserID:     userID,
		DurationMs: time.Since(start).Milliseconds(),
		Cached:     cached,
		Success:    success,
		StatusCode: status,
		Error:      errMsg,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
