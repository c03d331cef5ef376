// Package upload implements the chunked transcript ingestion state machine:
// sessions move INITIALIZED -> RECEIVING -> COMPLETE -> FINALIZED, with
// CANCELLED and EXPIRED as terminal side branches. Terminal sessions are
// removed from the live store and remembered in a bounded journal so callers
// can tell "finished" apart from "never existed".
package upload

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"scamshield/pkg/apperr"
	"scamshield/pkg/risk"
	"scamshield/pkg/store"
	"scamshield/pkg/transcript"
)

// State names a session's position in the machine.
type State string

const (
	StateInitialized State = "INITIALIZED"
	StateReceiving   State = "RECEIVING"
	StateComplete    State = "COMPLETE"
	StateFinalized   State = "FINALIZED"
	StateCancelled   State = "CANCELLED"
	StateExpired     State = "EXPIRED"
)

const (
	// DefaultChunkSize is 1 MiB.
	DefaultChunkSize = 1 << 20
	// DefaultSessionTTL is how long an idle session survives between calls.
	DefaultSessionTTL = 30 * time.Minute
	// journalCapacity bounds the terminal-state journal.
	journalCapacity = 512
)

// Session is one in-flight chunked upload.
type Session struct {
	ID          string
	UserID      string
	FileName    string
	TotalSize   int64
	TotalChunks int
	ChunkSize   int64
	State       State
	CreatedAt   time.Time
	UpdatedAt   time.Time
	chunks      map[int][]byte
}

// InitResult is returned by Initialize.
type InitResult struct {
	SessionID   string
	ChunkSize   int64
	TotalChunks int
}

// ProgressResult reports upload completeness.
type ProgressResult struct {
	Progress int
	Complete bool
	State    State
}

// Metadata accompanies finalize.
type Metadata struct {
	Platform string
	Language string
	Timezone string
}

// Artifact describes a finalized import.
type Artifact struct {
	ImportID  string
	Status    string
	Summary   string
	RiskLevel risk.Level
	RiskScore int
	FilePath  string
}

// ImportSaver persists the finalized import row. *store.RecordStore
// satisfies it; a nil saver skips relational persistence.
type ImportSaver interface {
	SaveImport(ctx context.Context, ci store.ChatImport) error
}

// Manager owns the live session map and the terminal journal.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	terminal map[string]State
	termFIFO []string

	chunkSize int64
	ttl       time.Duration
	analyzer  *transcript.Analyzer
	objects   store.ObjectStore
	imports   ImportSaver
	log       *logrus.Entry
	now       func() time.Time
}

// NewManager wires the ingestion state machine. chunkSize/ttl <= 0 use the
// defaults; imports may be nil when no record store is configured.
func NewManager(chunkSize int64, ttl time.Duration, analyzer *transcript.Analyzer, objects store.ObjectStore, imports ImportSaver, log *logrus.Entry) *Manager {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Manager{
		sessions:  make(map[string]*Session),
		terminal:  make(map[string]State),
		chunkSize: chunkSize,
		ttl:       ttl,
		analyzer:  analyzer,
		objects:   objects,
		imports:   imports,
		log:       log.WithField("component", "upload"),
		now:       time.Now,
	}
}

// Initialize creates a session. Idle sessions past TTL are swept first.
func (m *Manager) Initialize(userID, fileName string, totalSize int64) (InitResult, error) {
	if totalSize <= 0 {
		return InitResult{}, apperr.Validation("totalSize must be positive, got %d", totalSize)
	}
	if userID == "" {
		return InitResult{}, apperr.Unauthorized("missing caller identity")
	}

	now := m.now()
	totalChunks := int((totalSize + m.chunkSize - 1) / m.chunkSize)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked(now)

	s := &Session{
		ID:          uuid.New().String(),
		UserID:      userID,
		FileName:    fileName,
		TotalSize:   totalSize,
		TotalChunks: totalChunks,
		ChunkSize:   m.chunkSize,
		State:       StateInitialized,
		CreatedAt:   now,
		UpdatedAt:   now,
		chunks:      make(map[int][]byte, totalChunks),
	}
	m.sessions[s.ID] = s

	m.log.WithFields(logrus.Fields{
		"session_id":   s.ID,
		"user_id":      userID,
		"total_size":   totalSize,
		"total_chunks": totalChunks,
	}).Info("upload session initialized")

	return InitResult{SessionID: s.ID, ChunkSize: m.chunkSize, TotalChunks: totalChunks}, nil
}

// PutChunk stores one chunk. Re-uploading an index overwrites it; the last
// write wins, so duplicate and out-of-order deliveries are idempotent.
func (m *Manager) PutChunk(sessionID, userID string, index int, data []byte) (ProgressResult, error) {
	cp := make([]byte, len(data))
	copy(cp, data)

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookupLocked(sessionID, userID)
	if err != nil {
		return ProgressResult{}, err
	}
	if index < 0 || index >= s.TotalChunks {
		return ProgressResult{}, apperr.Validation("chunk index %d out of range [0,%d)", index, s.TotalChunks)
	}
	if int64(len(cp)) > s.ChunkSize {
		return ProgressResult{}, apperr.Validation("chunk %d is %d bytes, exceeds chunk size %d", index, len(cp), s.ChunkSize)
	}

	s.chunks[index] = cp
	s.UpdatedAt = m.now()
	if len(s.chunks) == s.TotalChunks {
		s.State = StateComplete
	} else {
		s.State = StateReceiving
	}
	return progressOf(s), nil
}

// Progress reports completeness. Finalized sessions answer 100%-complete
// from the journal; cancelled, expired, and unknown sessions are errors so
// callers can tell those apart.
func (m *Manager) Progress(sessionID, userID string) (ProgressResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[sessionID]; ok {
		if s.UserID != userID {
			return ProgressResult{}, apperr.Forbidden("session belongs to another user")
		}
		return progressOf(s), nil
	}
	switch m.terminal[sessionID] {
	case StateFinalized:
		return ProgressResult{Progress: 100, Complete: true, State: StateFinalized}, nil
	case StateCancelled:
		return ProgressResult{}, apperr.NotFound("upload session %s was cancelled", sessionID)
	case StateExpired:
		return ProgressResult{}, apperr.NotFound("upload session %s expired", sessionID)
	}
	return ProgressResult{}, apperr.NotFound("upload session %s not found", sessionID)
}

// Finalize validates completeness, reassembles chunks in ascending index
// order, analyzes the transcript, persists the artifact, and retires the
// session. An incomplete session fails validation with zero persistence side
// effects; a persistence failure restores the session for retry.
func (m *Manager) Finalize(ctx context.Context, sessionID, userID string, meta Metadata) (Artifact, error) {
	m.mu.Lock()
	s, err := m.lookupLocked(sessionID, userID)
	if err != nil {
		m.mu.Unlock()
		return Artifact{}, err
	}
	if len(s.chunks) != s.TotalChunks {
		missing := s.TotalChunks - len(s.chunks)
		m.mu.Unlock()
		return Artifact{}, apperr.Validation("upload incomplete: %d of %d chunks missing", missing, s.TotalChunks)
	}

	// Reassemble under the lock so a racing PutChunk cannot interleave a
	// partial write into the snapshot.
	combined := make([]byte, 0, s.TotalSize)
	for i := 0; i < s.TotalChunks; i++ {
		combined = append(combined, s.chunks[i]...)
	}
	// Short chunks leave the reassembly smaller than the declared size; that
	// is corruption, not completeness.
	if int64(len(combined)) != s.TotalSize {
		m.mu.Unlock()
		return Artifact{}, apperr.Validation("reassembled %d bytes, expected %d", len(combined), s.TotalSize)
	}
	// Remove the session while persistence runs; a failure reinstates it.
	delete(m.sessions, sessionID)
	snapshot := *s
	m.mu.Unlock()

	assessment, stats := m.analyzer.Analyze(combined)
	importID := uuid.New().String()
	objectPath := fmt.Sprintf("chat-imports/%s/%s-%s", userID, importID, sanitizeFileName(snapshot.FileName))

	if err := m.objects.Put(ctx, objectPath, combined); err != nil {
		m.restore(s)
		return Artifact{}, apperr.Internal(fmt.Errorf("store transcript: %w", err))
	}
	if m.imports != nil {
		ci := store.ChatImport{
			ID:        importID,
			UserID:    userID,
			FileName:  snapshot.FileName,
			Platform:  meta.Platform,
			Language:  meta.Language,
			Timezone:  meta.Timezone,
			Status:    "completed",
			Summary:   assessment.Summary,
			RiskLevel: string(assessment.Level),
			RiskScore: assessment.Score,
			FilePath:  objectPath,
			CreatedAt: m.now(),
		}
		if err := m.imports.SaveImport(ctx, ci); err != nil {
			m.restore(s)
			return Artifact{}, apperr.Internal(fmt.Errorf("record import: %w", err))
		}
	}

	m.mu.Lock()
	m.journalLocked(sessionID, StateFinalized)
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"import_id":  importID,
		"user_id":    userID,
		"messages":   stats.MessageCount,
		"risk_level": assessment.Level,
	}).Info("chat import finalized")

	return Artifact{
		ImportID:  importID,
		Status:    "completed",
		Summary:   assessment.Summary,
		RiskLevel: assessment.Level,
		RiskScore: assessment.Score,
		FilePath:  objectPath,
	}, nil
}

// Cancel deletes the caller's session. Cancelling a session that is already
// gone is a no-op, not an error.
func (m *Manager) Cancel(sessionID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return false, nil
	}
	if s.UserID != userID {
		return false, apperr.Forbidden("session belongs to another user")
	}
	delete(m.sessions, sessionID)
	m.journalLocked(sessionID, StateCancelled)
	return true, nil
}

// ChunkSize reports the configured per-chunk byte size.
func (m *Manager) ChunkSize() int64 { return m.chunkSize }

// Len reports the live session count.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) lookupLocked(sessionID, userID string) (*Session, error) {
	s, ok := m.sessions[sessionID]
	if !ok {
		switch m.terminal[sessionID] {
		case StateFinalized:
			return nil, apperr.Validation("upload session %s already finalized", sessionID)
		case StateCancelled:
			return nil, apperr.NotFound("upload session %s was cancelled", sessionID)
		case StateExpired:
			return nil, apperr.NotFound("upload session %s expired", sessionID)
		}
		return nil, apperr.NotFound("upload session %s not found", sessionID)
	}
	if s.UserID != userID {
		return nil, apperr.Forbidden("session belongs to another user")
	}
	return s, nil
}

func (m *Manager) restore(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
}

func (m *Manager) sweepLocked(now time.Time) {
	for id, s := range m.sessions {
		if now.Sub(s.UpdatedAt) >= m.ttl {
			delete(m.sessions, id)
			m.journalLocked(id, StateExpired)
			m.log.WithField("session_id", id).Info("upload session expired")
		}
	}
}

func (m *Manager) journalLocked(sessionID string, st State) {
	if _, exists := m.terminal[sessionID]; !exists {
		m.termFIFO = append(m.termFIFO, sessionID)
		if len(m.termFIFO) > journalCapacity {
			oldest := m.termFIFO[0]
			m.termFIFO = m.termFIFO[1:]
			delete(m.terminal, oldest)
		}
	}
	m.terminal[sessionID] = st
}

func progressOf(s *Session) ProgressResult {
	pct := int(math.Round(float64(len(s.chunks)) * 100 / float64(s.TotalChunks)))
	return ProgressResult{
		Progress: pct,
		Complete: len(s.chunks) == s.TotalChunks,
		State:    s.State,
	}
}

func sanitizeFileName(name string) string {
	base := filepath.Base(name)
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		base = "transcript.txt"
	}
	return base
}
