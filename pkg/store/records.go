// Package store holds the persistence collaborators: a Postgres-backed
// record store for scan and chat-import rows, and a filesystem object store
// with signed retrieval URLs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// ErrNotFound is returned when a selected row does not exist.
var ErrNotFound = errors.New("store: record not found")

// Scan is one persisted detection computation.
type Scan struct {
	ID        string
	UserID    string
	Route     string
	RiskScore int
	RiskLevel string
	Cached    bool
	CreatedAt time.Time
}

// ChatImport is one finalized transcript import.
type ChatImport struct {
	ID        string
	UserID    string
	FileName  string
	Platform  string
	Language  string
	Timezone  string
	Status    string
	Summary   string
	RiskLevel string
	RiskScore int
	FilePath  string
	CreatedAt time.Time
}

// TelemetryRow is one durable pipeline invocation record.
type TelemetryRow struct {
	ID         string
	Route      string
	UserID     string
	CreatedAt  time.Time
	DurationMS int64
	Cached     bool
	Success    bool
	StatusCode int
	Error      string
}

// RecordStore wraps the relational collaborator.
type RecordStore struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection.
func Open(dsn string) (*RecordStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &RecordStore{db: db}, nil
}

// Close releases the connection pool.
func (s *RecordStore) Close() error { return s.db.Close() }

// SaveScan inserts a scan row.
func (s *RecordStore) SaveScan(ctx context.Context, sc Scan) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scans (id, user_id, route, risk_score, risk_level, cached, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sc.ID, sc.UserID, sc.Route, sc.RiskScore, sc.RiskLevel, sc.Cached, sc.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

// SaveImport inserts a chat-import row.
func (s *RecordStore) SaveImport(ctx context.Context, ci ChatImport) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_imports
		 (id, user_id, file_name, platform, language, timezone, status, summary, risk_level, risk_score, file_path, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		ci.ID, ci.UserID, ci.FileName, ci.Platform, ci.Language, ci.Timezone,
		ci.Status, ci.Summary, ci.RiskLevel, ci.RiskScore, ci.FilePath, ci.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert chat import: %w", err)
	}
	return nil
}

// GetImport selects a chat-import row by id, scoped to its owner.
func (s *RecordStore) GetImport(ctx context.Context, id, userID string) (*ChatImport, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, file_name, platform, language, timezone, status, summary, risk_level, risk_score, file_path, created_at
		 FROM chat_imports WHERE id = $1 AND user_id = $2`, id, userID)

	var ci ChatImport
	err := row.Scan(&ci.ID, &ci.UserID, &ci.FileName, &ci.Platform, &ci.Language, &ci.Timezone,
		&ci.Status, &ci.Summary, &ci.RiskLevel, &ci.RiskScore, &ci.FilePath, &ci.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select chat import: %w", err)
	}
	return &ci, nil
}

// SaveTelemetry inserts a telemetry row.
func (s *RecordStore) SaveTelemetry(ctx context.Context, row TelemetryRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO telemetry_events
		 (id, route, user_id, created_at, duration_ms, cached, success, status_code, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		row.ID, row.Route, row.UserID, row.CreatedAt, row.DurationMS,
		row.Cached, row.Success, row.StatusCode, row.Error)
	if err != nil {
		return fmt.Errorf("insert telemetry event: %w", err)
	}
	return nil
}
