// Package ledger appends JSON-line records to a local file. It is the
// best-effort durable trail behind telemetry and import auditing; callers
// treat write failures as log-only events.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Entry is one append-only line.
type Entry struct {
	Timestamp string `json:"ts"`
	Service   string `json:"service"`
	Kind      string `json:"kind"`
	Data      any    `json:"data,omitempty"`
}

// Append writes one entry to filePath, creating parent directories as needed.
// The file is opened O_APPEND per call; concurrent appenders interleave whole
// lines.
func Append(filePath, service, kind string, data any) error {
	if filePath == "" {
		return errors.New("ledger: file path is empty")
	}
	if service == "" {
		service = "unknown"
	}
	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Service:   service,
		Kind:      kind,
		Data:      data,
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("mkdir ledger dir: %w", err)
	}
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}
