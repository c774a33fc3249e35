package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// EventLog appends decoded protocol events to a run's events.ndjson file,
// one JSON object per line. Writes are best-effort durability: the caller
// logs failures but never fails the run over them.
type EventLog struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	path string
}

// OpenEventLog opens (creating if needed) the append-only event log at
// path. Parent directories are created automatically.
func OpenEventLog(path string) (*EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating event log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}

	return &EventLog{
		file: f,
		enc:  json.NewEncoder(f),
		path: path,
	}, nil
}

// Append writes one event object as a single JSON line.
func (l *EventLog) Append(event map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(event)
}

// Close closes the underlying file.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Path returns the file path of the event log.
func (l *EventLog) Path() string {
	return l.path
}
