package protocol

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Emitter writes protocol events to a stream, one sentinel-prefixed JSON
// line per event. It is the Go counterpart of the in-process pytest
// instrumentation and is used by tests to produce protocol-conformant
// child output.
type Emitter struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewEmitter creates an Emitter writing to w.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w, now: time.Now}
}

// Emit serializes one event object to a single line. A timestamp field is
// injected when the caller did not supply one.
func (e *Emitter) Emit(event map[string]any) error {
	if _, ok := event["timestamp"]; !ok {
		event["timestamp"] = e.now().Format(time.RFC3339Nano)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = fmt.Fprintf(e.w, "%s%s\n", Sentinel, data)
	return err
}

// SessionStartEvent returns the wire object for a session start.
func SessionStartEvent(runID string) map[string]any {
	return map[string]any{
		"type":   string(EventSessionStart),
		"run_id": runID,
	}
}

// TestStartEvent returns the wire object for a test start.
func TestStartEvent(nodeid, file string, line *int, name string) map[string]any {
	return map[string]any{
		"type":   string(EventTestStart),
		"nodeid": nodeid,
		"location": map[string]any{
			"file": file,
			"line": line,
			"name": name,
		},
	}
}

// TestResultEvent returns the wire object for a test result.
func TestResultEvent(nodeid, outcome string, duration float64) map[string]any {
	return map[string]any{
		"type":     string(EventTestResult),
		"nodeid":   nodeid,
		"outcome":  outcome,
		"duration": duration,
	}
}

// SessionFinishEvent returns the wire object for a session finish.
func SessionFinishEvent(runID string, passed, failed, skipped, exitStatus int) map[string]any {
	return map[string]any{
		"type":        string(EventSessionFinish),
		"run_id":      runID,
		"passed":      passed,
		"failed":      failed,
		"skipped":     skipped,
		"total":       passed + failed + skipped,
		"exit_status": exitStatus,
	}
}
