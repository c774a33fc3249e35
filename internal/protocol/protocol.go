// Package protocol implements the structured event channel between the
// spawned pytest process and the run manager. Events travel on stderr, one
// JSON object per line behind a fixed sentinel prefix, which keeps them
// separable from whatever else pytest and user code print.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Sentinel marks a stderr line as a structured event. No space follows the
// colon; the rest of the line is the JSON object.
const Sentinel = "PW_RUNNER_EVENT:"

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventSessionStart  EventType = "session_start"
	EventTestStart     EventType = "test_start"
	EventTestResult    EventType = "test_result"
	EventSessionFinish EventType = "session_finish"
)

// Location points at the source of a test.
type Location struct {
	File string `mapstructure:"file" json:"file"`
	Line *int   `mapstructure:"line" json:"line"`
	Name string `mapstructure:"name" json:"name"`
}

// SessionStart is emitted once when the pytest session begins.
type SessionStart struct {
	RunID string `mapstructure:"run_id"`
}

// TestStart is emitted when an individual test starts.
type TestStart struct {
	NodeID   string   `mapstructure:"nodeid"`
	Location Location `mapstructure:"location"`
}

// TestResult is emitted for the call phase of each test, never for setup
// or teardown.
type TestResult struct {
	NodeID   string  `mapstructure:"nodeid"`
	Outcome  string  `mapstructure:"outcome"`
	Duration float64 `mapstructure:"duration"`
}

// SessionFinish is emitted once at session end and carries the
// authoritative final counts.
type SessionFinish struct {
	RunID      string `mapstructure:"run_id"`
	Passed     int    `mapstructure:"passed"`
	Failed     int    `mapstructure:"failed"`
	Skipped    int    `mapstructure:"skipped"`
	Total      int    `mapstructure:"total"`
	ExitStatus int    `mapstructure:"exit_status"`
}

// Event is a decoded protocol event. Exactly one of the payload fields is
// non-nil, matching Type. Raw holds the full wire object so the event log
// can persist it verbatim.
type Event struct {
	Type      EventType
	Timestamp string
	Raw       map[string]any

	SessionStart  *SessionStart
	TestStart     *TestStart
	TestResult    *TestResult
	SessionFinish *SessionFinish
}

// IsEventLine reports whether a stderr line carries a protocol event.
func IsEventLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), Sentinel)
}

// ParseLine decodes one stderr line. It returns (nil, nil) for ordinary
// output that does not carry the sentinel. Lines that carry the sentinel
// but fail to decode, or that name an unknown event type, return an error;
// the protocol is best-effort telemetry, so callers drop those lines
// rather than failing the run.
func ParseLine(line string) (*Event, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, Sentinel) {
		return nil, nil
	}

	payload := line[len(Sentinel):]
	var raw map[string]any
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("decoding event line: %w", err)
	}

	typ, _ := raw["type"].(string)
	ts, _ := raw["timestamp"].(string)
	ev := &Event{Type: EventType(typ), Timestamp: ts, Raw: raw}

	switch ev.Type {
	case EventSessionStart:
		ev.SessionStart = &SessionStart{}
		if err := decodePayload(raw, ev.SessionStart); err != nil {
			return nil, err
		}
	case EventTestStart:
		ev.TestStart = &TestStart{}
		if err := decodePayload(raw, ev.TestStart); err != nil {
			return nil, err
		}
	case EventTestResult:
		ev.TestResult = &TestResult{}
		if err := decodePayload(raw, ev.TestResult); err != nil {
			return nil, err
		}
	case EventSessionFinish:
		ev.SessionFinish = &SessionFinish{}
		if err := decodePayload(raw, ev.SessionFinish); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown event type %q", typ)
	}

	return ev, nil
}

// decodePayload maps the wire object onto a typed payload struct. Extra
// wire fields (type, timestamp) are ignored; numeric JSON values are
// weakly converted so that counts decode as ints.
func decodePayload(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("decoding %T payload: %w", out, err)
	}
	return nil
}
