// Package models defines the run-level data model shared by the run
// manager, the persistence layer, and the web API.
package models

import (
	"maps"
	"sort"
	"time"
)

// RunStatus represents the lifecycle state of a test run.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status can no longer change.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Outcome is the result classification for a single test.
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeError   Outcome = "error"
)

// TestResult is the recorded result of a single executed test.
type TestResult struct {
	NodeID   string  `json:"nodeid"`
	Outcome  Outcome `json:"outcome"`
	Duration float64 `json:"duration_seconds"`
	// Artifacts maps an artifact kind (e.g. "trace") to a path relative
	// to the run directory.
	Artifacts map[string]string `json:"artifacts"`
}

// RunSummary is the aggregate state of one test run. It is mutated only by
// the run manager while the run is active and becomes immutable once the
// status is terminal and the snapshot has been written.
type RunSummary struct {
	RunID      string       `json:"run_id"`
	StartTime  time.Time    `json:"start_time"`
	EndTime    *time.Time   `json:"end_time,omitempty"`
	Duration   *float64     `json:"duration_seconds,omitempty"`
	Status     RunStatus    `json:"status"`
	TotalTests int          `json:"total_tests"`
	Passed     int          `json:"passed"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
	Tests      []TestResult `json:"tests"`
	// Error records the failure cause for runs that were spawned
	// unsuccessfully or timed out.
	Error string `json:"error,omitempty"`
}

// NewRunSummary seeds a summary for a run that is about to start.
func NewRunSummary(runID string, start time.Time) *RunSummary {
	return &RunSummary{
		RunID:     runID,
		StartTime: start,
		Status:    StatusRunning,
		Tests:     []TestResult{},
	}
}

// RecordResult folds one test result into the running counts. Counts
// accumulate incrementally; a later session-finish event overwrites them
// with the authoritative totals.
func (s *RunSummary) RecordResult(r TestResult) {
	switch r.Outcome {
	case OutcomePassed:
		s.Passed++
	case OutcomeFailed:
		s.Failed++
	case OutcomeSkipped:
		s.Skipped++
	}
	s.TotalTests = s.Passed + s.Failed + s.Skipped
	if r.Artifacts == nil {
		r.Artifacts = map[string]string{}
	}
	s.Tests = append(s.Tests, r)
}

// RecordFinalCounts applies the aggregate counts carried by the session
// finish event. These supersede any incrementally accumulated totals.
func (s *RunSummary) RecordFinalCounts(passed, failed, skipped, total int) {
	s.Passed = passed
	s.Failed = failed
	s.Skipped = skipped
	s.TotalTests = total
}

// Finish stamps the end time, derives the duration, and sets the terminal
// status.
func (s *RunSummary) Finish(status RunStatus, end time.Time) {
	s.EndTime = &end
	d := end.Sub(s.StartTime).Seconds()
	s.Duration = &d
	s.Status = status
}

// Clone returns a deep copy, safe to hand out while the original is still
// being mutated by the run manager.
func (s *RunSummary) Clone() *RunSummary {
	c := *s
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	if s.Duration != nil {
		d := *s.Duration
		c.Duration = &d
	}
	c.Tests = make([]TestResult, len(s.Tests))
	for i, tr := range s.Tests {
		c.Tests[i] = tr
		c.Tests[i].Artifacts = maps.Clone(tr.Artifacts)
	}
	return &c
}

// SortSummaries orders summaries by start time descending (newest first),
// keeping scan order for ties.
func SortSummaries(summaries []*RunSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].StartTime.After(summaries[j].StartTime)
	})
}
