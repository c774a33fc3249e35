package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestRecordResult_Counts(t *testing.T) {
	s := NewRunSummary("run-x", time.Now())

	s.RecordResult(TestResult{NodeID: "t.py::a", Outcome: OutcomePassed, Duration: 0.5})
	s.RecordResult(TestResult{NodeID: "t.py::b", Outcome: OutcomeFailed, Duration: 1.2})
	s.RecordResult(TestResult{NodeID: "t.py::c", Outcome: OutcomeSkipped})

	assert.Equal(t, 1, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 3, s.TotalTests)
	require.Len(t, s.Tests, 3)
	// Insertion order is completion order.
	assert.Equal(t, "t.py::a", s.Tests[0].NodeID)
	assert.Equal(t, "t.py::c", s.Tests[2].NodeID)
	// Artifacts map is always non-nil on recorded results.
	assert.NotNil(t, s.Tests[2].Artifacts)
}

func TestRecordFinalCounts_Overwrites(t *testing.T) {
	s := NewRunSummary("run-x", time.Now())
	s.RecordResult(TestResult{NodeID: "t.py::a", Outcome: OutcomePassed})

	s.RecordFinalCounts(1, 1, 1, 3)

	assert.Equal(t, 1, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 3, s.TotalTests)
	assert.Equal(t, s.TotalTests, s.Passed+s.Failed+s.Skipped)
}

func TestFinish(t *testing.T) {
	start := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)

	s := NewRunSummary("run-x", start)
	s.Finish(StatusCompleted, end)

	assert.Equal(t, StatusCompleted, s.Status)
	require.NotNil(t, s.EndTime)
	assert.True(t, s.EndTime.Equal(end))
	require.NotNil(t, s.Duration)
	assert.InDelta(t, 90.0, *s.Duration, 1e-9)
}

func TestClone_Independent(t *testing.T) {
	s := NewRunSummary("run-x", time.Now())
	s.RecordResult(TestResult{
		NodeID:    "t.py::a",
		Outcome:   OutcomePassed,
		Artifacts: map[string]string{"trace": "tests/t_py__a/trace.zip"},
	})
	s.Finish(StatusCompleted, time.Now())

	c := s.Clone()
	c.Tests[0].Artifacts["trace"] = "elsewhere"
	c.Tests = append(c.Tests, TestResult{NodeID: "t.py::b"})
	*c.Duration = -1

	assert.Equal(t, "tests/t_py__a/trace.zip", s.Tests[0].Artifacts["trace"])
	assert.Len(t, s.Tests, 1)
	assert.GreaterOrEqual(t, *s.Duration, 0.0)
}

func TestSortSummaries_NewestFirst(t *testing.T) {
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	older := NewRunSummary("run-old", t1)
	newer := NewRunSummary("run-new", t2)

	summaries := []*RunSummary{older, newer}
	SortSummaries(summaries)

	assert.Equal(t, "run-new", summaries[0].RunID)
	assert.Equal(t, "run-old", summaries[1].RunID)
}

func TestRunSummaryJSONRoundTrip(t *testing.T) {
	end := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	s := NewRunSummary("run-20250301-120000-a1b2c3d4", end.Add(-30*time.Minute))
	s.RecordResult(TestResult{NodeID: "t.py::a", Outcome: OutcomePassed, Duration: 2.5})
	s.Finish(StatusCompleted, end)

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded RunSummary
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, s.RunID, decoded.RunID)
	assert.Equal(t, s.Status, decoded.Status)
	assert.Equal(t, s.TotalTests, decoded.TotalTests)
	assert.True(t, decoded.StartTime.Equal(s.StartTime))
	assert.True(t, decoded.EndTime.Equal(*s.EndTime))
	assert.Equal(t, *s.Duration, *decoded.Duration)
	assert.Equal(t, s.Tests, decoded.Tests)
}
