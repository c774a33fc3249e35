package store

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pwlabs/pwrunner/internal/artifacts"
	"github.com/pwlabs/pwrunner/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(artifacts.NewRoot(filepath.Join(t.TempDir(), ".pw-runner", "runs")))
}

func TestSaveLoadSummaryRoundTrip(t *testing.T) {
	s := newTestStore(t)

	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	summary := models.NewRunSummary("run-20250301-120000-a1b2c3d4", start)
	summary.RecordResult(models.TestResult{
		NodeID:    "tests/test_a.py::test_x",
		Outcome:   models.OutcomePassed,
		Duration:  0.5,
		Artifacts: map[string]string{"trace": "tests/tests_test_a_py__test_x/trace.zip"},
	})
	summary.Finish(models.StatusCompleted, start.Add(time.Minute))

	require.NoError(t, s.SaveSummary(summary))

	loaded, err := s.LoadSummary(summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, loaded.RunID)
	assert.Equal(t, models.StatusCompleted, loaded.Status)
	assert.Equal(t, summary.Tests, loaded.Tests)
	assert.True(t, loaded.StartTime.Equal(summary.StartTime))
}

func TestSaveSummary_Overwrites(t *testing.T) {
	s := newTestStore(t)
	summary := models.NewRunSummary("run-20250301-120000-a1b2c3d4", time.Now())

	require.NoError(t, s.SaveSummary(summary))
	summary.Finish(models.StatusFailed, time.Now())
	require.NoError(t, s.SaveSummary(summary))

	loaded, err := s.LoadSummary(summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, loaded.Status)
}

func TestLoadSummary_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LoadSummary("run-20250301-120000-deadbeef")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestScanRunIDs_MissingRoot(t *testing.T) {
	s := New(artifacts.NewRoot(filepath.Join(t.TempDir(), "does-not-exist")))

	ids, err := s.ScanRunIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestScanRunIDs_FiltersForeignEntries(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root().Dir(), "run-20250301-120000-a1b2c3d4"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root().Dir(), "not-a-run"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root().Dir(), "stray.txt"), []byte("x"), 0644))

	ids, err := s.ScanRunIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"run-20250301-120000-a1b2c3d4"}, ids)
}

func TestListSummaries_NewestFirstAndSkipsCorrupt(t *testing.T) {
	s := newTestStore(t)

	t1 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	older := models.NewRunSummary("run-20250301-120000-00000001", t1)
	newer := models.NewRunSummary("run-20250301-130000-00000002", t1.Add(time.Hour))
	require.NoError(t, s.SaveSummary(older))
	require.NoError(t, s.SaveSummary(newer))

	// A run directory with a corrupt snapshot is skipped, not fatal.
	corruptID := "run-20250301-140000-00000003"
	_, err := s.Root().EnsureRunDirs(corruptID)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Root().SummaryPath(corruptID), []byte("{not json"), 0644))

	summaries, err := s.ListSummaries()
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, newer.RunID, summaries[0].RunID)
	assert.Equal(t, older.RunID, summaries[1].RunID)
}

func TestListSummaries_Empty(t *testing.T) {
	s := newTestStore(t)

	summaries, err := s.ListSummaries()
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestEventLogAppend(t *testing.T) {
	s := newTestStore(t)
	runID := "run-20250301-120000-a1b2c3d4"

	log, err := s.OpenRunEventLog(runID)
	require.NoError(t, err)

	require.NoError(t, log.Append(map[string]any{"type": "session_start", "run_id": runID}))
	require.NoError(t, log.Append(map[string]any{"type": "test_result", "nodeid": "t.py::x", "outcome": "passed"}))
	require.NoError(t, log.Close())

	f, err := os.Open(s.Root().EventsPath(runID))
	require.NoError(t, err)
	defer f.Close()

	var events []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, events, 2)
	assert.Equal(t, "session_start", events[0]["type"])
	assert.Equal(t, "t.py::x", events[1]["nodeid"])
}

func TestEventLogAppend_AcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")

	log, err := OpenEventLog(path)
	require.NoError(t, err)
	require.NoError(t, log.Append(map[string]any{"n": 1}))
	require.NoError(t, log.Close())

	log, err = OpenEventLog(path)
	require.NoError(t, err)
	require.NoError(t, log.Append(map[string]any{"n": 2}))
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"n\":1}\n{\"n\":2}\n", string(data))
}
