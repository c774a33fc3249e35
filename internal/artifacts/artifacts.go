// Package artifacts owns run identity and the on-disk layout of run
// artifacts. All path derivations are pure functions of the run ID and the
// pytest nodeid so that the runner, the persistence layer, and the in-test
// instrumentation agree on locations without coordination.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// SummaryFileName is the per-run snapshot file.
	SummaryFileName = "run-summary.json"
	// EventsFileName is the per-run append-only event log.
	EventsFileName = "events.ndjson"
	// TraceFileName is the Playwright trace archive written per test.
	TraceFileName = "trace.zip"

	testsDirName = "tests"
	runIDPrefix  = "run-"
)

// GenerateRunID returns a unique run identifier of the form
// run-20240130-150422-a1b2c3d4. The embedded timestamp keeps IDs lexically
// sortable by creation time; the random suffix breaks ties within a second.
func GenerateRunID() string {
	ts := time.Now().Format("20060102-150405")
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("%s%s-%s", runIDPrefix, ts, suffix)
}

// IsRunID reports whether name looks like a run directory name.
func IsRunID(name string) bool {
	return strings.HasPrefix(name, runIDPrefix)
}

var unsafeChars = regexp.MustCompile(`[<>:"|?*\[\]]`)
var underscoreRuns = regexp.MustCompile(`_+`)

// SanitizeNodeID maps a pytest nodeid to a filesystem-safe directory name.
// The :: separator becomes a literal double underscore and is protected by
// a placeholder so that the underscore-collapsing step cannot eat it:
//
//	tests/test_login.py::TestLogin::test_valid
//	  -> tests_test_login_py__TestLogin__test_valid
func SanitizeNodeID(nodeid string) string {
	safe := strings.ReplaceAll(nodeid, "::", "<!SEPARATOR!>")
	safe = strings.ReplaceAll(safe, "/", "_")
	safe = strings.ReplaceAll(safe, "\\", "_")
	safe = strings.ReplaceAll(safe, ".", "_")
	safe = unsafeChars.ReplaceAllString(safe, "_")
	safe = underscoreRuns.ReplaceAllString(safe, "_")
	return strings.ReplaceAll(safe, "_!SEPARATOR!_", "__")
}

// Root is the base directory under which every run stores its artifacts.
// It is constructed explicitly and passed to the components that need it
// rather than resolved from the working directory at call sites.
type Root struct {
	dir string
}

// NewRoot creates a Root rooted at dir.
func NewRoot(dir string) Root {
	return Root{dir: dir}
}

// DefaultRoot returns the conventional artifact root below baseDir
// (<baseDir>/.pw-runner/runs).
func DefaultRoot(baseDir string) Root {
	return Root{dir: filepath.Join(baseDir, ".pw-runner", "runs")}
}

// Dir returns the artifact root directory.
func (r Root) Dir() string {
	return r.dir
}

// RunDir returns the directory holding all artifacts for one run.
func (r Root) RunDir(runID string) string {
	return filepath.Join(r.dir, runID)
}

// TestDir returns the artifact directory for one test within a run.
func (r Root) TestDir(runID, nodeid string) string {
	return filepath.Join(r.RunDir(runID), testsDirName, SanitizeNodeID(nodeid))
}

// TracePath returns the Playwright trace path for one test within a run.
func (r Root) TracePath(runID, nodeid string) string {
	return filepath.Join(r.TestDir(runID, nodeid), TraceFileName)
}

// SummaryPath returns the run summary snapshot path.
func (r Root) SummaryPath(runID string) string {
	return filepath.Join(r.RunDir(runID), SummaryFileName)
}

// EventsPath returns the run event log path.
func (r Root) EventsPath(runID string) string {
	return filepath.Join(r.RunDir(runID), EventsFileName)
}

// EnsureRunDirs creates the directory structure for a run and returns the
// run directory.
func (r Root) EnsureRunDirs(runID string) (string, error) {
	runDir := r.RunDir(runID)
	if err := os.MkdirAll(filepath.Join(runDir, testsDirName), 0755); err != nil {
		return "", fmt.Errorf("creating run directory: %w", err)
	}
	return runDir, nil
}

// EnsureTestDirs creates the artifact directory for one test and returns it.
func (r Root) EnsureTestDirs(runID, nodeid string) (string, error) {
	testDir := r.TestDir(runID, nodeid)
	if err := os.MkdirAll(testDir, 0755); err != nil {
		return "", fmt.Errorf("creating test directory: %w", err)
	}
	return testDir, nil
}
