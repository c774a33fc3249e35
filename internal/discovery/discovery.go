// Package discovery lists available tests by driving pytest's own
// collection mechanism, so the set of discoverable tests always matches
// what a run would actually execute.
package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a collection pass.
const DefaultTimeout = 60 * time.Second

// DiscoveredTest describes one collected test.
type DiscoveredTest struct {
	NodeID    string   `json:"nodeid"`
	FilePath  string   `json:"file_path"`
	ClassName string   `json:"class_name,omitempty"`
	Function  string   `json:"function_name"`
	Markers   []string `json:"markers"`
}

// Options filter a discovery pass.
type Options struct {
	// Path limits collection to a file or directory.
	Path string
	// Keyword is passed to pytest -k.
	Keyword string
	// Marker is passed to pytest -m.
	Marker string
	// Timeout bounds the collection subprocess. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Discoverer collects tests via a pytest subprocess.
type Discoverer struct {
	pytestBin string
	workDir   string
}

// New creates a Discoverer using the given pytest binary, running in
// workDir (empty means the current directory).
func New(pytestBin, workDir string) *Discoverer {
	if pytestBin == "" {
		pytestBin = "pytest"
	}
	return &Discoverer{pytestBin: pytestBin, workDir: workDir}
}

// Discover runs pytest --collect-only and parses the reported nodeids.
func (d *Discoverer) Discover(ctx context.Context, opts Options) ([]DiscoveredTest, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	collectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"--collect-only", "-q", "--no-header"}
	if opts.Path != "" {
		args = append(args, opts.Path)
	}
	if opts.Keyword != "" {
		args = append(args, "-k", opts.Keyword)
	}
	if opts.Marker != "" {
		args = append(args, "-m", opts.Marker)
	}

	cmd := exec.CommandContext(collectCtx, d.pytestBin, args...)
	cmd.Dir = d.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(collectCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("test discovery timed out after %s", timeout)
	}
	if err != nil {
		// pytest exits non-zero when nothing is collected or a file fails
		// to import; any nodeids it did print are still usable.
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("test discovery failed: %w", err)
		}
	}

	return ParseCollectOutput(stdout.String()), nil
}

// ParseCollectOutput extracts nodeids from pytest --collect-only -q
// output. Non-nodeid lines (summary counts, collector tree entries) are
// ignored.
func ParseCollectOutput(output string) []DiscoveredTest {
	var tests []DiscoveredTest
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, "::") || strings.Contains(line, "<") {
			continue
		}
		if t, ok := ParseNodeID(line); ok {
			tests = append(tests, t)
		}
	}
	return tests
}

// ParseNodeID splits a pytest nodeid into its file, optional class, and
// function components. Nodeids with more than three segments are rejected.
func ParseNodeID(nodeid string) (DiscoveredTest, bool) {
	parts := strings.Split(nodeid, "::")
	t := DiscoveredTest{NodeID: nodeid, FilePath: parts[0], Markers: []string{}}

	switch len(parts) {
	case 2:
		t.Function = parts[1]
	case 3:
		t.ClassName = parts[1]
		t.Function = parts[2]
	default:
		return DiscoveredTest{}, false
	}
	return t, true
}

// GroupByFile buckets tests by their source file, preserving order within
// each bucket.
func GroupByFile(tests []DiscoveredTest) map[string][]DiscoveredTest {
	grouped := make(map[string][]DiscoveredTest)
	for _, t := range tests {
		grouped[t.FilePath] = append(grouped[t.FilePath], t)
	}
	return grouped
}
