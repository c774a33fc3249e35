// Package runner is the orchestration core: it owns the single-active-run
// invariant, spawns the pytest child process, drains its output streams,
// folds protocol events into run state, and persists that state.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pwlabs/pwrunner/internal/artifacts"
	"github.com/pwlabs/pwrunner/internal/metrics"
	"github.com/pwlabs/pwrunner/internal/models"
	"github.com/pwlabs/pwrunner/internal/protocol"
	"github.com/pwlabs/pwrunner/internal/store"
)

const (
	// DefaultTimeout is the overall ceiling per run, measured from spawn.
	DefaultTimeout = time.Hour
	// DefaultGracePeriod is how long a terminated child may take to exit
	// before it is force-killed.
	DefaultGracePeriod = 5 * time.Second
)

// ErrRunInProgress is returned by StartRun while another run is active.
// Only one run may execute at a time; the shared browser backend cannot
// serve two competing sessions.
var ErrRunInProgress = errors.New("a test run is already in progress")

// ErrRunNotFound is returned when a run ID is unknown both in memory and
// on disk.
var ErrRunNotFound = store.ErrRunNotFound

// CommandBuilder assembles the child invocation for a run. The flag
// spelling that enables the in-process instrumentation lives here, not in
// the manager.
type CommandBuilder func(runID string, nodeIDs, extraArgs []string) (name string, args []string)

// PytestCommand returns the standard pytest invocation: base flags, then
// caller-supplied arguments, then the selected nodeids, then the plugin
// flags carrying the run ID for event tagging.
func PytestCommand(pytestBin string) CommandBuilder {
	return func(runID string, nodeIDs, extraArgs []string) (string, []string) {
		args := []string{"-v", "--tb=short"}
		args = append(args, extraArgs...)
		args = append(args, nodeIDs...)
		args = append(args,
			"-p", "pw_runner.pytest_plugin",
			"--pw-runner-run-id", runID,
		)
		return pytestBin, args
	}
}

// Manager coordinates test run execution and state.
type Manager struct {
	store   *store.Store
	build   CommandBuilder
	timeout time.Duration
	grace   time.Duration
	workDir string
	logger  *slog.Logger
	metrics *metrics.Metrics

	// mu guards the active-run slot, the summaries map, and every mutation
	// of an active summary. The check-then-set in StartRun holds it for
	// the whole critical section so two concurrent starts cannot both
	// observe an idle manager.
	mu        sync.Mutex
	current   string
	cancelRun context.CancelFunc
	cancelled bool
	runs      map[string]*models.RunSummary
	done      map[string]chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout overrides the per-run execution ceiling.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithGracePeriod overrides the terminate-to-kill grace period.
func WithGracePeriod(d time.Duration) Option {
	return func(m *Manager) { m.grace = d }
}

// WithCommandBuilder overrides how the child invocation is assembled.
func WithCommandBuilder(b CommandBuilder) Option {
	return func(m *Manager) { m.build = b }
}

// WithWorkDir sets the working directory for the child process.
func WithWorkDir(dir string) Option {
	return func(m *Manager) { m.workDir = dir }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// New creates a Manager persisting through st.
func New(st *store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:   st,
		build:   PytestCommand("pytest"),
		timeout: DefaultTimeout,
		grace:   DefaultGracePeriod,
		logger:  slog.Default(),
		runs:    make(map[string]*models.RunSummary),
		done:    make(map[string]chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// CurrentRunID returns the active run ID, or "" when the manager is idle.
func (m *Manager) CurrentRunID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// StartRun begins a new test run and returns its ID without waiting for
// the child to finish. It fails with ErrRunInProgress while a run is
// active.
func (m *Manager) StartRun(nodeIDs, extraArgs []string) (string, error) {
	runID := artifacts.GenerateRunID()
	runCtx, cancel := context.WithTimeout(context.Background(), m.timeout)

	m.mu.Lock()
	if m.current != "" {
		m.mu.Unlock()
		cancel()
		return "", ErrRunInProgress
	}
	summary := models.NewRunSummary(runID, time.Now())
	m.runs[runID] = summary
	m.done[runID] = make(chan struct{})
	m.current = runID
	m.cancelRun = cancel
	m.cancelled = false
	m.mu.Unlock()

	// The run directory exists only for runs that claimed the slot; a
	// rejected start must leave the artifact root untouched.
	if _, err := m.store.Root().EnsureRunDirs(runID); err != nil {
		m.mu.Lock()
		done := m.done[runID]
		delete(m.runs, runID)
		delete(m.done, runID)
		m.current = ""
		m.cancelRun = nil
		m.mu.Unlock()
		cancel()
		close(done)
		return "", err
	}

	if m.metrics != nil {
		m.metrics.RunsStarted.Inc()
		m.metrics.RunsActive.Set(1)
	}

	name, args := m.build(runID, nodeIDs, extraArgs)
	go m.execute(runCtx, runID, name, args)

	m.logger.Info("run started", "run_id", runID, "tests", len(nodeIDs))
	return runID, nil
}

// GetSummary returns the summary for a run, consulting memory first and
// falling back to the persisted snapshot. Loaded snapshots are cached.
func (m *Manager) GetSummary(runID string) (*models.RunSummary, error) {
	m.mu.Lock()
	if s, ok := m.runs[runID]; ok {
		defer m.mu.Unlock()
		return s.Clone(), nil
	}
	m.mu.Unlock()

	s, err := m.store.LoadSummary(runID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.runs[runID] = s
	m.mu.Unlock()
	return s.Clone(), nil
}

// ListRuns returns summaries for every run found under the artifact root,
// newest first. The active run is included via its in-memory state.
// Entries whose snapshot cannot be loaded are skipped.
func (m *Manager) ListRuns() ([]*models.RunSummary, error) {
	ids, err := m.store.ScanRunIDs()
	if err != nil {
		return nil, err
	}

	summaries := []*models.RunSummary{}
	for _, id := range ids {
		s, err := m.GetSummary(id)
		if err != nil {
			continue
		}
		summaries = append(summaries, s)
	}

	models.SortSummaries(summaries)
	return summaries, nil
}

// CancelRun cancels the active run. It returns false when runID is not the
// active run, including when that run already finished. On success it
// returns only after the child has been reaped and the cancelled summary
// persisted: graceful terminate first, force-kill after the grace period.
func (m *Manager) CancelRun(runID string) bool {
	m.mu.Lock()
	if m.current != runID || m.cancelRun == nil {
		m.mu.Unlock()
		return false
	}
	m.cancelled = true
	cancel := m.cancelRun
	done := m.done[runID]
	m.mu.Unlock()

	cancel()
	<-done
	return true
}

// Wait blocks until the given run reaches a terminal state or ctx expires.
func (m *Manager) Wait(ctx context.Context, runID string) error {
	m.mu.Lock()
	done, ok := m.done[runID]
	m.mu.Unlock()
	if !ok {
		return ErrRunNotFound
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execute runs the child process for one run and owns its full lifecycle.
// It always finalizes: the summary is persisted, the active slot cleared,
// and process handles released no matter how the run ends.
func (m *Manager) execute(runCtx context.Context, runID, name string, args []string) {
	var runErr error
	defer func() {
		m.finalize(runID, runCtx, runErr)
	}()

	eventLog, err := m.store.OpenRunEventLog(runID)
	if err != nil {
		// Best-effort durability: the run proceeds without an event log.
		m.logger.Error("opening event log", "run_id", runID, "error", err)
		eventLog = nil
	} else {
		defer eventLog.Close()
	}

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Dir = m.workDir
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = m.grace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		runErr = fmt.Errorf("capturing stdout: %w", err)
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		runErr = fmt.Errorf("capturing stderr: %w", err)
		return
	}

	if err := cmd.Start(); err != nil {
		runErr = fmt.Errorf("starting %s: %w", name, err)
		return
	}

	// Both pipes must be drained for the lifetime of the child or it can
	// stall on a full OS pipe buffer. Stdout is discarded, stderr carries
	// the event channel.
	g := new(errgroup.Group)
	g.Go(func() error {
		_, err := io.Copy(io.Discard, stdout)
		return err
	})
	g.Go(func() error {
		m.consumeEvents(runID, stderr, eventLog)
		return nil
	})
	if err := g.Wait(); err != nil {
		m.logger.Warn("draining child output", "run_id", runID, "error", err)
	}

	runErr = cmd.Wait()
}

// finalize resolves the terminal status, persists the snapshot, and clears
// the active-run slot.
func (m *Manager) finalize(runID string, runCtx context.Context, runErr error) {
	end := time.Now()

	m.mu.Lock()
	summary := m.runs[runID]
	switch {
	case m.cancelled:
		summary.Finish(models.StatusCancelled, end)
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		summary.Finish(models.StatusFailed, end)
		summary.Error = fmt.Sprintf("test run timed out after %s", m.timeout)
	case runErr != nil:
		summary.Finish(models.StatusFailed, end)
		summary.Error = runErr.Error()
	default:
		summary.Finish(models.StatusCompleted, end)
	}
	status := summary.Status
	duration := *summary.Duration
	snapshot := summary.Clone()
	// The slot frees in the same hold that stamps the terminal status, so
	// a cancel can never observe a terminal run as still active.
	m.current = ""
	if m.cancelRun != nil {
		m.cancelRun()
		m.cancelRun = nil
	}
	done := m.done[runID]
	m.mu.Unlock()

	if err := m.store.SaveSummary(snapshot); err != nil {
		m.logger.Error("persisting run summary", "run_id", runID, "error", err)
	}

	if m.metrics != nil {
		m.metrics.RunsFinished.WithLabelValues(string(status)).Inc()
		m.metrics.RunsActive.Set(0)
		m.metrics.RunDuration.Observe(duration)
	}

	close(done)

	m.logger.Info("run finished", "run_id", runID, "status", status,
		"duration_seconds", duration)
}

// consumeEvents reads the side channel line by line, appends each decoded
// event to the event log, and folds it into the summary. Malformed lines
// are dropped; the protocol is telemetry, not a control channel.
func (m *Manager) consumeEvents(runID string, r io.Reader, eventLog *store.EventLog) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		ev, err := protocol.ParseLine(scanner.Text())
		if err != nil {
			m.logger.Debug("dropping event line", "run_id", runID, "error", err)
			continue
		}
		if ev == nil {
			continue
		}

		if eventLog != nil {
			if err := eventLog.Append(ev.Raw); err != nil {
				m.logger.Warn("appending to event log", "run_id", runID, "error", err)
			}
		}
		m.applyEvent(runID, ev)
	}
	if err := scanner.Err(); err != nil {
		// Keep draining so the child cannot stall on a full pipe.
		m.logger.Warn("reading event channel", "run_id", runID, "error", err)
		_, _ = io.Copy(io.Discard, r)
	}
}

// applyEvent folds one protocol event into the in-memory summary.
func (m *Manager) applyEvent(runID string, ev *protocol.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary, ok := m.runs[runID]
	if !ok {
		return
	}

	switch ev.Type {
	case protocol.EventSessionStart:
		m.logger.Debug("session started", "run_id", runID)
	case protocol.EventTestStart:
		m.logger.Debug("test started", "run_id", runID, "nodeid", ev.TestStart.NodeID)
	case protocol.EventTestResult:
		summary.RecordResult(models.TestResult{
			NodeID:    ev.TestResult.NodeID,
			Outcome:   models.Outcome(ev.TestResult.Outcome),
			Duration:  ev.TestResult.Duration,
			Artifacts: map[string]string{},
		})
		if m.metrics != nil {
			m.metrics.TestResults.WithLabelValues(ev.TestResult.Outcome).Inc()
		}
	case protocol.EventSessionFinish:
		f := ev.SessionFinish
		summary.RecordFinalCounts(f.Passed, f.Failed, f.Skipped, f.Total)
	}
}
