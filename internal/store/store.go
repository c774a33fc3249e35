// Package store persists run state under the artifact root: a
// point-in-time summary snapshot per run plus an append-only event log.
// Once a run is terminal the snapshot on disk is authoritative; in-memory
// copies held elsewhere are caches.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/pwlabs/pwrunner/internal/artifacts"
	"github.com/pwlabs/pwrunner/internal/models"
)

// ErrRunNotFound is returned when a run ID does not match any stored run.
var ErrRunNotFound = errors.New("run not found")

// Store reads and writes run summaries below an artifact root.
type Store struct {
	root artifacts.Root
}

// New creates a Store over the given artifact root.
func New(root artifacts.Root) *Store {
	return &Store{root: root}
}

// Root returns the artifact root this store operates on.
func (s *Store) Root() artifacts.Root {
	return s.root
}

// SaveSummary writes the snapshot for a run, replacing any previous one.
func (s *Store) SaveSummary(summary *models.RunSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding run summary: %w", err)
	}
	if _, err := s.root.EnsureRunDirs(summary.RunID); err != nil {
		return err
	}
	path := s.root.SummaryPath(summary.RunID)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing run summary: %w", err)
	}
	return nil
}

// LoadSummary reads the snapshot for a run. Returns ErrRunNotFound when no
// snapshot exists.
func (s *Store) LoadSummary(runID string) (*models.RunSummary, error) {
	data, err := os.ReadFile(s.root.SummaryPath(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("reading run summary: %w", err)
	}

	var summary models.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("decoding run summary: %w", err)
	}
	return &summary, nil
}

// ScanRunIDs returns the IDs of all run directories under the artifact
// root, in directory order. A missing root is an empty result, not an
// error.
func (s *Store) ScanRunIDs() ([]string, error) {
	entries, err := os.ReadDir(s.root.Dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning artifact root: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() && artifacts.IsRunID(e.Name()) {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// ListSummaries loads every run summary under the artifact root, skipping
// entries that cannot be read or decoded. Results are sorted by start
// time, newest first.
func (s *Store) ListSummaries() ([]*models.RunSummary, error) {
	ids, err := s.ScanRunIDs()
	if err != nil {
		return nil, err
	}

	summaries := []*models.RunSummary{}
	for _, id := range ids {
		summary, err := s.LoadSummary(id)
		if err != nil {
			continue
		}
		summaries = append(summaries, summary)
	}

	models.SortSummaries(summaries)
	return summaries, nil
}

// OpenRunEventLog opens the append-only event log for a run.
func (s *Store) OpenRunEventLog(runID string) (*EventLog, error) {
	return OpenEventLog(s.root.EventsPath(runID))
}
