// Package projectconfig provides the ProjectConfig struct and loader for
// .pwrunner.yaml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the project configuration file searched for upward
// from the working directory.
const ConfigFileName = ".pwrunner.yaml"

// Default values for project configuration. These are the single source of
// truth — New() references them and no other code should duplicate them.
const (
	DefaultArtifactDir = ".pw-runner/runs"
	DefaultTestPath    = "user_tests"

	DefaultPytestBin           = "pytest"
	DefaultRunTimeoutSec       = 3600
	DefaultCancelGraceSec      = 5
	DefaultDiscoveryTimeoutSec = 60

	DefaultServerHost = "127.0.0.1"
	DefaultServerPort = 8000
)

// PathsConfig holds directory paths for artifacts and user tests.
type PathsConfig struct {
	Artifacts string `yaml:"artifacts,omitempty"`
	Tests     string `yaml:"tests,omitempty"`
}

// PytestConfig holds settings for the spawned pytest processes.
type PytestConfig struct {
	Bin                 string   `yaml:"bin,omitempty"`
	Args                []string `yaml:"args,omitempty"`
	RunTimeoutSec       int      `yaml:"run_timeout,omitempty"`
	CancelGraceSec      int      `yaml:"cancel_grace,omitempty"`
	DiscoveryTimeoutSec int      `yaml:"discovery_timeout,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string   `yaml:"host,omitempty"`
	Port        int      `yaml:"port,omitempty"`
	CORSOrigins []string `yaml:"cors_origins,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .pwrunner.yaml.
type ProjectConfig struct {
	Paths  PathsConfig  `yaml:"paths,omitempty"`
	Pytest PytestConfig `yaml:"pytest,omitempty"`
	Server ServerConfig `yaml:"server,omitempty"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Paths: PathsConfig{
			Artifacts: DefaultArtifactDir,
			Tests:     DefaultTestPath,
		},
		Pytest: PytestConfig{
			Bin:                 DefaultPytestBin,
			RunTimeoutSec:       DefaultRunTimeoutSec,
			CancelGraceSec:      DefaultCancelGraceSec,
			DiscoveryTimeoutSec: DefaultDiscoveryTimeoutSec,
		},
		Server: ServerConfig{
			Host: DefaultServerHost,
			Port: DefaultServerPort,
		},
	}
}

// Load finds .pwrunner.yaml by walking up from startDir (max 10 levels),
// unmarshals it, and fills in missing fields with defaults.
// If no config file is found, returns defaults with a nil error.
// Real I/O errors (e.g. permission denied) are returned to the caller.
func Load(startDir string) (*ProjectConfig, error) {
	cfg := New()

	data, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil // no file found → return defaults
		}
		return nil, fmt.Errorf("loading %s: %w", ConfigFileName, err)
	}

	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ConfigFileName, err)
	}

	mergeConfig(cfg, &fileCfg)
	return cfg, nil
}

// findConfigFile walks up from dir looking for .pwrunner.yaml (max 10
// levels). Returns os.ErrNotExist if no config file is found. Propagates
// real I/O errors (e.g. permission denied) instead of silently swallowing
// them.
func findConfigFile(dir string) ([]byte, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, ConfigFileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return nil, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	// Paths
	if src.Paths.Artifacts != "" {
		dst.Paths.Artifacts = src.Paths.Artifacts
	}
	if src.Paths.Tests != "" {
		dst.Paths.Tests = src.Paths.Tests
	}

	// Pytest
	if src.Pytest.Bin != "" {
		dst.Pytest.Bin = src.Pytest.Bin
	}
	if len(src.Pytest.Args) > 0 {
		dst.Pytest.Args = src.Pytest.Args
	}
	if src.Pytest.RunTimeoutSec != 0 {
		dst.Pytest.RunTimeoutSec = src.Pytest.RunTimeoutSec
	}
	if src.Pytest.CancelGraceSec != 0 {
		dst.Pytest.CancelGraceSec = src.Pytest.CancelGraceSec
	}
	if src.Pytest.DiscoveryTimeoutSec != 0 {
		dst.Pytest.DiscoveryTimeoutSec = src.Pytest.DiscoveryTimeoutSec
	}

	// Server
	if src.Server.Host != "" {
		dst.Server.Host = src.Server.Host
	}
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if len(src.Server.CORSOrigins) > 0 {
		dst.Server.CORSOrigins = src.Server.CORSOrigins
	}
}
