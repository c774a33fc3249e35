package main

import (
	"slices"
	"time"

	"github.com/pwlabs/pwrunner/internal/artifacts"
	"github.com/pwlabs/pwrunner/internal/discovery"
	"github.com/pwlabs/pwrunner/internal/projectconfig"
	"github.com/pwlabs/pwrunner/internal/runner"
	"github.com/pwlabs/pwrunner/internal/store"
)

// app wires the project configuration into the concrete collaborators the
// commands share. There is no global manager; each command constructs one
// and passes it where needed.
type app struct {
	cfg        *projectconfig.ProjectConfig
	root       artifacts.Root
	store      *store.Store
	manager    *runner.Manager
	discoverer *discovery.Discoverer
}

// newApp wires the shared collaborators. Extra runner options let serve
// attach instrumentation that one-shot commands have no use for; metrics in
// particular must not be registered per invocation.
func newApp(extraOpts ...runner.Option) (*app, error) {
	cfg, err := projectconfig.Load(".")
	if err != nil {
		return nil, err
	}

	root := artifacts.NewRoot(cfg.Paths.Artifacts)
	st := store.New(root)

	opts := []runner.Option{
		runner.WithTimeout(time.Duration(cfg.Pytest.RunTimeoutSec) * time.Second),
		runner.WithGracePeriod(time.Duration(cfg.Pytest.CancelGraceSec) * time.Second),
		runner.WithCommandBuilder(configuredCommand(cfg)),
	}
	opts = append(opts, extraOpts...)
	manager := runner.New(st, opts...)

	return &app{
		cfg:        cfg,
		root:       root,
		store:      st,
		manager:    manager,
		discoverer: discovery.New(cfg.Pytest.Bin, ""),
	}, nil
}

// configuredCommand extends the standard pytest invocation with the extra
// arguments from .pwrunner.yaml.
func configuredCommand(cfg *projectconfig.ProjectConfig) runner.CommandBuilder {
	base := runner.PytestCommand(cfg.Pytest.Bin)
	return func(runID string, nodeIDs, extraArgs []string) (string, []string) {
		return base(runID, nodeIDs, slices.Concat(cfg.Pytest.Args, extraArgs))
	}
}
