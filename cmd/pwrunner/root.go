package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pwlabs/pwrunner/internal/webapi"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	webapi.Version = version
	cmd := &cobra.Command{
		Use:   "pwrunner",
		Short: "pwrunner - test runner backend for pytest + Playwright",
		Long: `pwrunner orchestrates batches of pytest + Playwright tests as
out-of-process runs: it spawns pytest with event-stream instrumentation,
tracks live progress, and persists per-run summaries and artifacts.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	// Add subcommands
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newDiscoverCommand())
	cmd.AddCommand(newCheckCommand())
	cmd.AddCommand(newExportCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
