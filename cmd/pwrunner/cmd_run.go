package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	var pytestArgs []string

	cmd := &cobra.Command{
		Use:   "run [nodeid...]",
		Short: "Run tests and wait for the result",
		Long: `Run the given pytest nodeids (or the whole suite when none are
given) as a tracked run, wait for completion, and print the summary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}

			runID, err := app.manager.StartRun(args, pytestArgs)
			if err != nil {
				return err
			}
			fmt.Printf("started run %s\n", runID)

			if err := app.manager.Wait(cmd.Context(), runID); err != nil {
				return err
			}

			summary, err := app.manager.GetSummary(runID)
			if err != nil {
				return err
			}

			fmt.Printf("status: %s\n", summary.Status)
			fmt.Printf("total: %d  passed: %d  failed: %d  skipped: %d\n",
				summary.TotalTests, summary.Passed, summary.Failed, summary.Skipped)
			if summary.Duration != nil {
				fmt.Printf("duration: %.1fs\n", *summary.Duration)
			}
			if summary.Error != "" {
				fmt.Printf("error: %s\n", summary.Error)
			}

			if summary.Failed > 0 {
				return &TestFailureError{
					Message: fmt.Sprintf("%d of %d tests failed", summary.Failed, summary.TotalTests),
				}
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&pytestArgs, "pytest-arg", nil,
		"Additional argument passed through to pytest (repeatable)")

	return cmd
}
