package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pwlabs/pwrunner/internal/validation"
)

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate persisted run summaries against their schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}

			ids, err := app.store.ScanRunIDs()
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println("no runs found")
				return nil
			}

			invalid := 0
			for _, id := range ids {
				errs, err := validation.ValidateSummaryFile(app.root.SummaryPath(id))
				if err != nil {
					fmt.Printf("%s: %v\n", id, err)
					invalid++
					continue
				}
				if len(errs) > 0 {
					invalid++
					fmt.Printf("%s: INVALID\n", id)
					for _, e := range errs {
						fmt.Printf("  %s\n", e)
					}
				}
			}

			if invalid > 0 {
				return fmt.Errorf("%d of %d run summaries failed validation", invalid, len(ids))
			}
			fmt.Printf("%d run summaries valid\n", len(ids))
			return nil
		},
	}
}
