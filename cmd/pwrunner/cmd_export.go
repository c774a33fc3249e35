package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pwlabs/pwrunner/internal/export"
)

func newExportCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Pack a run's artifacts into a .tar.zst archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}

			path, err := export.Archive(app.root, args[0], output)
			if err != nil {
				return err
			}
			fmt.Printf("exported %s to %s\n", args[0], path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Archive path (default <run-id>.tar.zst)")

	return cmd
}
