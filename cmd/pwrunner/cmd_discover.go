package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pwlabs/pwrunner/internal/discovery"
)

func newDiscoverCommand() *cobra.Command {
	var keyword string
	var marker string

	cmd := &cobra.Command{
		Use:   "discover [path]",
		Short: "List the tests pytest would collect",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}

			path := app.cfg.Paths.Tests
			if len(args) == 1 {
				path = args[0]
			}

			tests, err := app.discoverer.Discover(cmd.Context(), discovery.Options{
				Path:    path,
				Keyword: keyword,
				Marker:  marker,
			})
			if err != nil {
				return err
			}

			for file, group := range discovery.GroupByFile(tests) {
				fmt.Printf("%s (%d tests)\n", file, len(group))
				for _, t := range group {
					fmt.Printf("  %s\n", t.NodeID)
				}
			}
			fmt.Printf("%d tests collected\n", len(tests))
			return nil
		},
	}

	cmd.Flags().StringVarP(&keyword, "keyword", "k", "", "Keyword filter passed to pytest -k")
	cmd.Flags().StringVarP(&marker, "marker", "m", "", "Marker filter passed to pytest -m")

	return cmd
}
