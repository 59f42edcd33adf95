package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/zeroecho/internal/observability"
)

func newRunsCmd(root *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent pipeline runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := root.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			runs, err := svc.Runs.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			observability.NewPrinter(cmd.OutOrStdout()).PrintRuns(runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	return cmd
}
