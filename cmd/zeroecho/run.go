package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/zeroecho/internal/observability"
	"github.com/jonathan/zeroecho/internal/pipeline"
	"github.com/jonathan/zeroecho/internal/pipeline/steps"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		phases     []string
		dryRun     bool
		batchLimit int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run pipeline phases once",
		Long: fmt.Sprintf(`Runs the selected phases in pipeline order: %s.

With no --phases every phase runs. --dry-run reports what would change without
writing to the registry.`, strings.Join(phaseNames(), " -> ")),
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := root.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			if batchLimit <= 0 {
				batchLimit = svc.Config.Pipeline.BatchLimit
			}
			result, err := svc.Orchestrator.Run(cmd.Context(), pipeline.RunRequest{
				Phases:     phases,
				DryRun:     dryRun,
				BatchLimit: batchLimit,
			})
			if err != nil {
				return err
			}

			observability.NewPrinter(cmd.OutOrStdout()).PrintRunResult(result)
			if result.Cancelled {
				return fmt.Errorf("run %s cancelled", result.RunID)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&phases, "phases", nil, "Comma-separated phases to run (default all)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report without mutating the registry")
	cmd.Flags().IntVar(&batchLimit, "batch-limit", 0, "Maximum articles per phase (default from config)")
	return cmd
}

func phaseNames() []string {
	names := make([]string, 0, len(steps.Order))
	for _, p := range steps.Order {
		names = append(names, string(p))
	}
	return names
}
