package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/zeroecho/internal/observability"
	"github.com/jonathan/zeroecho/internal/types"
)

func newListCmd(root *rootOptions) *cobra.Command {
	var (
		state string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List articles in a given state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := types.ParseState(state)
			if err != nil {
				return err
			}

			svc, err := root.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			articles, err := svc.Registry.FindByState(cmd.Context(), st, limit)
			if err != nil {
				return err
			}
			observability.NewPrinter(cmd.OutOrStdout()).PrintArticles(articles)
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", string(types.StateCollected), "Article state to list")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum articles to list")
	return cmd
}
