package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/zeroecho/internal/observability"
	"github.com/jonathan/zeroecho/internal/registry"
	"github.com/jonathan/zeroecho/internal/types"
)

func newGetCmd(root *rootOptions) *cobra.Command {
	var byURL bool

	cmd := &cobra.Command{
		Use:   "get <article-id>",
		Short: "Show one article from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := root.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			id := args[0]
			if byURL {
				id = types.ArticleID(id)
			}
			article, err := svc.Registry.Get(cmd.Context(), id)
			if errors.Is(err, registry.ErrNotFound) {
				return fmt.Errorf("article %s not found", id)
			}
			if err != nil {
				return err
			}

			observability.NewPrinter(cmd.OutOrStdout()).PrintArticle(article)
			return nil
		},
	}

	cmd.Flags().BoolVar(&byURL, "url", false, "Treat the argument as a source URL and derive its id")
	return cmd
}
