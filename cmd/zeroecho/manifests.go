package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRebuildManifestsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-manifests",
		Short: "Regenerate the per-partition manifests from the cached article files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := root.services(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			n, err := svc.Registry.RebuildManifests(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt %d partition manifests\n", n)
			return nil
		},
	}
}
