package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jonathan/zeroecho/internal/config"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "zeroecho",
		Short: "Zero Echo news pipeline",
		Long: `Zero Echo collects articles from feeds and section pages, extracts their text,
scores them with an analysis model and publishes the ones worth reading.

Configuration is read from --config (or ./zeroecho.yaml) and ZEROECHO_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to zeroecho.yaml")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(
		newRunCmd(opts),
		newGetCmd(opts),
		newListCmd(opts),
		newRunsCmd(opts),
		newScheduleCmd(opts),
		newRebuildManifestsCmd(opts),
	)
	return cmd
}

// loadConfig reads and validates the configuration selected by the root flags.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// services loads the config and builds the command's dependencies.
// The caller must Close the result.
func (o *rootOptions) services(ctx context.Context) (*Services, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return NewServices(ctx, cfg)
}
