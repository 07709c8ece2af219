package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/creditgate/pkg/cache"
	"mercator-hq/creditgate/pkg/cli"
)

func newSweepCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired cache entries once",
		Long: `Sweep removes expired response cache entries and exits. "creditgate serve"
runs the same sweep on cache.sweep_schedule; this command is meant for
external schedulers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			deleted, err := cache.NewSweeper(a.cache, "", nil).RunOnce(ctx)
			if err != nil {
				return cli.NewCommandError("sweep", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d expired cache entries\n", deleted)
			return nil
		},
	}
}
