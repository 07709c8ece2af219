package main

import (
	"github.com/spf13/cobra"

	"mercator-hq/creditgate/pkg/cli"
)

func newStatsCmd(root *rootOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show a user's credit usage for the current period",
		Example: `  creditgate stats --user user-123
  creditgate stats --user user-123 -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return cli.NewConfigError("user", "--user is required")
			}
			f, format, err := root.formatter()
			if err != nil {
				return err
			}
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

			stats, err := a.gate.UsageStats(ctx, userID)
			if err != nil {
				return cli.NewCommandError("stats", err)
			}
			return writeStats(cmd.OutOrStdout(), f, format, stats)
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id")
	return cmd
}
