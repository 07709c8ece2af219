package main

import (
	"github.com/spf13/cobra"

	"mercator-hq/creditgate/pkg/cli"
	"mercator-hq/creditgate/pkg/costs"
)

func newFeaturesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "List metered features and their costs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, _, err := root.formatter()
			if err != nil {
				return err
			}
			entries := costs.DefaultTable().Features()
			if _, ok := f.(*cli.JSONFormatter); ok {
				return f.FormatTo(cmd.OutOrStdout(), entries)
			}
			return f.FormatTo(cmd.OutOrStdout(), featureTable(entries))
		},
	}
}
