package main

import (
	"github.com/spf13/cobra"

	"mercator-hq/creditgate/pkg/cli"
	"mercator-hq/creditgate/pkg/costs"
)

func newEstimateCmd(root *rootOptions) *cobra.Command {
	var feature string

	cmd := &cobra.Command{
		Use:   "estimate [feature]",
		Short: "Show the credit cost of a feature",
		Example: `  creditgate estimate meeting_summary
  creditgate estimate --feature weekly_report -o json`,
		Args: cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return featureNames(), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				feature = args[0]
			}
			f, _, err := root.formatter()
			if err != nil {
				return err
			}
			id, err := parseFeature(feature)
			if err != nil {
				return err
			}
			est, err := costs.DefaultTable().Estimate(id)
			if err != nil {
				return err
			}
			if _, ok := f.(*cli.JSONFormatter); ok {
				return f.FormatTo(cmd.OutOrStdout(), est)
			}
			return f.FormatTo(cmd.OutOrStdout(), estimateTable(est))
		},
	}
	cmd.Flags().StringVarP(&feature, "feature", "f", "", "feature id")
	return cmd
}

func featureNames() []string {
	entries := costs.DefaultTable().Features()
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, string(e.Feature))
	}
	return names
}
