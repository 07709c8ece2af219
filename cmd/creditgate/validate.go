package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long: `Validate loads the configuration from --config and CREDITGATE_* environment
variables and reports every invalid field. It exits with status 3 when the
configuration is invalid.`,
		Example: `  creditgate validate --config creditgate.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if _, err := cfg.Credits.PeriodClock(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
			fmt.Fprintf(cmd.OutOrStdout(), "  storage:  %s\n", cfg.Storage.Backend)
			fmt.Fprintf(cmd.OutOrStdout(), "  period:   %s (%s)\n", cfg.Credits.Period, cfg.Credits.Timezone)
			fmt.Fprintf(cmd.OutOrStdout(), "  plans:    %d\n", len(cfg.Credits.Plans))
			return nil
		},
	}
}
