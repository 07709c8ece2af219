package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/creditgate/pkg/cli"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configFile string
	output     string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "creditgate",
		Short: "Credit metering for AI features",
		Long: `Creditgate meters paid AI features per user against a recurring credit
budget. Repeated identical requests are served from a response cache at no
cost, and expensive features can enforce a cooldown between invocations.

Configuration is read from --config (YAML) and CREDITGATE_* environment
variables. Without --config the built-in defaults are used.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file path")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format (text, json, csv)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newServeCmd(opts),
		newStatsCmd(opts),
		newEstimateCmd(opts),
		newFeaturesCmd(opts),
		newAuthorizeCmd(opts),
		newSettleCmd(opts),
		newSweepCmd(opts),
		newValidateCmd(opts),
		newVersionCmd(opts),
		newCompletionCmd(),
	)
	return cmd
}

// Execute runs the root command and exits with a code derived from the
// returned error.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

// formatter returns the formatter selected by --output.
func (o *rootOptions) formatter() (cli.Formatter, cli.OutputFormat, error) {
	format, err := cli.ParseFormat(o.output)
	if err != nil {
		return nil, "", err
	}
	return cli.NewFormatter(format), format, nil
}
