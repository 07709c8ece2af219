package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/creditgate/pkg/cli"
)

// requestFlags are shared by authorize and settle.
type requestFlags struct {
	user    string
	feature string
	input   string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.user, "user", "u", "", "user id")
	cmd.Flags().StringVarP(&f.feature, "feature", "f", "", "feature id")
	cmd.Flags().StringVar(&f.input, "input", "", "request input as JSON")
	cmd.RegisterFlagCompletionFunc("feature", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return featureNames(), cobra.ShellCompDirectiveNoFileComp
	})
}

// decodeInput parses --input. Decoding into a generic value makes the
// request hash independent of the key order given on the command line.
func (f *requestFlags) decodeInput() (any, error) {
	if f.input == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(f.input), &v); err != nil {
		return nil, cli.NewConfigError("input", fmt.Sprintf("invalid JSON: %v", err))
	}
	return v, nil
}

func (f *requestFlags) validate() error {
	if f.user == "" {
		return cli.NewConfigError("user", "--user is required")
	}
	return nil
}

func newAuthorizeCmd(root *rootOptions) *cobra.Command {
	req := &requestFlags{}

	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Check whether a user may invoke a feature",
		Long: `Authorize runs the pre-invocation checks for a feature: response cache,
cooldown and remaining credits. It never charges credits; a cache hit is
recorded as a zero-cost transaction.

The command exits with status 4 when the request is denied and 5 when the
ledger is unavailable.`,
		Example: `  creditgate authorize --user user-123 --feature meeting_summary --input '{"meeting_id":"m-1"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := req.validate(); err != nil {
				return err
			}
			f, format, err := root.formatter()
			if err != nil {
				return err
			}
			feature, err := parseFeature(req.feature)
			if err != nil {
				return err
			}
			input, err := req.decodeInput()
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

			d, err := a.gate.Authorize(ctx, req.user, feature, input)
			if err != nil {
				return err
			}
			if err := writeResult(cmd, f, format, d, decisionView(d)); err != nil {
				return err
			}
			return d.Err()
		},
	}
	req.register(cmd)
	return cmd
}

// writeResult prints v as JSON or text as text.
func writeResult(cmd *cobra.Command, f cli.Formatter, format cli.OutputFormat, v any, text string) error {
	if format == cli.FormatJSON {
		return f.FormatTo(cmd.OutOrStdout(), v)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), text)
	return err
}

