package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"mercator-hq/creditgate/pkg/cli"
)

func newSettleCmd(root *rootOptions) *cobra.Command {
	req := &requestFlags{}
	var result string

	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Charge a user for a completed feature invocation",
		Long: `Settle deducts the feature's credits after the work succeeded and, for
cacheable features, stores --result so identical requests within the
cache TTL are served for free.

The command exits with status 4 when the user no longer has enough
credits and 5 when the ledger is unavailable.`,
		Example: `  creditgate settle --user user-123 --feature meeting_summary \
    --input '{"meeting_id":"m-1"}' --result '{"summary":"..."}'`,
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
			var value any
			if result != "" {
				if !json.Valid([]byte(result)) {
					return cli.NewConfigError("result", "invalid JSON")
				}
				value = json.RawMessage(result)
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

			out, settleErr := a.gate.Settle(ctx, req.user, feature, input, value)
			if out == nil {
				return settleErr
			}
			if err := writeResult(cmd, f, format, out, settleView(out)); err != nil {
				return err
			}
			return settleErr
		},
	}
	req.register(cmd)
	cmd.Flags().StringVar(&result, "result", "", "feature result as JSON; cacheable features store it, an omitted result is not cached")
	return cmd
}
