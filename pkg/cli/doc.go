/*
Package cli provides helpers shared by the creditgate commands.

Output formatting (text, json, csv) for command results:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, stats); err != nil {
		return err
	}

Results implementing Table render as aligned columns in text mode and as
rows in csv mode.

Signal handling for long-running commands:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

ExitCode maps command errors to process exit codes, so scripts can tell a
denial from a configuration problem.
*/
package cli
