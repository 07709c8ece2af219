package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"mercator-hq/creditgate/pkg/cli"
	"mercator-hq/creditgate/pkg/telemetry/health"
)

var (
	// Version is the semantic version (set by build flags)
	Version = "0.1.0"
	// GitCommit is the git commit hash (set by build flags)
	GitCommit = "unknown"
	// BuildDate is the build timestamp (set by build flags)
	BuildDate = "unknown"
)

func newVersionCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := health.NewVersionInfo(Version, GitCommit, BuildDate)
			f, format, err := root.formatter()
			if err != nil {
				return err
			}
			if format == cli.FormatJSON {
				return f.FormatTo(cmd.OutOrStdout(), info)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "creditgate %s\n", info.Version)
			fmt.Fprintf(w, "Git Commit: %s\n", info.Commit)
			fmt.Fprintf(w, "Build Date: %s\n", info.BuildTime)
			fmt.Fprintf(w, "Go Version: %s\n", info.GoVersion)
			fmt.Fprintf(w, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}
