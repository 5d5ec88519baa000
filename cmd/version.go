package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/decentraland/editor-sdk6-sub000/internal/version"
)

// CreateVersionCmd creates the version command.
func CreateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		Run: func(c *cobra.Command, _ []string) {
			info := version.Get()
			out := c.OutOrStdout()
			fmt.Fprintf(out, "devsup %s\n", info.Short())
			fmt.Fprintf(out, "  commit:   %s\n", info.GitCommit)
			fmt.Fprintf(out, "  built:    %s (%s)\n", info.BuildDate, info.BuildID)
			fmt.Fprintf(out, "  go:       %s %s\n", info.GoVersion, info.Compiler)
			fmt.Fprintf(out, "  platform: %s\n", info.Platform)
		},
	}
}
