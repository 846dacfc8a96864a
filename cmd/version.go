package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"lightkeeper/internal/version"
)

// CreateVersionCmd creates the version command.
func CreateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version and build information",
		Run: func(cmd *cobra.Command, _ []string) {
			info := version.Get()
			fmt.Fprintf(cmd.OutOrStdout(), "lightkeeper %s\n", info.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "  commit:   %s\n", info.GitCommit)
			fmt.Fprintf(cmd.OutOrStdout(), "  built:    %s\n", info.BuildDate)
			fmt.Fprintf(cmd.OutOrStdout(), "  go:       %s (%s)\n", info.GoVersion, info.Platform)
		},
	}
}
