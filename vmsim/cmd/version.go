package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at link time with -ldflags "-X".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of vmsim.",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "vmsim %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
