package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/sessionkeeper/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Full())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
