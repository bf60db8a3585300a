package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tessro/fbmon/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print the version, commit, and build date of fbmon.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "🧪 fbmon %s\n", version.Get())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
