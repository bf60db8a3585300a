package cli

import (
	"github.com/spf13/cobra"

	"github.com/tessro/fbmon/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"tui"},
	Short:   "Launch the live dashboard",
	Long:    "Launch the interactive dashboard that follows the status, work queue and iterations of the active project.",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// The dashboard owns the terminal; log to the file only.
		logStderr = false
		conn, err := connect(cmd)
		if err != nil {
			return err
		}
		defer conn.Close()
		return tui.Run(cmd.Context(), conn)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
