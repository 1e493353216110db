package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/telsin/riptide/internal/output"
	"github.com/telsin/riptide/internal/utils"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [dir]",
		Short: "Remove leftover partial files and resume state",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if err := utils.CleanDir(dir); err != nil {
				output.PrintError("Error cleaning up temporary files")
				os.Exit(1)
			}
			output.PrintSuccess("Temporary files cleaned up")
		},
	}
}
