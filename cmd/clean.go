package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tanq16/ytpull/internal/output"
	"github.com/tanq16/ytpull/internal/sink"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [DIR]",
		Short: "Remove partial downloads left in the staging directory",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dir := cfg.OutputDir
			if len(args) > 0 {
				dir = args[0]
			}
			exitOnError("Error cleaning up temporary files", sink.NewLocal(dir).Cleanup())
			output.PrintSuccess(fmt.Sprintf("Temporary files cleaned up in %s", dir))
		},
	}
}
