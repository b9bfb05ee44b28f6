package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/ytpull/internal/output"
)

func newInfoCmd() *cobra.Command {
	var markdown bool

	cmd := &cobra.Command{
		Use:   "info [URL]",
		Short: "Show details and formats of a video or playlist",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			client := newServiceClient()
			info, err := client.VideoInfo(cmd.Context(), args[0])
			exitOnError("Error fetching video info", err)
			output.RenderVideoInfo(os.Stdout, info, markdown)
		},
	}

	cmd.Flags().BoolVar(&markdown, "markdown", false, "Render tables as markdown")
	return cmd
}
