package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/ytpull/internal/output"
)

func newFetchCmd() *cobra.Command {
	var outputName string

	cmd := &cobra.Command{
		Use:   "fetch [MEDIA_URL] [--output NAME]",
		Short: "Stream a media file directly, falling back to the service proxy",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			client := newServiceClient()
			toaster := output.NewToaster(os.Stdout)
			downloader := newFetcher(client, newSink(ctx), toaster)

			name := outputName
			if name == "" {
				name = nameFromURL(args[0])
			}
			ok := downloader.Download(ctx, args[0], name, nil)
			downloader.Wait()
			toaster.Close()
			if !ok {
				output.PrintError("Download failed")
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVarP(&outputName, "output", "o", "", "File name (inferred from the URL if not provided)")
	return cmd
}
