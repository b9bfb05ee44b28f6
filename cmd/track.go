package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/ytpull/internal/fetcher"
	"github.com/tanq16/ytpull/internal/output"
	"github.com/tanq16/ytpull/internal/tracker"
)

func newTrackCmd() *cobra.Command {
	var outputName string
	var noFetch bool

	cmd := &cobra.Command{
		Use:   "track [JOB_ID]",
		Short: "Follow an existing job until it finishes",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			client := newServiceClient()
			t := tracker.New(client, output.NewPanel(os.Stdout))
			t.Interval = cfg.PollInterval

			var fetched fetchResult
			var downloader *fetcher.Fetcher
			toaster := output.NewToaster(os.Stdout)
			if !noFetch {
				downloader = newFetcher(client, newSink(ctx), toaster)
				t.OnComplete = autoFetch(client, downloader, outputName, &fetched)
			}

			t.Track(ctx, args[0])
			outcome, err := t.Wait(ctx)
			exitOnError("Tracking stopped", err)
			finishFetch(downloader, toaster, outcome, fetched)
		},
	}

	cmd.Flags().StringVarP(&outputName, "output", "o", "", "File name for the fetched file")
	cmd.Flags().BoolVar(&noFetch, "no-fetch", false, "Only report the download link")
	return cmd
}
