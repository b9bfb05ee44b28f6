package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/ytpull/internal/fetcher"
	"github.com/tanq16/ytpull/internal/jobservice"
	"github.com/tanq16/ytpull/internal/output"
	"github.com/tanq16/ytpull/internal/session"
	"github.com/tanq16/ytpull/internal/tracker"
)

func newGetCmd() *cobra.Command {
	var format string
	var mediaType string
	var playlist bool
	var title string
	var outputName string
	var noFetch bool

	cmd := &cobra.Command{
		Use:   "get [URL] [--format FORMAT] [--type video|audio] [--playlist] [--title TITLE]",
		Short: "Submit a download, track it on the service and fetch the result",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			url := args[0]
			client := newServiceClient()
			s := session.New(client, output.NewPanel(os.Stdout))
			s.Tracker().Interval = cfg.PollInterval

			if format != "" {
				s.SelectFormat(format, jobservice.MediaType(mediaType))
			} else {
				info, err := s.Lookup(ctx, url)
				exitOnError("Error fetching video info", err)
				if jobservice.MediaType(mediaType) == jobservice.MediaAudio && len(info.AudioFormats) > 0 {
					s.SelectFormat(info.AudioFormats[0].FormatID, jobservice.MediaAudio)
				}
			}
			if cmd.Flags().Changed("playlist") {
				s.SetPlaylist(playlist)
			}
			s.SetTitle(title)

			var fetched fetchResult
			var downloader *fetcher.Fetcher
			toaster := output.NewToaster(os.Stdout)
			if !noFetch {
				downloader = newFetcher(client, newSink(ctx), toaster)
				s.Tracker().OnComplete = autoFetch(client, downloader, outputName, &fetched)
			}

			output.PrintInfo(fmt.Sprintf("%s: %s", s.ButtonLabel(), url))
			started, err := s.Start(ctx, url)
			exitOnError("Download failed", err)
			if started.WatchURL != "" {
				watch, _ := client.Resolve(started.WatchURL)
				output.PrintWarning(fmt.Sprintf("Service returned a watch page instead of a job: %s", watch))
				return
			}
			log.Debug().Str("op", "cmd/get").Msgf("tracking job %s", started.Job.ID)

			outcome, err := s.Wait(ctx)
			exitOnError("Tracking stopped", err)
			finishFetch(downloader, toaster, outcome, fetched)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Format id (defaults to the first format the service lists)")
	cmd.Flags().StringVar(&mediaType, "type", "", "Media type: video or audio (derived from the format when empty)")
	cmd.Flags().BoolVar(&playlist, "playlist", false, "Download the whole playlist")
	cmd.Flags().StringVar(&title, "title", "", "Title sent with the job")
	cmd.Flags().StringVarP(&outputName, "output", "o", "", "File name for the fetched file")
	cmd.Flags().BoolVar(&noFetch, "no-fetch", false, "Stop once the service finished the job")
	return cmd
}

type fetchResult struct {
	attempted bool
	ok        bool
}

// autoFetch returns the completion hook that pulls the finished file from
// the service. The tracker runs it before Wait returns.
func autoFetch(client *jobservice.Client, downloader *fetcher.Fetcher, name string, result *fetchResult) func(context.Context, tracker.Link) {
	return func(ctx context.Context, link tracker.Link) {
		result.attempted = true
		target, err := client.Resolve(link.Href)
		if err != nil {
			log.Error().Str("op", "cmd/fetch").Err(err).Msgf("bad download URL %q", link.Href)
			return
		}
		filename := link.Filename
		if name != "" {
			filename = name
		}
		result.ok = downloader.Download(ctx, target, filename, nil)
	}
}

// finishFetch waits for background transfers and exits non-zero when the
// job failed or nothing could be fetched.
func finishFetch(downloader *fetcher.Fetcher, toaster *output.Toaster, outcome tracker.Outcome, fetched fetchResult) {
	if downloader != nil {
		downloader.Wait()
	}
	toaster.Close()
	if outcome.Status == jobservice.StateError {
		os.Exit(1)
	}
	if downloader == nil {
		return
	}
	if !fetched.attempted {
		output.PrintError(jobservice.ErrNoDownloadURL.Error())
		os.Exit(1)
	}
	if !fetched.ok {
		output.PrintError("Could not fetch the finished file")
		os.Exit(1)
	}
}
