package cmd

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/ytpull/internal/fetcher"
	"github.com/tanq16/ytpull/internal/output"
	"github.com/tanq16/ytpull/internal/scheduler"
	"golang.org/x/term"
)

func newBatchCmd() *cobra.Command {
	var workers int
	var noFetch bool

	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE] [OPTIONS]",
		Short: "Process multiple downloads from a YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			entries, err := scheduler.LoadBatch(args[0])
			exitOnError("Error loading batch", err)
			if !cmd.Flags().Changed("workers") {
				workers = cfg.Workers
			}

			client := newServiceClient()
			target := newSink(ctx)
			log.Debug().Str("op", "cmd/batch").Msgf("starting scheduler with %d entries on %d workers", len(entries), workers)
			err = scheduler.Run(ctx, entries, scheduler.Config{
				Service:  client,
				Workers:  workers,
				Interval: cfg.PollInterval,
				NoFetch:  noFetch,
				NewDownloader: func(notify fetcher.Notifier) scheduler.Downloader {
					return newFetcher(client, target, notify)
				},
				Out:  os.Stdout,
				Live: term.IsTerminal(int(os.Stdout.Fd())),
			})
			if err != nil {
				output.PrintError("Encountered failed operation(s)")
				os.Exit(1)
			}
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "Number of entries to process in parallel")
	cmd.Flags().BoolVar(&noFetch, "no-fetch", false, "Stop each entry once the service finished the job")
	return cmd
}
