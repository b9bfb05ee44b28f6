package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"

	"github.com/tanq16/ytpull/internal/fetcher"
	"github.com/tanq16/ytpull/internal/jobservice"
	"github.com/tanq16/ytpull/internal/output"
	"github.com/tanq16/ytpull/internal/sink"
	"github.com/tanq16/ytpull/internal/utils"
)

func exitOnError(message string, err error) {
	if err != nil {
		output.PrintError(fmt.Sprintf("%s: %v", message, err))
		os.Exit(1)
	}
}

func newServiceClient() *jobservice.Client {
	client, err := jobservice.NewClient(jobservice.Config{
		BaseURL:           cfg.Server,
		HTTP:              cfg.HTTPClientConfig(),
		Token:             cfg.Token,
		RequestsPerSecond: cfg.RequestsPerSecond,
		InfoTTL:           cfg.InfoCacheTTL,
	})
	exitOnError("Error creating service client", err)
	return client
}

// newSink stores fetched files in S3 when a bucket is configured and in the
// output directory otherwise.
func newSink(ctx context.Context) sink.Sink {
	if cfg.S3.Bucket == "" {
		return sink.NewLocal(cfg.OutputDir)
	}
	s3Sink, err := sink.NewS3(ctx, sink.S3Config{
		Bucket:  cfg.S3.Bucket,
		Prefix:  cfg.S3.Prefix,
		Profile: cfg.S3.Profile,
		Region:  cfg.S3.Region,
	})
	exitOnError("Error creating S3 sink", err)
	return s3Sink
}

func newFetcher(client *jobservice.Client, s sink.Sink, notify fetcher.Notifier) *fetcher.Fetcher {
	mode, _ := utils.ParseCORSMode(cfg.CORSMode)
	fallback := fetcher.NewFallback(client, s, notify)
	fallback.Settle = cfg.SettleDelay
	return fetcher.New(fetcher.Options{
		SpoofUserAgent: cfg.SpoofUserAgent,
		CORSMode:       mode,
		HTTP:           cfg.HTTPClientConfig(),
	}, s, notify, fallback)
}

// nameFromURL picks a file name from the last path segment of a media URL.
func nameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "download"
	}
	return utils.BaseFilename(path.Base(parsed.Path), "download")
}
