// Package scheduler runs a batch of downloads on a pool of workers. Each
// worker drives its own session, so every entry gets exactly one polling
// loop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/ytpull/internal/fetcher"
	"github.com/tanq16/ytpull/internal/jobservice"
	"github.com/tanq16/ytpull/internal/output"
	"github.com/tanq16/ytpull/internal/session"
	"github.com/tanq16/ytpull/internal/tracker"
)

var ErrBatchFailed = errors.New("one or more batch entries failed")

type Service interface {
	session.Service
	Resolve(ref string) (string, error)
}

// Downloader fetches a finished file. Wait blocks for background work the
// download left running.
type Downloader interface {
	Download(ctx context.Context, url, filename string, onProgress fetcher.ProgressFunc) bool
	Wait()
}

type Config struct {
	Service  Service
	Workers  int
	Interval time.Duration
	// NoFetch stops each entry once its job completes on the service.
	NoFetch       bool
	NewDownloader func(notify fetcher.Notifier) Downloader
	Out           io.Writer
	Live          bool
}

// Run processes entries and returns ErrBatchFailed if any of them failed.
func Run(ctx context.Context, entries []Entry, cfg Config) error {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.NewDownloader == nil {
		cfg.NoFetch = true
	}

	outputMgr := output.NewManager(cfg.Out)
	if cfg.Live {
		outputMgr.StartDisplay()
	}

	jobCh := make(chan Entry, len(entries))
	for _, entry := range entries {
		jobCh <- entry
	}
	close(jobCh)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			processEntries(ctx, jobCh, outputMgr, cfg)
		}()
	}
	wg.Wait()
	outputMgr.StopDisplay()

	if _, failures := outputMgr.Counts(); failures > 0 {
		return fmt.Errorf("%w: %d of %d", ErrBatchFailed, failures, len(entries))
	}
	return nil
}

func processEntries(ctx context.Context, jobCh <-chan Entry, outputMgr *output.Manager, cfg Config) {
	for entry := range jobCh {
		id := outputMgr.Register(entry.Link)
		if ctx.Err() != nil {
			outputMgr.ReportError(id, ctx.Err())
			continue
		}
		if message, err := processEntry(ctx, entry, id, outputMgr, cfg); err != nil {
			log.Debug().Str("op", "scheduler/process").Err(err).Msgf("entry %s failed", entry.Link)
			outputMgr.ReportError(id, err)
		} else {
			outputMgr.Complete(id, message)
		}
	}
}

func processEntry(ctx context.Context, entry Entry, id int, outputMgr *output.Manager, cfg Config) (string, error) {
	s := session.New(cfg.Service, outputMgr.View(id))
	s.Tracker().Interval = cfg.Interval
	defer s.Reset()

	outputMgr.SetMessage(id, "Fetching video info")
	if err := selectFormat(ctx, s, entry); err != nil {
		return "", err
	}
	if entry.Playlist != nil {
		s.SetPlaylist(*entry.Playlist)
	}
	s.SetTitle(entry.Title)

	outputMgr.SetMessage(id, s.ButtonLabel())
	started, err := s.Start(ctx, entry.Link)
	if err != nil {
		return "", err
	}
	if started.WatchURL != "" {
		return fmt.Sprintf("Watch page: %s", started.WatchURL), nil
	}

	outcome, err := s.Wait(ctx)
	if err != nil {
		return "", err
	}
	if outcome.Status == jobservice.StateError {
		return "", errors.New(outcome.Err)
	}
	if cfg.NoFetch {
		return fmt.Sprintf("Ready: %s", outcome.Link.Filename), nil
	}
	return fetch(ctx, entry, id, outcome.Link, outputMgr, cfg)
}

// selectFormat uses the entry's format, or looks the video up and picks a
// default matching the entry's media type.
func selectFormat(ctx context.Context, s *session.Session, entry Entry) error {
	if entry.Format != "" {
		s.SelectFormat(entry.Format, entry.Type)
		return nil
	}
	info, err := s.Lookup(ctx, entry.Link)
	if err != nil {
		return err
	}
	if entry.Type == jobservice.MediaAudio && len(info.AudioFormats) > 0 {
		s.SelectFormat(info.AudioFormats[0].FormatID, jobservice.MediaAudio)
	}
	return nil
}

func fetch(ctx context.Context, entry Entry, id int, link tracker.Link, outputMgr *output.Manager, cfg Config) (string, error) {
	if link.Href == "" {
		return "", jobservice.ErrNoDownloadURL
	}
	target, err := cfg.Service.Resolve(link.Href)
	if err != nil {
		return "", err
	}
	filename := link.Filename
	if entry.Output != "" {
		filename = entry.Output
	}
	downloader := cfg.NewDownloader(outputMgr.Notifier(id))
	ok := downloader.Download(ctx, target, filename, nil)
	downloader.Wait()
	if !ok {
		return "", fmt.Errorf("download failed for %s", filename)
	}
	return fmt.Sprintf("Downloaded %s", filename), nil
}
