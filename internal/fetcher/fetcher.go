package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/ytpull/internal/sink"
	"github.com/tanq16/ytpull/internal/utils"
)

var (
	ErrMarkupResponse = errors.New("response is a web page, not media")
	ErrBadStatus      = errors.New("unexpected status code")
)

type ProgressFunc func(percent int)

// Notifier receives the transient messages shown while fetching.
type Notifier interface {
	Progress(message string, percent int)
	UpdateProgress(percent int)
	Success(message string)
	Error(message string)
}

// Redirector starts a download through the service instead of fetching
// directly.
type Redirector interface {
	ForceDownload(ctx context.Context, url, filename string) error
}

type Options struct {
	SpoofUserAgent bool
	CORSMode       utils.CORSMode
	HTTP           utils.HTTPClientConfig
}

// Fetcher streams media straight from its origin and hands it to a sink.
// Whenever the origin refuses or the stream breaks, it falls back to the
// service-side redirect download.
type Fetcher struct {
	client   utils.HTTPDoer
	sink     sink.Sink
	notify   Notifier
	fallback Redirector
}

func New(opts Options, s sink.Sink, notify Notifier, fallback Redirector) *Fetcher {
	cfg := opts.HTTP
	cfg.CORSMode = opts.CORSMode
	cfg.UserAgent = utils.ResolveUserAgent(cfg.UserAgent, opts.SpoofUserAgent)
	cfg.LargeBuffers = true
	return &Fetcher{
		client:   utils.NewHTTPClient(cfg),
		sink:     s,
		notify:   notify,
		fallback: fallback,
	}
}

// Download fetches url into the sink under filename. It returns true when
// either the direct fetch or the fallback was started successfully, and
// false only when both failed. Errors never escape.
func (f *Fetcher) Download(ctx context.Context, url, filename string, onProgress ProgressFunc) bool {
	f.notify.Progress("Starting download...", 0)
	err := f.stream(ctx, url, filename, onProgress)
	if err == nil {
		return true
	}

	switch {
	case errors.Is(err, ErrBadStatus):
		log.Warn().Str("op", "fetcher/download").Err(err).Msgf("direct fetch refused for %s", url)
		f.notify.Progress("Trying alternative download method...", 0)
		return f.redirect(ctx, url, filename)
	case errors.Is(err, ErrMarkupResponse):
		log.Warn().Str("op", "fetcher/download").Msgf("%s serves a web page, using the alternative method", url)
		return f.redirect(ctx, url, filename)
	}

	log.Error().Str("op", "fetcher/download").Err(err).Msgf("direct fetch failed for %s", url)
	f.notify.Error(fmt.Sprintf("Download failed: %v", err))
	return f.redirect(ctx, url, filename)
}

func (f *Fetcher) redirect(ctx context.Context, url, filename string) bool {
	if f.fallback == nil {
		return false
	}
	if err := f.fallback.ForceDownload(ctx, url, filename); err != nil {
		log.Error().Str("op", "fetcher/fallback").Err(err).Msg("fallback download failed")
		return false
	}
	return true
}

// Wait blocks until background fallback transfers have finished.
func (f *Fetcher) Wait() {
	if w, ok := f.fallback.(interface{ Wait() }); ok {
		w.Wait()
	}
}

func (f *Fetcher) stream(ctx context.Context, url, filename string, onProgress ProgressFunc) error {
	probe, err := f.request(ctx, http.MethodHead, url)
	if err != nil {
		return err
	}
	probe.Body.Close()
	if err := checkResponse(probe); err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	attempt := &Attempt{Total: max(0, probe.ContentLength)}
	log.Debug().Str("op", "fetcher/probe").Msgf("total size %d, type %q", attempt.Total, probe.Header.Get("Content-Type"))

	resp, err := f.request(ctx, http.MethodGet, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return err
	}

	var blob bytes.Buffer
	buffer := make([]byte, utils.DefaultBufferSize)
	for {
		n, readErr := resp.Body.Read(buffer)
		if n > 0 {
			blob.Write(buffer[:n])
			progress := attempt.Add(n)
			if onProgress != nil {
				onProgress(progress)
			}
			f.notify.UpdateProgress(progress)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("error reading response body: %v", readErr)
		}
	}

	if filename == "" {
		filename = "download"
	}
	saved, err := f.sink.Save(ctx, filename, &blob, int64(blob.Len()))
	if err != nil {
		return err
	}
	log.Info().Str("op", "fetcher/download").Msgf("saved %s (%s)", saved, utils.FormatBytes(uint64(attempt.Received)))
	f.notify.Success("Download complete!")
	return nil
}

func (f *Fetcher) request(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating %s request: %v", method, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error executing %s request: %v", method, err)
	}
	return resp, nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}
	if LooksLikeMarkupResponse(resp.Header.Get("Content-Type")) {
		return ErrMarkupResponse
	}
	return nil
}
