package fetcher

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/ytpull/internal/sink"
)

const DefaultSettleDelay = 2 * time.Second

// ProxyClient is the part of the job service the fallback needs.
type ProxyClient interface {
	ProcessDownloadURL(mediaURL, filename string) (string, error)
	Get(ctx context.Context, rawURL string) (*http.Response, error)
}

// Transfer is the outcome of one background proxy download.
type Transfer struct {
	Ref      string
	Location string
	Err      error
}

// Fallback downloads media through the service's process-download proxy.
// The transfer runs in the background; success is reported optimistically
// once the settle delay has passed.
type Fallback struct {
	client    ProxyClient
	sink      sink.Sink
	notify    Notifier
	Settle    time.Duration
	wg        sync.WaitGroup
	mu        sync.Mutex
	transfers []Transfer
}

func NewFallback(client ProxyClient, s sink.Sink, notify Notifier) *Fallback {
	return &Fallback{
		client: client,
		sink:   s,
		notify: notify,
		Settle: DefaultSettleDelay,
	}
}

// ForceDownload starts the proxy download. The error only reports a failure
// to start; the transfer itself is best effort.
func (f *Fallback) ForceDownload(ctx context.Context, mediaURL, filename string) error {
	f.notify.Progress("Using alternative download method...", 0)
	ref, err := f.client.ProcessDownloadURL(mediaURL, filename)
	if err != nil {
		return fmt.Errorf("error building proxy reference: %w", err)
	}
	log.Debug().Str("op", "fetcher/fallback").Msgf("proxying through %s", ref)

	f.wg.Add(2)
	go func() {
		defer f.wg.Done()
		location, err := f.transfer(ctx, ref, filename)
		if err != nil {
			log.Error().Str("op", "fetcher/fallback").Err(err).Msgf("proxy download failed for %s", mediaURL)
		}
		f.mu.Lock()
		f.transfers = append(f.transfers, Transfer{Ref: ref, Location: location, Err: err})
		f.mu.Unlock()
	}()
	go func() {
		defer f.wg.Done()
		timer := time.NewTimer(f.Settle)
		defer timer.Stop()
		select {
		case <-timer.C:
			f.notify.Success("Download initiated! Check your downloads folder.")
		case <-ctx.Done():
		}
	}()
	return nil
}

// Wait blocks until every started transfer and settle timer is done.
func (f *Fallback) Wait() {
	f.wg.Wait()
}

func (f *Fallback) Transfers() []Transfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Transfer(nil), f.transfers...)
}

func (f *Fallback) transfer(ctx context.Context, ref, filename string) (string, error) {
	resp, err := f.client.Get(ctx, ref)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}
	if LooksLikeMarkupResponse(resp.Header.Get("Content-Type")) {
		return "", ErrMarkupResponse
	}
	name := dispositionFilename(resp.Header.Get("Content-Disposition"))
	if name == "" {
		name = filename
	}
	if name == "" {
		name = "download"
	}
	return f.sink.Save(ctx, name, resp.Body, max(0, resp.ContentLength))
}

func dispositionFilename(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	// filename* (RFC 2231) is decoded into filename by ParseMediaType.
	return params["filename"]
}
