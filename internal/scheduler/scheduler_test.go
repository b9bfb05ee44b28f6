package scheduler

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tanq16/ytpull/internal/fakeservice"
	"github.com/tanq16/ytpull/internal/fetcher"
	"github.com/tanq16/ytpull/internal/jobservice"
	"github.com/tanq16/ytpull/internal/sink"
)

func TestParseBatch(t *testing.T) {
	data := []byte(`
video:
  - link: https://youtu.be/a
    format: "22"
  - link: "  "
  - link: https://youtu.be/b
    type: audio
audio:
  - link: https://youtu.be/c
    op: song.m4a
    playlist: false
podcasts:
  - link: https://youtu.be/d
`)
	entries, err := ParseBatch(data)
	if err != nil {
		t.Fatalf("ParseBatch: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(entries), entries)
	}
	expected := []struct {
		link      string
		mediaType jobservice.MediaType
	}{
		{"https://youtu.be/c", jobservice.MediaAudio},
		{"https://youtu.be/a", jobservice.MediaVideo},
		{"https://youtu.be/b", jobservice.MediaAudio},
	}
	for i, e := range expected {
		if entries[i].Link != e.link || entries[i].Type != e.mediaType {
			t.Errorf("entry %d = %+v, want %s/%s", i, entries[i], e.link, e.mediaType)
		}
	}
	if entries[0].Output != "song.m4a" || entries[0].Playlist == nil || *entries[0].Playlist {
		t.Errorf("audio entry options lost: %+v", entries[0])
	}
	if entries[1].Format != "22" {
		t.Errorf("expected format 22, got %q", entries[1].Format)
	}
}

func TestParseBatchErrors(t *testing.T) {
	for name, data := range map[string]string{
		"no entries": "unknown:\n  - link: https://youtu.be/a\n",
		"bad yaml":   "video: [",
	} {
		if _, err := ParseBatch([]byte(data)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
	if _, err := LoadBatch(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func newConfig(t *testing.T, srv *fakeservice.Server, dir string, out *bytes.Buffer) Config {
	t.Helper()
	client, err := jobservice.NewClient(jobservice.Config{BaseURL: srv.URL, RequestsPerSecond: 1000, Burst: 100})
	if err != nil {
		t.Fatal(err)
	}
	return Config{
		Service:  client,
		Workers:  2,
		Interval: 5 * time.Millisecond,
		NewDownloader: func(notify fetcher.Notifier) Downloader {
			return fetcher.New(fetcher.Options{}, sink.NewLocal(dir), notify, nil)
		},
		Out: out,
	}
}

func TestRunFetchesCompletedJob(t *testing.T) {
	srv := fakeservice.New()
	defer srv.Close()
	srv.AddMedia("clip.mp4", fakeservice.Media{Body: []byte("video bytes")})
	srv.ScriptStatus("job-1",
		jobservice.JobStatus{Status: jobservice.StateDownloading, Progress: 50},
		jobservice.JobStatus{Status: jobservice.StateComplete, DownloadURL: "/media/clip.mp4", Filename: "out/clip.mp4"},
	)
	dir := t.TempDir()
	var out bytes.Buffer

	entries := []Entry{{Link: "https://youtu.be/a", Format: "22", Type: jobservice.MediaVideo}}
	if err := Run(context.Background(), entries, newConfig(t, srv, dir, &out)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "clip.mp4"))
	if err != nil || string(data) != "video bytes" {
		t.Fatalf("expected fetched file, got %q (%v)", data, err)
	}
	if !strings.Contains(out.String(), "Completed 1 of 1") {
		t.Fatalf("missing summary in %q", out.String())
	}
	if polls := srv.Polls("job-1"); polls < 2 {
		t.Fatalf("expected at least 2 polls, got %d", polls)
	}
}

func TestRunReportsFailedJob(t *testing.T) {
	srv := fakeservice.New()
	defer srv.Close()
	srv.ScriptStatus("job-1", jobservice.JobStatus{Status: jobservice.StateError, Error: "Video unavailable"})
	var out bytes.Buffer

	entries := []Entry{{Link: "https://youtu.be/a", Format: "22"}}
	err := Run(context.Background(), entries, newConfig(t, srv, t.TempDir(), &out))
	if !errors.Is(err, ErrBatchFailed) {
		t.Fatalf("expected ErrBatchFailed, got %v", err)
	}
	if !strings.Contains(out.String(), "Video unavailable") {
		t.Fatalf("missing error report in %q", out.String())
	}
}

func TestRunNoFetchUsesAudioDefault(t *testing.T) {
	srv := fakeservice.New()
	defer srv.Close()
	srv.SetVideoInfo("https://youtu.be/a", jobservice.VideoInfo{
		Title:        "Song",
		Formats:      []jobservice.Format{{FormatID: "22"}},
		AudioFormats: []jobservice.Format{{FormatID: "140"}},
	})
	srv.ScriptStatus("job-1", jobservice.JobStatus{Status: jobservice.StateComplete, DownloadURL: "/downloads/song.m4a", Filename: "song.m4a"})
	dir := t.TempDir()
	var out bytes.Buffer
	cfg := newConfig(t, srv, dir, &out)
	cfg.NoFetch = true

	entries := []Entry{{Link: "https://youtu.be/a", Type: jobservice.MediaAudio}}
	if err := Run(context.Background(), entries, cfg); err != nil {
		t.Fatalf("Run: %v", err)
	}
	submits := srv.Submits()
	if len(submits) != 1 {
		t.Fatalf("expected 1 submit, got %d", len(submits))
	}
	if submits[0].Get("format") != "140" || submits[0].Get("type") != "audio" || submits[0].Get("title") != "Song" {
		t.Fatalf("unexpected submit form %v", submits[0])
	}
	if files, _ := os.ReadDir(dir); len(files) != 0 {
		t.Fatalf("expected nothing fetched, found %d files", len(files))
	}
}

func TestRunWatchURL(t *testing.T) {
	srv := fakeservice.New()
	defer srv.Close()
	srv.SetSubmitReply(200, `{"watch_url":"/watch/abc"}`)
	var out bytes.Buffer

	entries := []Entry{{Link: "https://youtu.be/a", Format: "22"}}
	if err := Run(context.Background(), entries, newConfig(t, srv, t.TempDir(), &out)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if srv.Polls("job-1") != 0 {
		t.Fatal("a watch URL must not start polling")
	}
}

func TestRunCancelled(t *testing.T) {
	srv := fakeservice.New()
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer

	entries := []Entry{{Link: "https://youtu.be/a", Format: "22"}, {Link: "https://youtu.be/b", Format: "22"}}
	if err := Run(ctx, entries, newConfig(t, srv, t.TempDir(), &out)); !errors.Is(err, ErrBatchFailed) {
		t.Fatalf("expected ErrBatchFailed, got %v", err)
	}
	if len(srv.Submits()) != 0 {
		t.Fatal("cancelled batch must not submit")
	}
}
