package jobservice_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/tanq16/ytpull/internal/fakeservice"
	"github.com/tanq16/ytpull/internal/jobservice"
)

func newClient(t *testing.T, srv *fakeservice.Server, token string) *jobservice.Client {
	t.Helper()
	client, err := jobservice.NewClient(jobservice.Config{BaseURL: srv.URL, Token: token, RequestsPerSecond: 1000, Burst: 100})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestSubmitSendsForm(t *testing.T) {
	srv := fakeservice.New()
	defer srv.Close()
	client := newClient(t, srv, "")

	playlist := false
	result, err := client.Submit(context.Background(), jobservice.SubmitRequest{
		URL:      "https://youtu.be/abc",
		Format:   "140-audio",
		Playlist: &playlist,
		Title:    "A Song",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.DownloadID != "job-1" {
		t.Fatalf("expected job-1, got %q", result.DownloadID)
	}

	forms := srv.Submits()
	if len(forms) != 1 {
		t.Fatalf("expected 1 submit, got %d", len(forms))
	}
	form := forms[0]
	expected := map[string]string{
		"url":      "https://youtu.be/abc",
		"format":   "140-audio",
		"type":     "audio",
		"playlist": "false",
		"title":    "A Song",
	}
	for k, v := range expected {
		if form.Get(k) != v {
			t.Errorf("form %s = %q, want %q", k, form.Get(k), v)
		}
	}

	headers := srv.LastHeaders("/download")
	if headers.Get("X-Requested-With") != "XMLHttpRequest" || headers.Get("Accept") != "application/json" {
		t.Fatalf("missing service headers: %v", headers)
	}
	if headers.Get("X-Request-ID") == "" {
		t.Fatalf("missing request id")
	}
}

func TestSubmitErrorMapping(t *testing.T) {
	tc := []struct {
		name    string
		code    int
		body    string
		want    error
		message string
	}{
		{"server message", http.StatusBadRequest, `{"error":"Video unavailable"}`, nil, "Video unavailable"},
		{"non-json failure", http.StatusInternalServerError, `<html>oops</html>`, jobservice.ErrInvalidResponse, ""},
		{"unparseable success", http.StatusOK, `not json`, jobservice.ErrUnparseableResponse, ""},
		{"no url", http.StatusOK, `{}`, jobservice.ErrNoDownloadURL, ""},
		{"error on success", http.StatusOK, `{"error":"Rate limited"}`, nil, "Rate limited"},
	}
	for _, c := range tc {
		t.Run(c.name, func(t *testing.T) {
			srv := fakeservice.New()
			defer srv.Close()
			srv.SetSubmitReply(c.code, c.body)
			client := newClient(t, srv, "")

			_, err := client.Submit(context.Background(), jobservice.SubmitRequest{URL: "https://youtu.be/x", Format: "18"})
			if err == nil {
				t.Fatal("expected an error")
			}
			if c.want != nil && !errors.Is(err, c.want) {
				t.Fatalf("expected %v, got %v", c.want, err)
			}
			if c.message != "" {
				var svcErr *jobservice.ServiceError
				if !errors.As(err, &svcErr) || svcErr.Message != c.message {
					t.Fatalf("expected service error %q, got %v", c.message, err)
				}
			}
		})
	}
}

func TestSubmitWatchURL(t *testing.T) {
	srv := fakeservice.New()
	defer srv.Close()
	srv.SetSubmitReply(http.StatusOK, `{"watch_url":"/watch/abc"}`)
	client := newClient(t, srv, "")

	result, err := client.Submit(context.Background(), jobservice.SubmitRequest{URL: "https://youtu.be/x", Format: "18"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.WatchURL != "/watch/abc" || result.DownloadID != "" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestStatus(t *testing.T) {
	srv := fakeservice.New()
	defer srv.Close()
	srv.ScriptStatus("job/1", jobservice.JobStatus{Status: jobservice.StateDownloading, Progress: 42.7})
	client := newClient(t, srv, "")

	status, err := client.Status(context.Background(), "job/1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Status != jobservice.StateDownloading || status.Progress != 42.7 {
		t.Fatalf("unexpected status: %+v", status)
	}

	if _, err := client.Status(context.Background(), "missing"); !errors.Is(err, jobservice.ErrStatusUnavailable) {
		t.Fatalf("expected ErrStatusUnavailable, got %v", err)
	}

	srv.ScriptRaw("garbled", http.StatusOK, "{")
	if _, err := client.Status(context.Background(), "garbled"); !errors.Is(err, jobservice.ErrUnparseableResponse) {
		t.Fatalf("expected ErrUnparseableResponse, got %v", err)
	}
}

func TestVideoInfoCached(t *testing.T) {
	srv := fakeservice.New()
	defer srv.Close()
	srv.SetVideoInfo("https://youtu.be/abc", jobservice.VideoInfo{
		Title:   "Clip",
		Formats: []jobservice.Format{{FormatID: "22", Format: "720p mp4"}},
	})
	client := newClient(t, srv, "")

	for i := 0; i < 3; i++ {
		info, err := client.VideoInfo(context.Background(), "https://youtu.be/abc")
		if err != nil {
			t.Fatalf("VideoInfo: %v", err)
		}
		if info.Title != "Clip" {
			t.Fatalf("unexpected info: %+v", info)
		}
	}
	if calls := srv.InfoCalls(); calls != 1 {
		t.Fatalf("expected 1 service call, got %d", calls)
	}

	_, err := client.VideoInfo(context.Background(), "https://youtu.be/none")
	var svcErr *jobservice.ServiceError
	if !errors.As(err, &svcErr) || svcErr.Message != "Invalid YouTube URL" {
		t.Fatalf("expected service error, got %v", err)
	}
}

func TestVideoInfoNumericFields(t *testing.T) {
	srv := fakeservice.New()
	defer srv.Close()
	srv.SetVideoInfoRaw("https://youtu.be/abc", `{
		"title": "Clip",
		"formats": [
			{"format_id": "140", "abr": 129.478, "filesize": 3456789.0},
			{"format_id": "251", "abr": "160kbps", "filesize": "1048576"},
			{"format_id": "22", "abr": null, "filesize": null},
			{"format_id": "18", "abr": "", "filesize": 2.5e6}
		]
	}`)
	client := newClient(t, srv, "")

	info, err := client.VideoInfo(context.Background(), "https://youtu.be/abc")
	if err != nil {
		t.Fatalf("VideoInfo: %v", err)
	}
	want := []struct {
		abr, size jobservice.Number
	}{{129.478, 3456789}, {160, 1048576}, {0, 0}, {0, 2500000}}
	if len(info.Formats) != len(want) {
		t.Fatalf("expected %d formats, got %+v", len(want), info.Formats)
	}
	for i, w := range want {
		if f := info.Formats[i]; f.ABR != w.abr || f.Filesize != w.size {
			t.Fatalf("format %s: abr %v size %v, want %v %v", f.FormatID, f.ABR, f.Filesize, w.abr, w.size)
		}
	}
}

func TestNumberRejectsGarbage(t *testing.T) {
	for _, raw := range []string{`"fast"`, `true`, `{}`} {
		var n jobservice.Number
		if err := n.UnmarshalJSON([]byte(raw)); err == nil {
			t.Fatalf("%s decoded to %v", raw, n)
		}
	}
}

func TestBearerToken(t *testing.T) {
	srv := fakeservice.New()
	defer srv.Close()
	client := newClient(t, srv, "secret")

	if _, err := client.Submit(context.Background(), jobservice.SubmitRequest{URL: "https://youtu.be/x", Format: "18"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := srv.LastHeaders("/download").Get("Authorization"); got != "Bearer secret" {
		t.Fatalf("expected bearer token, got %q", got)
	}
}

func TestProcessDownloadURL(t *testing.T) {
	client, err := jobservice.NewClient(jobservice.Config{BaseURL: "http://svc.local/app/"})
	if err != nil {
		t.Fatal(err)
	}
	ref, err := client.ProcessDownloadURL("https://cdn.example/x?a=1&b=2", "my clip.mp4")
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Path != "/app/process-download" {
		t.Fatalf("unexpected path %q", parsed.Path)
	}
	if parsed.Query().Get("url") != "https://cdn.example/x?a=1&b=2" || parsed.Query().Get("filename") != "my clip.mp4" {
		t.Fatalf("unexpected query %q", parsed.RawQuery)
	}
	if _, err := client.ProcessDownloadURL("", "x"); err == nil {
		t.Fatal("expected error for empty media URL")
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	for _, base := range []string{"", "ftp://host", "::"} {
		if _, err := jobservice.NewClient(jobservice.Config{BaseURL: base}); err == nil {
			t.Errorf("expected error for %q", base)
		}
	}
}

func TestMediaTypeFor(t *testing.T) {
	if jobservice.MediaTypeFor("bestaudio") != jobservice.MediaAudio {
		t.Fatal("expected audio")
	}
	if jobservice.MediaTypeFor("22") != jobservice.MediaVideo {
		t.Fatal("expected video")
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []jobservice.State{jobservice.StateComplete, jobservice.StateError} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []jobservice.State{jobservice.StateStarting, jobservice.StateDownloading, jobservice.StateProcessing, "queued"} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	if jobservice.State("queued").Known() || !jobservice.StateProcessing.Known() {
		t.Fatal("unexpected Known result")
	}
}

func TestResolve(t *testing.T) {
	client, err := jobservice.NewClient(jobservice.Config{BaseURL: "http://svc.local"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := client.Resolve("/downloads/x.mp4")
	if err != nil || !strings.HasSuffix(got, "svc.local/downloads/x.mp4") {
		t.Fatalf("unexpected resolve: %q %v", got, err)
	}
}
