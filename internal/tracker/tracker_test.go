package tracker

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/tanq16/ytpull/internal/fakeservice"
	"github.com/tanq16/ytpull/internal/jobservice"
)

type recordingView struct {
	mu       sync.Mutex
	renders  []State
	href     string
	filename string
	failure  string
}

func (v *recordingView) Render(percent int, label string, failed bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.renders = append(v.renders, State{Percent: percent, Label: label, Failed: failed, Known: true})
}

func (v *recordingView) Complete(href, filename string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.href, v.filename = href, filename
}

func (v *recordingView) Fail(message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failure = message
}

func (v *recordingView) labels() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	labels := make([]string, 0, len(v.renders))
	for _, r := range v.renders {
		labels = append(labels, r.Label)
	}
	return labels
}

func newTracker(t *testing.T, srv *fakeservice.Server, view View) *Tracker {
	t.Helper()
	client, err := jobservice.NewClient(jobservice.Config{BaseURL: srv.URL, RequestsPerSecond: 1000, Burst: 100})
	if err != nil {
		t.Fatal(err)
	}
	tr := New(client, view)
	tr.Interval = 5 * time.Millisecond
	return tr
}

func waitOutcome(t *testing.T, tr *Tracker) (Outcome, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return tr.Wait(ctx)
}

func TestDescribe(t *testing.T) {
	tc := []struct {
		status jobservice.JobStatus
		want   State
		width  string
	}{
		{jobservice.JobStatus{Status: jobservice.StateStarting}, State{0, "Starting download...", false, true}, "0%"},
		{jobservice.JobStatus{Status: jobservice.StateDownloading, Progress: 42.7}, State{43, "Downloading: 43%", false, true}, "43%"},
		{jobservice.JobStatus{Status: jobservice.StateDownloading, Progress: 180}, State{100, "Downloading: 100%", false, true}, "100%"},
		{jobservice.JobStatus{Status: jobservice.StateDownloading, Progress: -4}, State{0, "Downloading: 0%", false, true}, "0%"},
		{jobservice.JobStatus{Status: jobservice.StateProcessing}, State{100, "Processing file...", false, true}, "100%"},
		{jobservice.JobStatus{Status: jobservice.StateComplete}, State{100, "Download complete!", false, true}, "100%"},
		{jobservice.JobStatus{Status: jobservice.StateError, Error: "Video unavailable"}, State{100, "Error: Video unavailable", true, true}, "100%"},
		{jobservice.JobStatus{Status: jobservice.StateError}, State{100, "Error: Unknown error", true, true}, "100%"},
		{jobservice.JobStatus{Status: "queued"}, State{}, "0%"},
	}
	for _, c := range tc {
		got := Describe(c.status)
		if got != c.want {
			t.Errorf("Describe(%+v) = %+v, want %+v", c.status, got, c.want)
		}
		if got.Width() != c.width {
			t.Errorf("Width for %+v = %q, want %q", c.status, got.Width(), c.width)
		}
	}
}

func TestTrackToCompletion(t *testing.T) {
	srv := fakeservice.New()
	defer srv.Close()
	srv.ScriptStatus("job-1",
		jobservice.JobStatus{Status: jobservice.StateStarting},
		jobservice.JobStatus{Status: jobservice.StateDownloading, Progress: 42.7},
		jobservice.JobStatus{Status: jobservice.StateProcessing},
		jobservice.JobStatus{Status: jobservice.StateComplete, DownloadURL: "/downloads/job-1", Filename: "a/b/x.mp4"},
	)
	view := &recordingView{}
	tr := newTracker(t, srv, view)

	var hooked Link
	tr.OnComplete = func(ctx context.Context, link Link) { hooked = link }
	tr.Track(context.Background(), "job-1")
	outcome, err := waitOutcome(t, tr)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	want := Link{Href: "/downloads/job-1", Filename: "x.mp4"}
	if outcome.Status != jobservice.StateComplete || outcome.Link != want {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if hooked != want {
		t.Fatalf("completion hook got %+v", hooked)
	}
	if view.href != want.Href || view.filename != want.Filename {
		t.Fatalf("view not completed: %q %q", view.href, view.filename)
	}
	labels := view.labels()
	expected := []string{"Starting download...", "Downloading: 43%", "Processing file...", "Download complete!"}
	if len(labels) != len(expected) {
		t.Fatalf("unexpected renders: %v", labels)
	}
	for i := range expected {
		if labels[i] != expected[i] {
			t.Fatalf("render %d = %q, want %q", i, labels[i], expected[i])
		}
	}

	time.Sleep(30 * time.Millisecond)
	if polls := srv.Polls("job-1"); polls != 4 {
		t.Fatalf("polling must stop at a terminal status, got %d polls", polls)
	}
}

func TestOnCompleteContextOutlivesLoop(t *testing.T) {
	srv := fakeservice.New()
	defer srv.Close()
	srv.ScriptStatus("job-1", jobservice.JobStatus{Status: jobservice.StateComplete, DownloadURL: "/files/clip.mp4", Filename: "clip.mp4"})

	tr := newTracker(t, srv, &recordingView{})
	hooked := make(chan context.Context, 1)
	tr.OnComplete = func(ctx context.Context, link Link) { hooked <- ctx }
	tr.Track(context.Background(), "job-1")
	if _, err := waitOutcome(t, tr); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	var ctx context.Context
	select {
	case ctx = <-hooked:
	case <-time.After(5 * time.Second):
		t.Fatal("OnComplete was not called")
	}
	tr.Stop()
	if err := ctx.Err(); err != nil {
		t.Fatalf("completion context cancelled with the loop: %v", err)
	}
}

func TestTrackDefaultFilename(t *testing.T) {
	srv := fakeservice.New()
	defer srv.Close()
	srv.ScriptStatus("job-2", jobservice.JobStatus{Status: jobservice.StateComplete, DownloadURL: "/d/2"})
	tr := newTracker(t, srv, &recordingView{})
	tr.Track(context.Background(), "job-2")
	outcome, err := waitOutcome(t, tr)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Link.Filename != DefaultFilename {
		t.Fatalf("expected %q, got %q", DefaultFilename, outcome.Link.Filename)
	}
}

func TestTrackError(t *testing.T) {
	srv := fakeservice.New()
	defer srv.Close()
	srv.ScriptStatus("job-3", jobservice.JobStatus{Status: jobservice.StateError, Error: "Video unavailable"})
	view := &recordingView{}
	tr := newTracker(t, srv, view)
	hooked := false
	tr.OnComplete = func(context.Context, Link) { hooked = true }

	tr.Track(context.Background(), "job-3")
	outcome, err := waitOutcome(t, tr)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Status != jobservice.StateError || outcome.Err != "Video unavailable" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if view.failure != "Download failed: Video unavailable" {
		t.Fatalf("unexpected failure text %q", view.failure)
	}
	if !view.renders[0].Failed || view.renders[0].Percent != 100 {
		t.Fatalf("error render should be a full failed bar: %+v", view.renders[0])
	}
	if hooked {
		t.Fatal("completion hook must not run on error")
	}
}

func TestTrackSurvivesTransientFailures(t *testing.T) {
	srv := fakeservice.New()
	defer srv.Close()
	srv.ScriptRaw("job-4", http.StatusInternalServerError, `oops`)
	srv.ScriptRaw("job-4", http.StatusOK, `{not json`)
	srv.ScriptRaw("job-4", http.StatusOK, `{"status":"queued"}`)
	srv.ScriptStatus("job-4", jobservice.JobStatus{Status: jobservice.StateComplete, DownloadURL: "/d/4", Filename: "y.m4a"})
	view := &recordingView{}
	tr := newTracker(t, srv, view)

	tr.Track(context.Background(), "job-4")
	outcome, err := waitOutcome(t, tr)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Status != jobservice.StateComplete {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if polls := srv.Polls("job-4"); polls != 4 {
		t.Fatalf("expected 4 polls, got %d", polls)
	}
	if labels := view.labels(); len(labels) != 1 {
		t.Fatalf("failed and unknown polls must not render: %v", labels)
	}
}

func TestTrackReplacesPreviousLoop(t *testing.T) {
	srv := fakeservice.New()
	defer srv.Close()
	srv.ScriptStatus("old", jobservice.JobStatus{Status: jobservice.StateDownloading, Progress: 10})
	srv.ScriptStatus("new",
		jobservice.JobStatus{Status: jobservice.StateDownloading, Progress: 50},
		jobservice.JobStatus{Status: jobservice.StateDownloading, Progress: 60},
		jobservice.JobStatus{Status: jobservice.StateDownloading, Progress: 70},
		jobservice.JobStatus{Status: jobservice.StateComplete, DownloadURL: "/d/new"},
	)
	tr := newTracker(t, srv, &recordingView{})

	tr.Track(context.Background(), "old")
	deadline := time.Now().Add(2 * time.Second)
	for srv.Polls("old") < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	tr.Track(context.Background(), "new")
	if tr.JobID() != "new" {
		t.Fatalf("expected new job, got %q", tr.JobID())
	}
	outcome, err := waitOutcome(t, tr)
	if err != nil || outcome.JobID != "new" {
		t.Fatalf("unexpected outcome %+v (%v)", outcome, err)
	}

	settled := srv.Polls("old")
	time.Sleep(40 * time.Millisecond)
	if srv.Polls("old") != settled {
		t.Fatal("the replaced loop kept polling")
	}
}

func TestStop(t *testing.T) {
	srv := fakeservice.New()
	defer srv.Close()
	srv.ScriptStatus("slow", jobservice.JobStatus{Status: jobservice.StateProcessing})
	tr := newTracker(t, srv, &recordingView{})

	tr.Track(context.Background(), "slow")
	time.Sleep(15 * time.Millisecond)
	tr.Stop()
	if _, err := waitOutcome(t, tr); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}

	fresh := New(nil, &recordingView{})
	if _, err := fresh.Wait(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped without a job, got %v", err)
	}
}

func TestPollInterval(t *testing.T) {
	srv := fakeservice.New()
	defer srv.Close()
	srv.ScriptStatus("paced",
		jobservice.JobStatus{Status: jobservice.StateStarting},
		jobservice.JobStatus{Status: jobservice.StateComplete, DownloadURL: "/d/p"},
	)
	tr := newTracker(t, srv, &recordingView{})
	tr.Interval = 50 * time.Millisecond

	start := time.Now()
	tr.Track(context.Background(), "paced")
	if _, err := waitOutcome(t, tr); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("second poll came after %v, before the interval", elapsed)
	}
}
