package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/ytpull/internal/jobservice"
	"github.com/tanq16/ytpull/internal/utils"
)

const (
	DefaultInterval = time.Second
	DefaultFilename = "youtube_download"
)

var ErrStopped = errors.New("tracking stopped before the job finished")

type StatusSource interface {
	Status(ctx context.Context, id string) (*jobservice.JobStatus, error)
}

// View displays the progress of the tracked job.
type View interface {
	Render(percent int, label string, failed bool)
	Complete(href, filename string)
	Fail(message string)
}

// Link points at the finished file on the service.
type Link struct {
	Href     string
	Filename string
}

type Outcome struct {
	JobID  string
	Status jobservice.State
	Link   Link
	Err    string
}

type run struct {
	jobID   string
	parent  context.Context // outlives the loop; handed to OnComplete
	cancel  context.CancelFunc
	done    chan struct{}
	outcome *Outcome
}

// Tracker polls the status of one job at a time until it completes or
// fails. Tracking a new job stops the previous loop.
type Tracker struct {
	statuses StatusSource
	view     View

	Interval   time.Duration
	OnComplete func(ctx context.Context, link Link)

	mu      sync.Mutex
	current *run
}

func New(statuses StatusSource, view View) *Tracker {
	return &Tracker{statuses: statuses, view: view, Interval: DefaultInterval}
}

// Track starts polling jobID and returns immediately.
func (t *Tracker) Track(ctx context.Context, jobID string) {
	loopCtx, cancel := context.WithCancel(ctx)
	r := &run{jobID: jobID, parent: ctx, cancel: cancel, done: make(chan struct{})}
	t.mu.Lock()
	if t.current != nil {
		log.Debug().Str("op", "tracker/track").Msgf("replacing loop for job %s", t.current.jobID)
		t.current.cancel()
	}
	t.current = r
	t.mu.Unlock()
	go func() {
		defer cancel()
		t.loop(loopCtx, r)
	}()
}

// Wait blocks until the current job reaches a terminal state, tracking is
// stopped, or ctx is done.
func (t *Tracker) Wait(ctx context.Context) (Outcome, error) {
	t.mu.Lock()
	r := t.current
	t.mu.Unlock()
	if r == nil {
		return Outcome{}, ErrStopped
	}
	select {
	case <-r.done:
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if r.outcome == nil {
		return Outcome{JobID: r.jobID}, ErrStopped
	}
	return *r.outcome, nil
}

func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil {
		t.current.cancel()
	}
}

// JobID returns the job being tracked, if any.
func (t *Tracker) JobID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return ""
	}
	return t.current.jobID
}

func (t *Tracker) interval() time.Duration {
	if t.Interval <= 0 {
		return DefaultInterval
	}
	return t.Interval
}

func (t *Tracker) loop(ctx context.Context, r *run) {
	defer close(r.done)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		status, err := t.statuses.Status(ctx, r.jobID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Str("op", "tracker/poll").Err(err).Msgf("error checking status of %s", r.jobID)
			timer.Reset(t.interval())
			continue
		}
		if t.apply(ctx, r, status) {
			return
		}
		timer.Reset(t.interval())
	}
}

// apply renders a status and reports whether polling should stop.
func (t *Tracker) apply(ctx context.Context, r *run, status *jobservice.JobStatus) bool {
	state := Describe(*status)
	t.mu.Lock()
	if t.current != r || ctx.Err() != nil {
		t.mu.Unlock()
		return true
	}
	if !state.Known {
		t.mu.Unlock()
		log.Warn().Str("op", "tracker/poll").Msgf("unknown status %q for %s", status.Status, r.jobID)
		return false
	}
	t.view.Render(state.Percent, state.Label, state.Failed)

	switch status.Status {
	case jobservice.StateComplete:
		link := Link{Href: status.DownloadURL, Filename: utils.BaseFilename(status.Filename, DefaultFilename)}
		t.view.Complete(link.Href, link.Filename)
		r.outcome = &Outcome{JobID: r.jobID, Status: status.Status, Link: link}
	case jobservice.StateError:
		message := errorMessage(*status)
		t.view.Fail("Download failed: " + message)
		r.outcome = &Outcome{JobID: r.jobID, Status: status.Status, Err: message}
	default:
		t.mu.Unlock()
		return false
	}
	outcome := *r.outcome
	t.mu.Unlock()

	log.Info().Str("op", "tracker/poll").Msgf("job %s finished with status %s", r.jobID, outcome.Status)
	if outcome.Status == jobservice.StateComplete && t.OnComplete != nil {
		if outcome.Link.Href == "" {
			log.Warn().Str("op", "tracker/poll").Msgf("job %s completed without a download URL", r.jobID)
		} else {
			t.OnComplete(r.parent, outcome.Link)
		}
	}
	return true
}
