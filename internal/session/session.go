// Package session holds the state of one interactive download: the looked
// up video, the chosen format and the job being tracked.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/ytpull/internal/jobservice"
	"github.com/tanq16/ytpull/internal/tracker"
)

var ErrNoFormat = errors.New("Please select a format to download")

const unknownTitle = "Unknown Video"

type Service interface {
	VideoInfo(ctx context.Context, url string) (*jobservice.VideoInfo, error)
	Submit(ctx context.Context, req jobservice.SubmitRequest) (*jobservice.SubmitResult, error)
	Status(ctx context.Context, id string) (*jobservice.JobStatus, error)
}

// Started describes how the service accepted a download. Exactly one of
// Job and WatchURL is set.
type Started struct {
	Job      *jobservice.Job
	WatchURL string
}

type Session struct {
	service Service
	tracker *tracker.Tracker

	mu        sync.Mutex
	info      *jobservice.VideoInfo
	format    string
	mediaType jobservice.MediaType
	playlist  bool
	title     string
	job       *jobservice.Job
}

func New(service Service, view tracker.View) *Session {
	return &Session{
		service:   service,
		tracker:   tracker.New(service, view),
		mediaType: jobservice.MediaVideo,
	}
}

func (s *Session) Tracker() *tracker.Tracker {
	return s.tracker
}

// Lookup fetches info for url and selects its default format.
func (s *Session) Lookup(ctx context.Context, url string) (*jobservice.VideoInfo, error) {
	info, err := s.service.VideoInfo(ctx, url)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = info
	s.playlist = info.IsPlaylist
	if format, ok := info.DefaultFormat(); ok {
		s.format = format
		s.mediaType = jobservice.MediaVideo
	}
	return info, nil
}

func (s *Session) Info() *jobservice.VideoInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// SelectFormat picks a format. An empty media type is derived from the
// format id.
func (s *Session) SelectFormat(format string, mediaType jobservice.MediaType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mediaType == "" {
		mediaType = jobservice.MediaTypeFor(format)
	}
	s.format = format
	s.mediaType = mediaType
}

func (s *Session) SetPlaylist(playlist bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playlist = playlist
}

func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = title
}

func (s *Session) Format() (string, jobservice.MediaType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format, s.mediaType
}

// Job returns the job in flight, or nil.
func (s *Session) Job() *jobservice.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job
}

// ButtonLabel is the text of the download action for the current
// selection.
func (s *Session) ButtonLabel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	label := "Download "
	if s.playlist {
		label += "Playlist "
	}
	if s.mediaType == jobservice.MediaAudio {
		return label + "Audio"
	}
	return label + "Video"
}

// Start submits url with the current selection. A job id starts tracking;
// a watch URL is handed back to the caller.
func (s *Session) Start(ctx context.Context, url string) (*Started, error) {
	s.mu.Lock()
	if s.format == "" {
		s.mu.Unlock()
		return nil, ErrNoFormat
	}
	playlist := s.playlist
	title := s.title
	if title == "" && s.info != nil {
		title = s.info.Title
	}
	if title == "" {
		title = unknownTitle
	}
	req := jobservice.SubmitRequest{
		URL:      url,
		Format:   s.format,
		Type:     s.mediaType,
		Playlist: &playlist,
		Title:    title,
	}
	s.mu.Unlock()

	result, err := s.service.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	if result.DownloadID == "" {
		log.Info().Str("op", "session/start").Msgf("service returned watch page %s", result.WatchURL)
		return &Started{WatchURL: result.WatchURL}, nil
	}

	job := &jobservice.Job{
		ID:       result.DownloadID,
		URL:      url,
		Format:   req.Format,
		Type:     req.Type,
		Playlist: playlist,
		Title:    title,
	}
	s.mu.Lock()
	s.job = job
	s.mu.Unlock()
	s.tracker.Track(ctx, job.ID)
	return &Started{Job: job}, nil
}

// Wait blocks until the tracked job finishes and then drops it.
func (s *Session) Wait(ctx context.Context) (tracker.Outcome, error) {
	outcome, err := s.tracker.Wait(ctx)
	if err == nil {
		s.mu.Lock()
		if s.job != nil && s.job.ID == outcome.JobID {
			s.job = nil
		}
		s.mu.Unlock()
	}
	return outcome, err
}

// Reset stops tracking and clears every selection.
func (s *Session) Reset() {
	s.tracker.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = nil
	s.format = ""
	s.mediaType = jobservice.MediaVideo
	s.playlist = false
	s.title = ""
	s.job = nil
}
