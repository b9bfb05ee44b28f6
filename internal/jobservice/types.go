package jobservice

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

type MediaType string

const (
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
)

// MediaTypeFor derives the media type from a format id.
func MediaTypeFor(format string) MediaType {
	if strings.Contains(format, "audio") {
		return MediaAudio
	}
	return MediaVideo
}

// State is the lifecycle state a job reports while it runs on the server.
type State string

const (
	StateStarting    State = "starting"
	StateDownloading State = "downloading"
	StateProcessing  State = "processing"
	StateComplete    State = "complete"
	StateError       State = "error"
)

// Terminal reports whether polling should stop at this state.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError
}

func (s State) Known() bool {
	switch s {
	case StateStarting, StateDownloading, StateProcessing, StateComplete, StateError:
		return true
	}
	return false
}

// Job is a download the server accepted. It is never modified after
// creation.
type Job struct {
	ID       string
	URL      string
	Format   string
	Type     MediaType
	Playlist bool
	Title    string
}

type JobStatus struct {
	Status      State   `json:"status"`
	Progress    float64 `json:"progress,omitempty"`
	DownloadURL string  `json:"download_url,omitempty"`
	Filename    string  `json:"filename,omitempty"`
	Error       string  `json:"error,omitempty"`
}

type SubmitRequest struct {
	URL      string
	Format   string
	Type     MediaType
	Playlist *bool
	Title    string
}

type SubmitResult struct {
	DownloadID string `json:"download_id,omitempty"`
	WatchURL   string `json:"watch_url,omitempty"`
	Error      string `json:"error,omitempty"`
}

type Format struct {
	FormatID   string `json:"format_id"`
	Format     string `json:"format,omitempty"`
	FormatNote string `json:"format_note,omitempty"`
	Ext        string `json:"ext,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	ABR        Number `json:"abr,omitempty"`
	Filesize   Number `json:"filesize,omitempty"`
}

// Number decodes a JSON number, a numeric string or null. Services backed
// by yt-dlp send fields such as abr and filesize in any of those forms.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.ParseFloat(strings.TrimSuffix(strings.ToLower(s), "kbps"), 64)
		if err != nil {
			return err
		}
		*n = Number(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Number(v)
	return nil
}

func (n Number) String() string {
	return strconv.FormatFloat(float64(n), 'f', -1, 64)
}

// Label is the human description shown when listing formats.
func (f Format) Label() string {
	switch {
	case f.Format != "":
		return f.Format
	case f.FormatNote != "":
		return f.FormatNote
	}
	return f.FormatID
}

type PlaylistEntry struct {
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

type VideoInfo struct {
	IsPlaylist    bool            `json:"is_playlist"`
	Title         string          `json:"title"`
	Duration      float64         `json:"duration,omitempty"`
	Thumbnail     string          `json:"thumbnail,omitempty"`
	Uploader      string          `json:"uploader,omitempty"`
	Channel       string          `json:"channel,omitempty"`
	ViewCount     int64           `json:"view_count,omitempty"`
	PlaylistCount int             `json:"playlist_count,omitempty"`
	Formats       []Format        `json:"formats,omitempty"`
	VideoFormats  []Format        `json:"video_formats,omitempty"`
	AudioFormats  []Format        `json:"audio_formats,omitempty"`
	Entries       []PlaylistEntry `json:"entries,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// DefaultFormat picks the first listed format, preferring the combined
// list over video-only formats.
func (v *VideoInfo) DefaultFormat() (string, bool) {
	if len(v.Formats) > 0 {
		return v.Formats[0].FormatID, true
	}
	if len(v.VideoFormats) > 0 {
		return v.VideoFormats[0].FormatID, true
	}
	return "", false
}
