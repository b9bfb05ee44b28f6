package tracker

import (
	"fmt"
	"math"

	"github.com/tanq16/ytpull/internal/jobservice"
)

// State is what the progress view shows for one job status.
type State struct {
	Percent int
	Label   string
	Failed  bool
	Known   bool
}

// Width is the bar width as rendered, e.g. "43%".
func (s State) Width() string {
	return fmt.Sprintf("%d%%", s.Percent)
}

func Describe(status jobservice.JobStatus) State {
	switch status.Status {
	case jobservice.StateStarting:
		return State{Percent: 0, Label: "Starting download...", Known: true}
	case jobservice.StateDownloading:
		percent := roundPercent(status.Progress)
		return State{Percent: percent, Label: fmt.Sprintf("Downloading: %d%%", percent), Known: true}
	case jobservice.StateProcessing:
		return State{Percent: 100, Label: "Processing file...", Known: true}
	case jobservice.StateComplete:
		return State{Percent: 100, Label: "Download complete!", Known: true}
	case jobservice.StateError:
		return State{Percent: 100, Label: "Error: " + errorMessage(status), Failed: true, Known: true}
	}
	return State{}
}

func roundPercent(progress float64) int {
	if math.IsNaN(progress) {
		return 0
	}
	return int(max(0, min(math.Round(progress), 100)))
}

func errorMessage(status jobservice.JobStatus) string {
	if status.Error == "" {
		return "Unknown error"
	}
	return status.Error
}
