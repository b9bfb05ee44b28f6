package fetcher

import (
	"math"
	"strings"
)

// LooksLikeMarkupResponse reports whether a content type is an HTML page
// rather than media. Origins that refuse a direct fetch often answer with a
// login or error page.
func LooksLikeMarkupResponse(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html")
}

// Attempt tracks the bytes of one streaming fetch.
type Attempt struct {
	Total    int64 // 0 when the origin did not announce a size
	Received int64
}

// Add records n more bytes and returns the new progress.
func (a *Attempt) Add(n int) int {
	a.Received += int64(n)
	return a.Progress()
}

// Progress is the rounded percentage received, always 0 when the total is
// unknown.
func (a *Attempt) Progress() int {
	if a.Total <= 0 {
		return 0
	}
	percent := int(math.Round(float64(a.Received) / float64(a.Total) * 100))
	return max(0, min(percent, 100))
}
