// Package fakeservice runs an in-process job service and media origin for
// tests.
package fakeservice

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/tanq16/ytpull/internal/jobservice"
)

// Media is a file served by the fake origin under /media/.
type Media struct {
	Body           []byte
	ContentType    string
	GetContentType string // overrides ContentType on GET responses
	OmitLength     bool   // HEAD carries no Content-Length
	HeadStatus     int    // overrides the HEAD status code
	GetStatus      int    // overrides the GET status code
	FailAfter      int    // abort the GET body after this many bytes when > 0
}

type reply struct {
	code int
	body []byte
}

type Server struct {
	*httptest.Server

	mu          sync.Mutex
	statuses    map[string][]reply
	polls       map[string]int
	submits     []url.Values
	submitReply reply
	infos       map[string][]byte
	infoCalls   int
	media       map[string]Media
	mediaHits   map[string][]string
	headers     map[string]http.Header
	proxyHits   []url.Values
	ProxyBody   []byte
}

func New() *Server {
	s := &Server{
		statuses:    make(map[string][]reply),
		polls:       make(map[string]int),
		submitReply: reply{code: http.StatusOK, body: []byte(`{"download_id":"job-1"}`)},
		infos:       make(map[string][]byte),
		media:       make(map[string]Media),
		mediaHits:   make(map[string][]string),
		headers:     make(map[string]http.Header),
		ProxyBody:   []byte("proxied media"),
	}
	r := chi.NewRouter()
	r.Post("/download", s.handleSubmit)
	r.Get("/download_status/{id}", s.handleStatus)
	r.Post("/video_info", s.handleInfo)
	r.Get("/process-download", s.handleProxy)
	r.Head("/media/*", s.handleMedia)
	r.Get("/media/*", s.handleMedia)
	s.Server = httptest.NewServer(r)
	return s
}

// ScriptStatus queues statuses for a job. Each poll consumes one entry and
// the last entry repeats.
func (s *Server) ScriptStatus(id string, statuses ...jobservice.JobStatus) {
	for _, status := range statuses {
		body, _ := json.Marshal(status)
		s.ScriptRaw(id, http.StatusOK, string(body))
	}
}

// ScriptRaw queues a raw status reply for a job.
func (s *Server) ScriptRaw(id string, code int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = append(s.statuses[id], reply{code: code, body: []byte(body)})
}

func (s *Server) SetSubmitReply(code int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitReply = reply{code: code, body: []byte(body)}
}

func (s *Server) SetVideoInfo(videoURL string, info jobservice.VideoInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos[videoURL], _ = json.Marshal(info)
}

// SetVideoInfoRaw serves body verbatim as the info for videoURL.
func (s *Server) SetVideoInfoRaw(videoURL, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos[videoURL] = []byte(body)
}

// AddMedia registers a file and returns its absolute URL.
func (s *Server) AddMedia(name string, m Media) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.media["/media/"+name] = m
	return s.URL + "/media/" + name
}

func (s *Server) Polls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls[id]
}

func (s *Server) Submits() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.submits...)
}

func (s *Server) InfoCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoCalls
}

// MediaHits lists the methods of requests made for a media file.
func (s *Server) MediaHits(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.mediaHits["/media/"+name]...)
}

// LastHeaders returns the headers of the latest request to a path.
func (s *Server) LastHeaders(path string) http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers[path].Clone()
}

func (s *Server) ProxyRequests() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.proxyHits...)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad form"})
		return
	}
	s.mu.Lock()
	s.submits = append(s.submits, r.PostForm)
	s.headers[r.URL.Path] = r.Header.Clone()
	rep := s.submitReply
	s.mu.Unlock()
	writeRaw(w, rep)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad id"})
		return
	}
	s.mu.Lock()
	s.headers[r.URL.Path] = r.Header.Clone()
	script := s.statuses[id]
	n := s.polls[id]
	s.polls[id] = n + 1
	s.mu.Unlock()
	if len(script) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Download not found"})
		return
	}
	writeRaw(w, script[min(n, len(script)-1)])
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad form"})
		return
	}
	s.mu.Lock()
	s.infoCalls++
	info, ok := s.infos[r.PostForm.Get("url")]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid YouTube URL"})
		return
	}
	writeRaw(w, reply{code: http.StatusOK, body: info})
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.proxyHits = append(s.proxyHits, r.URL.Query())
	body := s.ProxyBody
	s.mu.Unlock()
	if filename := r.URL.Query().Get("filename"); filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Write(body)
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	m, ok := s.media[r.URL.Path]
	s.mediaHits[r.URL.Path] = append(s.mediaHits[r.URL.Path], r.Method)
	s.headers[r.URL.Path] = r.Header.Clone()
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	contentType := m.ContentType
	if contentType == "" {
		contentType = "video/mp4"
	}
	w.Header().Set("Content-Type", contentType)

	if r.Method == http.MethodHead {
		if !m.OmitLength {
			w.Header().Set("Content-Length", strconv.Itoa(len(m.Body)))
		}
		w.WriteHeader(orDefault(m.HeadStatus, http.StatusOK))
		return
	}

	if m.GetContentType != "" {
		w.Header().Set("Content-Type", m.GetContentType)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(m.Body)))
	w.WriteHeader(orDefault(m.GetStatus, http.StatusOK))
	if m.FailAfter > 0 && m.FailAfter < len(m.Body) {
		w.Write(m.Body[:m.FailAfter])
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		panic(http.ErrAbortHandler)
	}
	w.Write(m.Body)
}

func orDefault(code, fallback int) int {
	if code == 0 {
		return fallback
	}
	return code
}

func writeRaw(w http.ResponseWriter, rep reply) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rep.code)
	w.Write(rep.body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
