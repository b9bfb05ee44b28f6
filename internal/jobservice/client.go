package jobservice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/ytpull/internal/utils"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	DefaultRequestsPerSecond = 5
	DefaultBurst             = 5
	maxResponseBytes         = 4 << 20
)

type Config struct {
	BaseURL           string
	HTTP              utils.HTTPClientConfig
	Token             string // optional bearer token
	RequestsPerSecond float64
	Burst             int
	InfoTTL           time.Duration
}

// Client talks to the job service: it submits downloads, reports their
// status, fetches video info and builds proxy download references.
type Client struct {
	base    *url.URL
	http    utils.HTTPDoer
	limiter *rate.Limiter
	cache   *infoCache
}

func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid service URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid service URL %q: scheme must be http or https", cfg.BaseURL)
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	// Service requests are same-origin and always carry credentials.
	httpCfg := cfg.HTTP
	httpCfg.CORSMode = utils.CORSDefault
	if cfg.Token != "" {
		httpCfg.TokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})
	}
	return &Client{
		base:    base,
		http:    utils.NewHTTPClient(httpCfg),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cache:   newInfoCache(cfg.InfoTTL),
	}, nil
}

func (c *Client) BaseURL() string {
	return c.base.String()
}

// Submit asks the service to start a download job.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	form := url.Values{}
	form.Set("url", req.URL)
	form.Set("format", req.Format)
	mediaType := req.Type
	if mediaType == "" {
		mediaType = MediaTypeFor(req.Format)
	}
	form.Set("type", string(mediaType))
	if req.Playlist != nil {
		form.Set("playlist", strconv.FormatBool(*req.Playlist))
	}
	if req.Title != "" {
		form.Set("title", req.Title)
	}

	resp, err := c.postForm(ctx, "download", form)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result SubmitResult
	if err := decodeResponse(resp, &result); err != nil {
		log.Debug().Str("op", "jobservice/submit").Err(err).Msg("submit rejected")
		return nil, err
	}
	if result.Error != "" {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: result.Error}
	}
	if result.DownloadID == "" && result.WatchURL == "" {
		return nil, ErrNoDownloadURL
	}
	log.Debug().Str("op", "jobservice/submit").Msgf("accepted: id=%q watch=%q", result.DownloadID, result.WatchURL)
	return &result, nil
}

// Status fetches the current status of a job.
func (c *Client) Status(ctx context.Context, id string) (*JobStatus, error) {
	resp, err := c.get(ctx, c.endpoint("download_status", url.PathEscape(id)))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("%w: status code %d", ErrStatusUnavailable, resp.StatusCode)
	}
	var status JobStatus
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&status); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableResponse, err)
	}
	return &status, nil
}

// VideoInfo looks up metadata for a video or playlist URL. Results are
// cached per URL.
func (c *Client) VideoInfo(ctx context.Context, videoURL string) (*VideoInfo, error) {
	if info, ok := c.cache.get(videoURL); ok {
		log.Debug().Str("op", "jobservice/video-info").Msgf("cache hit for %s", videoURL)
		return info, nil
	}
	form := url.Values{}
	form.Set("url", videoURL)
	resp, err := c.postForm(ctx, "video_info", form)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var info VideoInfo
	if err := decodeResponse(resp, &info); err != nil {
		return nil, err
	}
	if info.Error != "" {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: info.Error}
	}
	c.cache.set(videoURL, &info)
	return &info, nil
}

// ProcessDownloadURL builds the same-origin proxy reference the service
// exposes for media that cannot be fetched directly.
func (c *Client) ProcessDownloadURL(mediaURL, filename string) (string, error) {
	if mediaURL == "" {
		return "", fmt.Errorf("empty media URL")
	}
	ref := c.endpoint("process-download")
	query := url.Values{}
	query.Set("url", mediaURL)
	query.Set("filename", filename)
	ref.RawQuery = query.Encode()
	return ref.String(), nil
}

// Resolve turns a possibly relative reference from the service (such as a
// download_url) into an absolute URL.
func (c *Client) Resolve(ref string) (string, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid reference %q: %w", ref, err)
	}
	return c.base.ResolveReference(parsed).String(), nil
}

// Get issues a rate-limited GET for arbitrary content through the
// service's HTTP client.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "*/*")
	return c.do(req)
}

// endpoint joins already-escaped path elements onto the service URL.
func (c *Client) endpoint(elem ...string) *url.URL {
	return c.base.JoinPath(elem...)
}

func (c *Client) get(ctx context.Context, target *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	return c.do(req)
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(endpoint).String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.New().String())
	log.Debug().Str("op", "jobservice/request").Msgf("%s %s", req.Method, req.URL.Redacted())
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	return resp, nil
}

// decodeResponse maps a service response onto v. A failed response that
// still carries a JSON error message surfaces that message.
func decodeResponse(resp *http.Response, v any) error {
	body := io.LimitReader(resp.Body, maxResponseBytes)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(body).Decode(&payload); err == nil && payload.Error != "" {
			return &ServiceError{StatusCode: resp.StatusCode, Message: payload.Error}
		}
		return ErrInvalidResponse
	}
	if err := json.NewDecoder(body).Decode(v); err != nil {
		log.Debug().Str("op", "jobservice/decode").Err(err).Msg("unparseable response body")
		return ErrUnparseableResponse
	}
	return nil
}
