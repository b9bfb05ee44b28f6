package utils

import (
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"syscall"
	"time"

	"golang.org/x/oauth2"
)

// CORSMode is the credential policy applied to outgoing requests.
type CORSMode string

const (
	// CORSOmitCredentials sends no cookies, bearer tokens or auth headers.
	CORSOmitCredentials CORSMode = "omit-credentials"
	CORSDefault         CORSMode = "default"
)

func ParseCORSMode(s string) (CORSMode, error) {
	switch CORSMode(strings.ToLower(strings.TrimSpace(s))) {
	case CORSOmitCredentials:
		return CORSOmitCredentials, nil
	case CORSDefault, "":
		return CORSDefault, nil
	}
	return "", ErrInvalidCORSMode
}

type HTTPClientConfig struct {
	Timeout       time.Duration
	KATimeout     time.Duration
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string
	UserAgent     string
	Headers       map[string]string
	CORSMode      CORSMode
	TokenSource   oauth2.TokenSource // bearer auth, ignored when credentials are omitted
	LargeBuffers  bool               // 1MB socket buffers for media streams
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type HTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

var credentialHeaders = []string{"Authorization", "Cookie", "Proxy-Authorization"}

func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.KATimeout == 0 {
		cfg.KATimeout = DefaultKATimeout
	}
	if cfg.CORSMode == "" {
		cfg.CORSMode = CORSDefault
	}
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		if cfg.CORSMode == CORSOmitCredentials && isCredentialHeader(k) {
			continue
		}
		headers[k] = v
	}
	cfg.Headers = headers

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		IdleConnTimeout:     cfg.KATimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		DisableCompression:  true,
	}
	if cfg.LargeBuffers {
		transport.DialContext = (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
			Control: func(network, address string, c syscall.RawConn) error {
				return c.Control(func(fd uintptr) {
					setSocketOptions(fd)
				})
			},
		}).DialContext
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err == nil {
			if cfg.ProxyUsername != "" {
				if cfg.ProxyPassword != "" {
					proxyURL.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
				} else {
					proxyURL.User = url.User(cfg.ProxyUsername)
				}
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
	if cfg.CORSMode == CORSDefault {
		client.Jar, _ = cookiejar.New(nil)
		if cfg.TokenSource != nil {
			client.Transport = &oauth2.Transport{
				Source: oauth2.ReuseTokenSource(nil, cfg.TokenSource),
				Base:   transport,
			}
		}
	}
	return &HTTPClient{client: client, config: cfg}
}

func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	} else {
		req.Header.Set("User-Agent", ToolUserAgent)
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	if c.config.CORSMode == CORSOmitCredentials {
		for _, h := range credentialHeaders {
			req.Header.Del(h)
		}
	}
	return c.client.Do(req)
}

func isCredentialHeader(key string) bool {
	for _, h := range credentialHeaders {
		if strings.EqualFold(h, key) {
			return true
		}
	}
	return false
}
