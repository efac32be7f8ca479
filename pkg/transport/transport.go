// Package transport is the outbound HTTP client shared by strategies and
// spray workers. Requests are routed through the capture proxy and TLS
// verification is skipped; lab targets only.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// MaxBodyBytes bounds how much of a response body is kept.
const MaxBodyBytes = 1 << 20

type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   string
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// Text returns at most n bytes of the body as a string.
func (r *Response) Text(n int) string {
	if n >= 0 && len(r.Body) > n {
		return string(r.Body[:n])
	}
	return string(r.Body)
}

// Doer sends one request. Implementations must be safe for concurrent use.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

type Config struct {
	Proxy               string
	Timeout             time.Duration
	InsecureSkipVerify  bool
	FollowRedirects     bool
	MaxIdleConns        int
	MaxConnsPerHost     int
	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Proxy:               "http://127.0.0.1:8083",
		Timeout:             10 * time.Second,
		InsecureSkipVerify:  true,
		MaxIdleConns:        100,
		MaxConnsPerHost:     25,
		DialTimeout:         5 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
}

type Client struct {
	http *http.Client
	cfg  Config
}

// New builds a pooled client. An empty Proxy sends requests directly.
func New(cfg Config) (*Client, error) {
	def := DefaultConfig()
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = def.MaxConnsPerHost
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.TLSHandshakeTimeout == 0 {
		cfg.TLSHandshakeTimeout = def.TLSHandshakeTimeout
	}

	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	tr := &http.Transport{
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		DialContext:           dialer.DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // scanning lab targets
		},
	}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil || proxyURL.Host == "" {
			return nil, fmt.Errorf("invalid proxy url %q", cfg.Proxy)
		}
		tr.Proxy = http.ProxyURL(proxyURL)
	}

	hc := &http.Client{
		Transport: tr,
		Timeout:   cfg.Timeout,
	}
	if !cfg.FollowRedirects {
		hc.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &Client{http: hc, cfg: cfg}, nil
}

// WithJar derives a client that shares the connection pool but keeps its
// own cookie jar. Used for per-attempt sessions.
func (c *Client) WithJar() (*Client, http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, nil, fmt.Errorf("create cookie jar: %w", err)
	}
	hc := *c.http
	hc.Jar = jar
	return &Client{http: &hc, cfg: c.cfg}, jar, nil
}

func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Duration:   time.Since(start),
	}, nil
}
