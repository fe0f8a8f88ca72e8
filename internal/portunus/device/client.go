// Package device talks to the access-control terminal over HTTP: the
// long-lived notification stream and a cheap status probe.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultStreamPath    = "/ISAPI/Event/notification/alertStream"
	DefaultStatusPath    = "/ISAPI/System/deviceInfo"
	DefaultHeaderTimeout = 60 * time.Second
	DefaultProbeTimeout  = 3 * time.Second

	// maxErrorBody bounds how much of a non-2xx body is kept for logs.
	maxErrorBody = 512
)

var ErrMissingBaseURL = errors.New("device base url is required")

type Config struct {
	BaseURL  string // e.g. "http://172.10.1.89"
	Username string
	Password string

	StreamPath string
	StatusPath string

	// HeaderTimeout bounds the wait for the stream's response headers.
	// The body itself has no deadline.
	HeaderTimeout time.Duration
	ProbeTimeout  time.Duration

	// Transport overrides the HTTP transport; tests inject one.
	Transport http.RoundTripper
}

// Client opens the notification stream and probes device status. Every
// request carries HTTP Basic credentials when a username is configured.
type Client struct {
	base       *url.URL
	cfg        Config
	streamHTTP *http.Client
	probeHTTP  *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrMissingBaseURL
	}
	raw := cfg.BaseURL
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse device url: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("device url %q has no host", cfg.BaseURL)
	}

	if cfg.StreamPath == "" {
		cfg.StreamPath = DefaultStreamPath
	}
	if cfg.StatusPath == "" {
		cfg.StatusPath = DefaultStatusPath
	}
	if cfg.HeaderTimeout <= 0 {
		cfg.HeaderTimeout = DefaultHeaderTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}

	transport := cfg.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.ResponseHeaderTimeout = cfg.HeaderTimeout
		t.DialContext = (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext
		transport = t
	}

	return &Client{
		base:       base,
		cfg:        cfg,
		streamHTTP: &http.Client{Transport: transport},
		probeHTTP:  &http.Client{Transport: transport, Timeout: cfg.ProbeTimeout},
	}, nil
}

// StreamURL is the full notification stream URL.
func (c *Client) StreamURL() string { return c.resolve(c.cfg.StreamPath) }

// Open starts the notification stream. The caller must close the body;
// cancelling ctx also aborts a blocked read.
func (c *Client) Open(ctx context.Context) (io.ReadCloser, error) {
	resp, err := c.get(ctx, c.streamHTTP, c.cfg.StreamPath)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

// Probe checks that the device answers its status endpoint.
func (c *Client) Probe(ctx context.Context) error {
	resp, err := c.get(ctx, c.probeHTTP, c.cfg.StatusPath)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
	return nil
}

func (c *Client) get(ctx context.Context, hc *http.Client, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(path), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}
	req.Header.Set("Accept", "application/json, multipart/mixed, */*")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	return resp, nil
}

func (c *Client) resolve(path string) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	return u.String()
}

func statusError(resp *http.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
