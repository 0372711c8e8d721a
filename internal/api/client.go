// Package api is the HTTP client the views use to reach the LeanSocial
// backend. Every request carries the credential of the current session.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/leansocial/shell/internal/authstate"
	"github.com/leansocial/shell/internal/config"
	"github.com/leansocial/shell/internal/ioutil"
	"github.com/leansocial/shell/internal/log"
	"github.com/leansocial/shell/internal/urlutil"
)

const (
	maxResponseBytes = 1 << 20
	maxErrorBytes    = 4 << 10
)

// Error is returned for any non-2xx response
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api returned %d", e.StatusCode)
	}
	return fmt.Sprintf("api returned %d: %s", e.StatusCode, e.Body)
}

// IsUnauthorized reports whether err is a 401 from the backend
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// Recorder receives one call per request
type Recorder interface {
	APIRequest(method string, status int, took time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) APIRequest(string, int, time.Duration) {}

// Option configures a Client
type Option func(*Client)

// WithTransport sets the round tripper the bearer transport wraps
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.base = rt
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.recorder = r
		}
	}
}

// Client calls the backend API
type Client struct {
	baseURL  string
	base     http.RoundTripper
	http     *http.Client
	recorder Recorder
}

// New creates a client for cfg.BaseURL authenticating from store
func New(cfg config.APIConfig, store *authstate.Store, opts ...Option) *Client {
	c := &Client{
		baseURL:  cfg.BaseURL,
		base:     http.DefaultTransport,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultAPITimeout
	}
	var host string
	if u, err := url.Parse(cfg.BaseURL); err == nil {
		host = u.Host
	}
	c.http = &http.Client{
		Transport: &bearerTransport{store: store, host: host, base: c.base},
		Timeout:   timeout,
	}
	return c
}

// Do sends a request with an optional JSON body and decodes a JSON response
// into out when out is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	endpoint, err := urlutil.Endpoint(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("building url for %s: %w", path, err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.recorder.APIRequest(method, 0, time.Since(start))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.recorder.APIRequest(method, resp.StatusCode, time.Since(start))

	log.LogTraceWithFields("api", "Backend response", map[string]any{
		"method": method,
		"path":   path,
		"status": resp.StatusCode,
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{
			StatusCode: resp.StatusCode,
			Body:       ioutil.ReadLimited(resp.Body, maxErrorBytes),
		}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	data, err := ioutil.ReadAtMost(resp.Body, maxResponseBytes)
	if err != nil {
		return fmt.Errorf("reading response from %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return nil
}

// Get fetches path and decodes the JSON response into a T
func Get[T any](ctx context.Context, c *Client, path string) (T, error) {
	var out T
	err := c.Do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Post sends body as JSON to path and decodes the JSON response into a T
func Post[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	var out T
	err := c.Do(ctx, http.MethodPost, path, body, &out)
	return out, err
}

// bearerTransport reads the store on every request. The credential is
// never cached, so a sign-out is reflected on the very next call. Only
// requests to the configured API host carry it; a redirect elsewhere goes
// out without the header.
type bearerTransport struct {
	store *authstate.Store
	host  string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Host != t.host {
		return t.base.RoundTrip(req)
	}
	st := t.store.Snapshot()
	if st.Session == nil {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	st.Session.Token().SetAuthHeader(req)
	return t.base.RoundTrip(req)
}
