// Package backend is the HTTP transport to the remote REST backend. It
// attaches the API key and bearer token to each request and hands back the
// response body verbatim; interpreting status codes is left to callers.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oriys/nimbus/internal/logging"
	"github.com/oriys/nimbus/internal/metrics"
	"github.com/oriys/nimbus/internal/observability"
)

// Config is resolved once by the caller and injected at construction.
type Config struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	ReadRetries int
}

// Request describes one outbound call. A nil Body means no body is sent.
type Request struct {
	Method   string
	Endpoint string
	Body     []byte
	Token    string
}

// Error reports a transport-level failure: malformed URL, connection
// refused, DNS or TLS failure, timeout, or an unreadable response body.
// HTTP error statuses are not Errors.
type Error struct {
	Method string
	URL    string
	Err    error
}

func (e *Error) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("backend: %s: %v", e.Method, e.Err)
	}
	return fmt.Sprintf("backend: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithBackoff overrides the delay schedule between read retries.
func WithBackoff(b *Backoff) Option {
	return func(c *Client) {
		if b != nil {
			c.backoff = b
		}
	}
}

// Client is a stateless transport; it is safe for concurrent use.
type Client struct {
	baseURL     string
	apiKey      string
	readRetries int
	httpClient  *http.Client
	backoff     *Backoff
}

// New creates a Client. The base URL must be an absolute http(s) URL.
func New(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("backend: base URL is required")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("backend: invalid base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("backend: base URL %q must use http or https", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.ReadRetries
	if retries < 0 {
		retries = 0
	}

	c := &Client{
		baseURL:     base,
		apiKey:      cfg.APIKey,
		readRetries: retries,
		httpClient:  &http.Client{Timeout: timeout},
		backoff:     NewBackoff(250*time.Millisecond, 2*time.Second, 0.25),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// HasAPIKey reports whether a non-empty API key is configured.
func (c *Client) HasAPIKey() bool { return c.apiKey != "" }

// Do sends req and returns the response body as text, whatever the status
// code. GET requests are retried up to ReadRetries times on transport
// errors; other methods are sent exactly once.
func (c *Client) Do(ctx context.Context, req Request) (string, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	fullURL, err := c.buildURL(req.Endpoint)
	if err != nil {
		return "", &Error{Method: method, Err: err}
	}

	ctx, span := observability.StartClientSpan(ctx, "backend "+method,
		observability.AttrMethod.String(method),
		observability.AttrEndpoint.String(req.Endpoint),
	)
	defer span.End()

	retries := 0
	if method == http.MethodGet {
		retries = c.readRetries
	}

	for attempt := 0; ; attempt++ {
		start := time.Now()
		body, status, err := c.send(ctx, method, fullURL, req)
		elapsed := time.Since(start).Milliseconds()
		if err == nil {
			metrics.RecordBackendRequest(method, "ok", elapsed)
			span.SetAttributes(observability.AttrStatus.Int(status))
			observability.SetSpanOK(span)
			return body, nil
		}

		metrics.RecordBackendRequest(method, "transport_error", elapsed)
		if attempt >= retries || ctx.Err() != nil {
			berr := &Error{Method: method, URL: fullURL, Err: err}
			observability.SetSpanError(span, berr)
			return "", berr
		}

		delay := c.backoff.ForAttempt(attempt)
		logging.Op().Debug("retrying backend read",
			"endpoint", req.Endpoint, "attempt", attempt+1, "delay", delay, "error", err)
		if err := sleep(ctx, delay); err != nil {
			berr := &Error{Method: method, URL: fullURL, Err: err}
			observability.SetSpanError(span, berr)
			return "", berr
		}
	}
}

func (c *Client) send(ctx context.Context, method, fullURL string, req Request) (string, int, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return "", 0, err
	}
	httpReq.Header.Set("apikey", c.apiKey)
	httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	if req.Body != nil || method == http.MethodPost || method == http.MethodPatch {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	observability.InjectHTTPHeaders(ctx, httpReq.Header)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}
	return string(data), resp.StatusCode, nil
}

// buildURL appends endpoint to the base URL verbatim, so base paths such as
// /rest/v1 and PostgREST query strings survive untouched.
func (c *Client) buildURL(endpoint string) (string, error) {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	full := c.baseURL + endpoint
	if _, err := url.Parse(full); err != nil {
		return "", err
	}
	return full, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
