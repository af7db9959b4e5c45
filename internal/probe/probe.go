// Package probe answers whether the remote world is reachable right now.
// The answer is advisory: callers decide what to do with it.
package probe

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/oriys/nimbus/internal/logging"
	"github.com/oriys/nimbus/internal/metrics"
)

const (
	DefaultURL     = "https://www.google.com"
	DefaultTimeout = 5 * time.Second
)

// Config selects the probe target.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Probe issues a single GET against a well-known URL.
type Probe struct {
	url        string
	httpClient *http.Client
}

// New creates a Probe. Empty fields fall back to the defaults.
func New(cfg Config) *Probe {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Probe{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// URL returns the probe target.
func (p *Probe) URL() string { return p.url }

// IsOnline reports true only when a 2xx response arrives within the timeout.
func (p *Probe) IsOnline(ctx context.Context) bool {
	online := p.check(ctx)
	metrics.RecordProbe(online)
	return online
}

func (p *Probe) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		logging.Op().Debug("probe request invalid", "url", p.url, "error", err)
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		logging.Op().Debug("probe failed", "url", p.url, "error", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logging.Op().Debug("probe got non-2xx", "url", p.url, "status", resp.StatusCode)
		return false
	}
	return true
}
