// Package service is the command surface the desktop shell talks to. Each
// method is one independent command: it gets a request ID, is timed, traced,
// counted and written to the command log.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/nimbus/internal/keystore"
	"github.com/oriys/nimbus/internal/logging"
	"github.com/oriys/nimbus/internal/metrics"
	"github.com/oriys/nimbus/internal/observability"
	"github.com/oriys/nimbus/internal/proxy"
)

// Command names as they appear in logs and metrics.
const (
	CmdGetCached     = "get_cached"
	CmdPutCached     = "put_cached"
	CmdDeleteCached  = "delete_cached"
	CmdClearCache    = "clear_cache"
	CmdListCacheKeys = "list_cache_keys"
	CmdIsOnline      = "is_online"
	CmdReadThrough   = "read_through"
	CmdWriteThrough  = "write_through"
)

// Prober reports connectivity. *probe.Probe satisfies it.
type Prober interface {
	IsOnline(ctx context.Context) bool
}

// BackendInfo describes the configured backend without revealing secrets.
type BackendInfo struct {
	BaseURL   string `json:"base_url"`
	HasAPIKey bool   `json:"has_api_key"`
}

// Commands binds the core components together.
type Commands struct {
	store   keystore.KeyStore
	proxy   *proxy.CacheProxy
	probe   Prober
	logger  *logging.CommandLogger
	backend BackendInfo
}

// Option configures Commands.
type Option func(*Commands)

// WithCommandLogger sets the command log destination.
func WithCommandLogger(l *logging.CommandLogger) Option {
	return func(c *Commands) { c.logger = l }
}

// WithBackendInfo sets what BackendInfo reports.
func WithBackendInfo(info BackendInfo) Option {
	return func(c *Commands) { c.backend = info }
}

// New creates the command surface. The store passed here must be the one the
// proxy reads from.
func New(store keystore.KeyStore, px *proxy.CacheProxy, pr Prober, opts ...Option) *Commands {
	c := &Commands{store: store, proxy: px, probe: pr}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetCached returns the stored value for key, if any.
func (c *Commands) GetCached(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	entry := &logging.CommandLog{Command: CmdGetCached, Key: key}
	err := c.run(ctx, entry, func(ctx context.Context) error {
		var err error
		value, found, err = c.store.Get(ctx, key)
		entry.FromCache = found
		entry.OutputSize = len(value)
		return err
	})
	return value, found, err
}

// PutCached stores value under key, replacing any previous value.
func (c *Commands) PutCached(ctx context.Context, key, value string) error {
	entry := &logging.CommandLog{Command: CmdPutCached, Key: key}
	return c.run(ctx, entry, func(ctx context.Context) error {
		return c.store.Put(ctx, key, value)
	})
}

// DeleteCached removes key; a missing key is not an error.
func (c *Commands) DeleteCached(ctx context.Context, key string) error {
	entry := &logging.CommandLog{Command: CmdDeleteCached, Key: key}
	return c.run(ctx, entry, func(ctx context.Context) error {
		return c.store.Delete(ctx, key)
	})
}

// ClearCache removes every entry.
func (c *Commands) ClearCache(ctx context.Context) error {
	entry := &logging.CommandLog{Command: CmdClearCache}
	return c.run(ctx, entry, func(ctx context.Context) error {
		return c.store.Clear(ctx)
	})
}

// ListCacheKeys returns every stored key in no particular order.
func (c *Commands) ListCacheKeys(ctx context.Context) ([]string, error) {
	var keys []string
	entry := &logging.CommandLog{Command: CmdListCacheKeys}
	err := c.run(ctx, entry, func(ctx context.Context) error {
		var err error
		keys, err = c.store.ListKeys(ctx)
		entry.OutputSize = len(keys)
		return err
	})
	return keys, err
}

// IsOnline runs the connectivity probe. It never fails.
func (c *Commands) IsOnline(ctx context.Context) bool {
	var online bool
	entry := &logging.CommandLog{Command: CmdIsOnline}
	_ = c.run(ctx, entry, func(ctx context.Context) error {
		online = c.probe.IsOnline(ctx)
		return nil
	})
	return online
}

// ReadThrough performs a cached GET. A non-empty cacheKey must be a valid
// store key.
func (c *Commands) ReadThrough(ctx context.Context, endpoint, token, cacheKey string) (string, error) {
	var body string
	entry := &logging.CommandLog{Command: CmdReadThrough, Key: cacheKey, Method: "GET", Endpoint: endpoint}
	err := c.run(ctx, entry, func(ctx context.Context) error {
		if cacheKey != "" {
			if err := keystore.ValidateKey(cacheKey); err != nil {
				return err
			}
		}
		res, err := c.proxy.Get(ctx, endpoint, token, cacheKey)
		if err != nil {
			return err
		}
		body = res.Body
		entry.FromCache = res.FromCache
		entry.OutputSize = len(res.Body)
		return nil
	})
	return body, err
}

// WriteThrough forwards a POST, PATCH or DELETE to the backend.
func (c *Commands) WriteThrough(ctx context.Context, method, endpoint string, body []byte, token string) (string, error) {
	var resp string
	entry := &logging.CommandLog{Command: CmdWriteThrough, Method: method, Endpoint: endpoint}
	err := c.run(ctx, entry, func(ctx context.Context) error {
		var err error
		resp, err = c.proxy.Write(ctx, method, endpoint, body, token)
		entry.OutputSize = len(resp)
		return err
	})
	return resp, err
}

// BackendInfo returns the configured backend URL and whether an API key is
// set. The key itself is never exposed.
func (c *Commands) BackendInfo() BackendInfo {
	return c.backend
}

func (c *Commands) run(ctx context.Context, entry *logging.CommandLog, fn func(context.Context) error) error {
	entry.RequestID = uuid.New().String()

	ctx, span := observability.StartSpan(ctx, "command "+entry.Command,
		observability.AttrCommand.String(entry.Command),
		observability.AttrRequestID.String(entry.RequestID),
	)
	defer span.End()

	metrics.IncActiveCommands()
	defer metrics.DecActiveCommands()

	start := time.Now()
	err := fn(ctx)
	entry.DurationMs = time.Since(start).Milliseconds()
	entry.Success = err == nil
	entry.TraceID = observability.GetTraceID(ctx)
	if err != nil {
		entry.Error = err.Error()
		observability.SetSpanError(span, err)
		logging.OpWithTrace(entry.TraceID, "").Debug("command failed",
			"command", entry.Command, "request_id", entry.RequestID, "error", err)
	} else {
		observability.SetSpanOK(span)
	}

	metrics.RecordCommand(entry.Command, entry.Success, entry.DurationMs)
	c.logger.Log(entry)
	return err
}
