// Package proxy implements the read-through cache in front of the remote
// backend. GETs are answered from the local KeyStore when a cache key is
// present there; otherwise they are fetched and written back. Mutations pass
// straight through and never touch the store.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/oriys/nimbus/internal/backend"
	"github.com/oriys/nimbus/internal/keystore"
	"github.com/oriys/nimbus/internal/logging"
	"github.com/oriys/nimbus/internal/metrics"
	"github.com/oriys/nimbus/internal/observability"
)

// ErrUnsupportedMethod is returned by Write for anything other than
// POST, PATCH or DELETE.
var ErrUnsupportedMethod = errors.New("proxy: unsupported method")

// Backend performs one remote request. *backend.Client satisfies it.
type Backend interface {
	Do(ctx context.Context, req backend.Request) (string, error)
}

// CacheProxy is safe for concurrent use.
type CacheProxy struct {
	store   keystore.KeyStore
	backend Backend
	group   singleflight.Group // coalesces concurrent misses on one key
}

// New creates a CacheProxy over store and be.
func New(store keystore.KeyStore, be Backend) *CacheProxy {
	return &CacheProxy{store: store, backend: be}
}

// Result is the outcome of a read-through GET.
type Result struct {
	Body      string
	FromCache bool
}

// CachedGet returns the cached value for cacheKey if present, without
// contacting the backend and without any staleness check. On a miss, or when
// cacheKey is empty, the endpoint is fetched with GET and, if a key was
// given, the body is stored under it. A failed write-back is logged and the
// body is still returned.
func (p *CacheProxy) CachedGet(ctx context.Context, endpoint, token, cacheKey string) (string, error) {
	res, err := p.Get(ctx, endpoint, token, cacheKey)
	if err != nil {
		return "", err
	}
	return res.Body, nil
}

// Get is CachedGet that also reports whether the body came from the store.
func (p *CacheProxy) Get(ctx context.Context, endpoint, token, cacheKey string) (Result, error) {
	ctx, span := observability.StartSpan(ctx, "proxy.CachedGet",
		observability.AttrEndpoint.String(endpoint),
		observability.AttrCacheKey.String(cacheKey),
	)
	defer span.End()

	if cacheKey == "" {
		metrics.RecordCacheLookup(metrics.LookupBypass)
		span.SetAttributes(observability.AttrCacheHit.Bool(false))
		body, err := p.fetch(ctx, endpoint, token)
		if err != nil {
			observability.SetSpanError(span, err)
			return Result{}, err
		}
		return Result{Body: body}, nil
	}

	if v, ok := p.lookup(ctx, cacheKey); ok {
		metrics.RecordCacheLookup(metrics.LookupHit)
		span.SetAttributes(observability.AttrCacheHit.Bool(true))
		return Result{Body: v, FromCache: true}, nil
	}
	metrics.RecordCacheLookup(metrics.LookupMiss)
	span.SetAttributes(observability.AttrCacheHit.Bool(false))

	// The shared fetch is detached from any single caller so one caller
	// giving up does not fail the others waiting on the same flight.
	flightCtx := context.WithoutCancel(ctx)
	ch := p.group.DoChan(flightKey(cacheKey, endpoint, token), func() (interface{}, error) {
		body, err := p.fetch(flightCtx, endpoint, token)
		if err != nil {
			return "", err
		}
		p.writeBack(flightCtx, cacheKey, body)
		return body, nil
	})

	select {
	case <-ctx.Done():
		observability.SetSpanError(span, ctx.Err())
		return Result{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			observability.SetSpanError(span, res.Err)
			return Result{}, res.Err
		}
		return Result{Body: res.Val.(string)}, nil
	}
}

// Write forwards a mutation to the backend and returns its body. The store
// is never read or written, and nothing is queued or retried.
func (p *CacheProxy) Write(ctx context.Context, method, endpoint string, body []byte, token string) (string, error) {
	m := strings.ToUpper(strings.TrimSpace(method))
	switch m {
	case http.MethodPost, http.MethodPatch, http.MethodDelete:
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}

	ctx, span := observability.StartSpan(ctx, "proxy.Write",
		observability.AttrMethod.String(m),
		observability.AttrEndpoint.String(endpoint),
	)
	defer span.End()

	resp, err := p.backend.Do(ctx, backend.Request{
		Method:   m,
		Endpoint: endpoint,
		Body:     body,
		Token:    token,
	})
	if err != nil {
		observability.SetSpanError(span, err)
		return "", err
	}
	return resp, nil
}

func (p *CacheProxy) lookup(ctx context.Context, key string) (string, bool) {
	v, ok, err := p.store.Get(ctx, key)
	if err != nil {
		logging.Op().Warn("cache lookup failed, treating as miss", "key", key, "error", err)
		return "", false
	}
	return v, ok
}

func (p *CacheProxy) fetch(ctx context.Context, endpoint, token string) (string, error) {
	return p.backend.Do(ctx, backend.Request{
		Method:   http.MethodGet,
		Endpoint: endpoint,
		Token:    token,
	})
}

func (p *CacheProxy) writeBack(ctx context.Context, key, body string) {
	if err := p.store.Put(ctx, key, body); err != nil {
		metrics.RecordWritebackFailure()
		logging.Op().Warn("cache write-back failed", "key", key, "error", err)
	}
}

// flightKey separates fields with NUL, which cannot appear in a valid key.
func flightKey(cacheKey, endpoint, token string) string {
	return cacheKey + "\x00" + endpoint + "\x00" + token
}
