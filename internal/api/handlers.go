// Package api exposes the command surface over a local JSON HTTP API for
// the desktop shell.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oriys/nimbus/internal/backend"
	"github.com/oriys/nimbus/internal/keystore"
	"github.com/oriys/nimbus/internal/metrics"
	"github.com/oriys/nimbus/internal/proxy"
	"github.com/oriys/nimbus/internal/service"
)

// Handler handles the cache, connectivity and pass-through routes.
type Handler struct {
	Commands     *service.Commands
	MaxBodyBytes int64

	startedAt time.Time
}

// RegisterRoutes registers all routes on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Local cache
	mux.HandleFunc("GET /cache", h.ListCacheKeys)
	mux.HandleFunc("DELETE /cache", h.ClearCache)
	mux.HandleFunc("GET /cache/{key}", h.GetCached)
	mux.HandleFunc("PUT /cache/{key}", h.PutCached)
	mux.HandleFunc("DELETE /cache/{key}", h.DeleteCached)

	// Backend
	mux.HandleFunc("GET /online", h.Online)
	mux.HandleFunc("POST /read-through", h.ReadThrough)
	mux.HandleFunc("POST /write-through", h.WriteThrough)
	mux.HandleFunc("GET /config/backend", h.BackendConfig)

	// Observability
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", metrics.PrometheusHandler())
}

type getCachedResponse struct {
	Key   string  `json:"key"`
	Found bool    `json:"found"`
	Value *string `json:"value"`
}

type readThroughRequest struct {
	Endpoint string `json:"endpoint"`
	Token    string `json:"token"`
	CacheKey string `json:"cache_key"`
}

type writeThroughRequest struct {
	Method   string  `json:"method"`
	Endpoint string  `json:"endpoint"`
	Body     *string `json:"body"`
	Token    string  `json:"token"`
}

type bodyResponse struct {
	Body string `json:"body"`
}

// ListCacheKeys handles GET /cache
func (h *Handler) ListCacheKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.Commands.ListCacheKeys(r.Context())
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"keys": keys})
}

// ClearCache handles DELETE /cache
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.Commands.ClearCache(r.Context()); err != nil {
		writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetCached handles GET /cache/{key}
func (h *Handler) GetCached(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	value, found, err := h.Commands.GetCached(r.Context(), key)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	resp := getCachedResponse{Key: key, Found: found}
	if found {
		resp.Value = &value
	}
	writeJSON(w, http.StatusOK, resp)
}

// PutCached handles PUT /cache/{key}; the raw request body is the value.
func (h *Handler) PutCached(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body: "+err.Error())
		return
	}
	if err := h.Commands.PutCached(r.Context(), r.PathValue("key"), string(data)); err != nil {
		writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteCached handles DELETE /cache/{key}
func (h *Handler) DeleteCached(w http.ResponseWriter, r *http.Request) {
	if err := h.Commands.DeleteCached(r.Context(), r.PathValue("key")); err != nil {
		writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Online handles GET /online
func (h *Handler) Online(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"online": h.Commands.IsOnline(r.Context())})
}

// ReadThrough handles POST /read-through
func (h *Handler) ReadThrough(w http.ResponseWriter, r *http.Request) {
	var req readThroughRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Endpoint) == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}

	body, err := h.Commands.ReadThrough(r.Context(), req.Endpoint, req.Token, req.CacheKey)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bodyResponse{Body: body})
}

// WriteThrough handles POST /write-through
func (h *Handler) WriteThrough(w http.ResponseWriter, r *http.Request) {
	var req writeThroughRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Endpoint) == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}

	var payload []byte
	if req.Body != nil {
		payload = []byte(*req.Body)
	}
	body, err := h.Commands.WriteThrough(r.Context(), req.Method, req.Endpoint, payload, req.Token)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bodyResponse{Body: body})
}

// BackendConfig handles GET /config/backend
func (h *Handler) BackendConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Commands.BackendInfo())
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload: "+err.Error())
		return false
	}
	return true
}

// writeCommandError maps command errors onto HTTP statuses.
func writeCommandError(w http.ResponseWriter, err error) {
	var berr *backend.Error
	switch {
	case errors.Is(err, keystore.ErrInvalidKey), errors.Is(err, proxy.ErrUnsupportedMethod):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &berr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
