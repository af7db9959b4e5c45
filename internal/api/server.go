package api

import (
	"net/http"
	"time"

	"github.com/oriys/nimbus/internal/logging"
	"github.com/oriys/nimbus/internal/observability"
	"github.com/oriys/nimbus/internal/service"
)

// ServerConfig contains dependencies for the HTTP server.
type ServerConfig struct {
	Commands *service.Commands
	// MaxBodyBytes caps request bodies; zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// DefaultMaxBodyBytes bounds cached values and write-through payloads.
const DefaultMaxBodyBytes = 32 << 20

// NewHandler builds the full handler chain: routes, panic recovery and
// tracing.
func NewHandler(cfg ServerConfig) http.Handler {
	mux := http.NewServeMux()

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	h := &Handler{
		Commands:     cfg.Commands,
		MaxBodyBytes: maxBody,
		startedAt:    time.Now(),
	}
	h.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = recoverMiddleware(handler)
	handler = observability.HTTPMiddleware(handler)
	return handler
}

// NewHTTPServer creates a server for addr. The caller owns its lifecycle.
func NewHTTPServer(addr string, cfg ServerConfig) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewHandler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// recoverMiddleware turns a handler panic into a 500 so no request can take
// the process down.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logging.Op().Error("handler panic", "method", r.Method, "path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
