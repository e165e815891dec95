package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/jazzypop/content-engine/internal/config"
	"github.com/jazzypop/content-engine/internal/logging"
	httperrors "github.com/jazzypop/content-engine/pkg/http/errors"
)

// PingFunc checks one upstream dependency.
type PingFunc func(ctx context.Context) error

// Deps are the collaborators mounted on the API server. Nil entries leave the
// route unmounted.
type Deps struct {
	Pings   map[string]PingFunc
	Metrics http.Handler
	Content *ContentHandler
}

// NewHTTPServer wires base routes (health, metrics, ping) and the content API.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, deps Deps) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics)
	}

	mux.HandleFunc("/v1/ping", func(w http.ResponseWriter, r *http.Request) {
		if name, err := pingDependencies(r.Context(), deps.Pings); err != nil {
			logger := logging.FromContext(r.Context())
			logger.Error().Err(err).Str("dependency", name).Msg("dependency ping failed")
			httperrors.RespondErrorWithDetails(w, http.StatusBadGateway, httperrors.ErrCodeUpstreamError,
				"dependency unavailable", map[string]any{"dependency": name})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pong":true}`))
	})

	if deps.Content != nil {
		mux.HandleFunc("GET /v1/content/{type}", deps.Content.HandleGet)
		mux.HandleFunc("/v1/content/{type}", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Allow", http.MethodGet)
			httperrors.RespondError(w, http.StatusMethodNotAllowed, httperrors.ErrCodeMethodNotAllowed, r.Method+" is not allowed")
		})
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		httperrors.RespondNotFound(w, httperrors.ErrCodeNotFound, "no route for "+r.URL.Path)
	})

	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           withLogger(mux, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func pingDependencies(ctx context.Context, pings map[string]PingFunc) (string, error) {
	for name, ping := range pings {
		if err := ping(ctx); err != nil {
			return name, err
		}
	}
	return "", nil
}

// withLogger stores a request scoped logger in the request context.
func withLogger(next http.Handler, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logger.With().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()
		next.ServeHTTP(w, r.WithContext(logging.IntoContext(r.Context(), reqLogger)))
	})
}
