package livereload

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/conneroisu/mixpaths/internal/compiler"
	"github.com/conneroisu/mixpaths/internal/logging"
	"github.com/conneroisu/mixpaths/internal/manifest"
)

const shutdownTimeout = 5 * time.Second

// ManifestLoader reads the current manifest.
type ManifestLoader interface {
	Load() (manifest.Manifest, error)
}

// MetricsSource reports compilation pass metrics.
type MetricsSource interface {
	Metrics() compiler.MetricsSnapshot
}

// NewRouter mounts the live reload endpoints:
//
//	GET /livereload  WebSocket stream of Message values
//	GET /manifest    current manifest as JSON
//	GET /metrics     pass counters and cache statistics
//	GET /healthz     liveness and client count
func NewRouter(hub *Hub, manifests ManifestLoader, metrics MetricsSource) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/livereload", hub.ServeHTTP)

	r.With(middleware.NoCache).Get("/manifest", func(w http.ResponseWriter, r *http.Request) {
		m, err := manifests.Load()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, m)
	})

	r.With(middleware.NoCache).Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metricsResponse(metrics.Metrics()))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"clients": hub.Clients(),
		})
	})

	return r
}

func metricsResponse(m compiler.MetricsSnapshot) map[string]interface{} {
	body := map[string]interface{}{
		"passes":           m.TotalPasses,
		"failed_passes":    m.FailedPasses,
		"entries_compiled": m.EntriesCompiled,
		"success_rate":     m.SuccessRate(),
		"average_duration": m.AverageDuration.String(),
		"template_cache": map[string]interface{}{
			"hits":     m.TemplateCache.Hits,
			"misses":   m.TemplateCache.Misses,
			"hit_rate": m.TemplateCache.HitRate(),
		},
		"manifest_cache": map[string]interface{}{
			"hits":     m.ManifestCache.Hits,
			"misses":   m.ManifestCache.Misses,
			"hit_rate": m.ManifestCache.HitRate(),
		},
	}
	if m.LastError != nil {
		body["last_error"] = m.LastError.Error()
	}

	return body
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Server serves a router until its context ends.
type Server struct {
	httpServer *http.Server
	logger     logging.Logger
}

// NewServer creates a server for handler on addr.
func NewServer(addr string, handler http.Handler, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.WithComponent("livereload"),
	}
}

// ListenAndServe blocks until ctx is done, then shuts the server down
// gracefully. It returns nil after a shutdown triggered by ctx.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listener)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Live reload listening", "addr", listener.Addr().String())
		errCh <- s.httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
