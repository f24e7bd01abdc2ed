// Package api exposes the health/status/metrics HTTP surface every broker
// and model process carries (SPEC_FULL.md AMBIENT STACK "HTTP status
// surface"), adapted from the teacher's internal/api/server.go (chi
// router, middleware stack, Prometheus mount) with the OpenAI/Ollama
// inference routes replaced by a process-status endpoint.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/incstep-network/incstep/internal/health"
)

// StatusFunc returns a snapshot of the owning process's current state
// (incstep, status, model/broker id) for the /status endpoint.
type StatusFunc func() map[string]interface{}

// Server is the health/status/metrics HTTP server shared by the broker
// and every model process.
type Server struct {
	checker  *health.Checker
	statusFn StatusFunc
}

// NewServer builds a Server. checker may be nil (then /health always
// reports healthy).
func NewServer(checker *health.Checker, statusFn StatusFunc) *Server {
	return &Server{checker: checker, statusFn: statusFn}
}

// Handler returns the chi router with /health, /status, and /metrics
// mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		healthy := s.checker == nil || s.checker.IsHealthy()
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		body := map[string]interface{}{"healthy": healthy}
		if s.checker != nil {
			body["checks"] = s.checker.Statuses()
		}
		writeJSON(w, status, body)
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		if s.statusFn == nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{})
			return
		}
		writeJSON(w, http.StatusOK, s.statusFn())
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Serve runs an HTTP server on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
