package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samvad-hq/rubric-harvester/internal/logger"
)

const shutdownTimeout = 5 * time.Second

// Server is the optional status endpoint exposing /healthz and /metrics.
type Server struct {
	addr   string
	router chi.Router
	log    logger.Logger
}

// NewServer builds the status router for rec.
func NewServer(addr string, rec *Recorder, log logger.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", rec.Handler())

	return &Server{addr: addr, router: r, log: logger.Ensure(log)}
}

// ServeHTTP lets the server be mounted or exercised directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start binds addr and serves until ctx is cancelled. Bind errors are
// returned synchronously; later serve errors are logged.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.ErrorObj("status server stopped", "status_server_error", map[string]any{
				"addr":  s.addr,
				"error": err.Error(),
			})
		}
	}()

	s.log.InfoObj("status server listening", "status_server", map[string]any{"addr": ln.Addr().String()})
	return nil
}
