// Package api is the local ops surface of the formsync daemon: queue
// inspection and maintenance plus a submit endpoint for applications
// that talk to the sidecar over HTTP instead of embedding the library.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/shohag/formsync/internal/config"
	"github.com/shohag/formsync/internal/gateway"
	"github.com/shohag/formsync/internal/observer"
	"github.com/shohag/formsync/internal/queue"
	"github.com/shohag/formsync/internal/storage"
)

type Server struct {
	cfg    config.ServerConfig
	router *chi.Mux
	log    zerolog.Logger
	http   *http.Server
}

func NewServer(cfg config.ServerConfig, manager *queue.Manager, gw *gateway.Gateway, obs *observer.Observer, store storage.Store, log zerolog.Logger) *Server {
	s := &Server{
		cfg: cfg,
		log: log,
	}
	s.router = s.buildRouter(manager, gw, obs, store)
	return s
}

func (s *Server) buildRouter(manager *queue.Manager, gw *gateway.Gateway, obs *observer.Observer, store storage.Store) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.log))

	h := NewQueueHandler(manager, gw, obs, store, s.log)

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/submissions", h.Submit)

		r.Route("/queue", func(r chi.Router) {
			r.Get("/stats", h.Stats)
			r.Get("/submissions", h.ListSubmissions)
			r.Post("/flush", h.Flush)
			r.Post("/retry", h.RetryFailed)
			r.Delete("/", h.Clear)
		})
	})

	return r
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
