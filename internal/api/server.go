package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/shohag/notifyd/internal/config"
	"github.com/shohag/notifyd/internal/queue"
	"github.com/shohag/notifyd/internal/service"
)

type Server struct {
	cfg    config.ServerConfig
	svc    *service.Service
	queue  *queue.Queue
	router *chi.Mux
	log    zerolog.Logger
	http   *http.Server
}

func NewServer(cfg config.ServerConfig, svc *service.Service, q *queue.Queue, log zerolog.Logger) *Server {
	s := &Server{
		cfg:   cfg,
		svc:   svc,
		queue: q,
		log:   log,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.log))

	ntfHandler := NewNotificationHandler(s.svc)
	bulkHandler := NewBulkHandler(s.svc)
	statsHandler := NewStatsHandler(s.svc, s.queue)

	r.Get("/health", statsHandler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Notifications
		r.Post("/notifications", ntfHandler.Create)
		r.Get("/notifications", ntfHandler.List)
		r.Get("/notifications/{id}", ntfHandler.Get)
		r.Put("/notifications/{id}", ntfHandler.Update)
		r.Post("/notifications/{id}/cancel", ntfHandler.Cancel)
		r.Post("/notifications/{id}/retry", ntfHandler.Retry)

		// Bulk operations
		r.Post("/notifications/bulk", bulkHandler.Run)

		// Stats and queue introspection
		r.Get("/stats", statsHandler.Stats)
		r.Get("/queue", statsHandler.Queue)
		r.Post("/queue/pause", statsHandler.Pause)
		r.Post("/queue/resume", statsHandler.Resume)
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

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
