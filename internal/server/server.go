// Package server exposes the session commands over HTTP.
//
// Routes:
//
//	POST /sessions/{name}/connect     {"connection": "<override>"}
//	POST /sessions/{name}/disconnect
//	POST /sessions/{name}/query       {"tsql": "...", "archive": false}
//	GET  /sessions/{name}/status
//	GET  /sessions
//	GET  /config/default
//	GET  /healthz
//
// Failures are answered with the command wire error as the JSON body.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/koustreak/sqlgate/internal/command"
	"github.com/koustreak/sqlgate/internal/config"
	"github.com/koustreak/sqlgate/internal/logger"
)

// Server is the HTTP front of a command.Service.
type Server struct {
	svc  *command.Service
	log  *logger.Logger
	http *http.Server
}

// New builds a server listening on cfg.Addr.
func New(cfg config.ServerConfig, svc *command.Service, log *logger.Logger) *Server {
	s := &Server{svc: svc, log: log}
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the routed handler with its middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(*s.log.Zerolog()))
	r.Use(requestID)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Get("/config/default", s.defaultConfig)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Route("/{name}", func(r chi.Router) {
			r.Post("/connect", s.connect)
			r.Post("/disconnect", s.disconnect)
			r.Post("/query", s.query)
			r.Get("/status", s.status)
		})
	})

	return r
}

// ListenAndServe blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) ListenAndServe() error {
	s.log.With().Str("addr", s.http.Addr).Logger().Info("http server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// requestID tags the request's context logger with the chi request id, so
// everything below that logs through logger.FromContext carries it.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := middleware.GetReqID(r.Context())
		hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("request_id", id)
		})
		next.ServeHTTP(w, r)
	})
}

// accessLog logs one line per request.
var accessLog = hlog.AccessHandler(func(r *http.Request, status, size int, elapsed time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("elapsed", elapsed).
		Msg("request")
})
