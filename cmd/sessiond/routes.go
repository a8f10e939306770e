package main

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/sesslock/pkg/httpserver"
	"github.com/dmitrymomot/sesslock/pkg/logger"
	"github.com/dmitrymomot/sesslock/pkg/session"
)

const (
	maxPayloadBytes = 1 << 20
	idHeader        = "X-Session-Id"
)

func newRouter(log *slog.Logger, sessions func(http.Handler) http.Handler, reg *prometheus.Registry, checks []httpserver.Check) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	r.Get("/healthz", httpserver.HealthCheckHandler(log, 0))
	r.Get("/readyz", httpserver.HealthCheckHandler(log, 5*time.Second, checks...))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	h := &sessionHandler{log: log}
	r.Route("/session", func(r chi.Router) {
		r.Use(sessions)
		r.Get("/", h.get)
		r.Put("/", h.put)
		r.Delete("/", h.destroy)
		r.Post("/regenerate", h.regenerate)
	})

	return r
}

type sessionHandler struct {
	log *slog.Logger
}

func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	sess := session.MustFromContext(r.Context())
	w.Header().Set(idHeader, sess.ID())
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(sess.Data())
}

func (h *sessionHandler) put(w http.ResponseWriter, r *http.Request) {
	sess := session.MustFromContext(r.Context())
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		http.Error(w, "payload too large or unreadable", http.StatusRequestEntityTooLarge)
		return
	}
	sess.SetData(data)
	w.Header().Set(idHeader, sess.ID())
	w.WriteHeader(http.StatusNoContent)
}

func (h *sessionHandler) regenerate(w http.ResponseWriter, r *http.Request) {
	sess := session.MustFromContext(r.Context())
	if err := sess.Regenerate(); err != nil {
		h.log.ErrorContext(r.Context(), "failed to regenerate session", logger.Error(err))
		http.Error(w, "Session error", http.StatusInternalServerError)
		return
	}
	w.Header().Set(idHeader, sess.ID())
	w.WriteHeader(http.StatusNoContent)
}

func (h *sessionHandler) destroy(w http.ResponseWriter, r *http.Request) {
	sess := session.MustFromContext(r.Context())
	if err := sess.Destroy(r.Context()); err != nil {
		h.log.ErrorContext(r.Context(), "failed to destroy session", logger.SessionID(sess.ID()), logger.Error(err))
		http.Error(w, "Session error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
