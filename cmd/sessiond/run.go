package main

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmitrymomot/sesslock/pkg/httpserver"
	"github.com/dmitrymomot/sesslock/pkg/logger"
	"github.com/dmitrymomot/sesslock/pkg/metrics"
	"github.com/dmitrymomot/sesslock/pkg/session"
)

func run(ctx context.Context) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	log := logger.New(
		logger.WithConfig(cfg.log),
		logger.WithAttr(logger.Component("sessiond")),
		logger.WithContextExtractors(requestID),
	)
	logger.SetAsDefault(log)

	st, err := openStorage(ctx, cfg.app.Backend, cfg.session, log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg, cfg.app.MetricsNamespace)

	sessionOpts := []session.MiddlewareOption{
		session.WithMiddlewareConfig(cfg.session),
		session.WithMiddlewareLogger(log),
		session.WithStoreOptions(
			session.WithObserver(collector),
			session.WithTouchUnchanged(cfg.app.TouchUnchanged),
		),
	}
	if cfg.app.HeaderName != "" {
		sessionOpts = append(sessionOpts, session.WithTransport(session.NewCompositeTransport(
			session.NewCookieTransport(cfg.session),
			session.NewHeaderTransport(cfg.app.HeaderName),
		)))
	}

	router := newRouter(log, session.Middleware(st.factory, sessionOpts...), reg, st.checks)

	srvOpts := []httpserver.Option{httpserver.WithLogger(log)}
	for _, fn := range st.cleanups {
		srvOpts = append(srvOpts, httpserver.WithCleanup(fn))
	}
	return httpserver.NewFromConfig(cfg.http, srvOpts...).Run(ctx, router)
}

// requestID adds chi's request id to every log record of the request.
func requestID(ctx context.Context) (slog.Attr, bool) {
	id := middleware.GetReqID(ctx)
	return logger.RequestID(id), id != ""
}
