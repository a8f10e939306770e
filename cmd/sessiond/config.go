package main

import (
	"github.com/dmitrymomot/sesslock/pkg/config"
	"github.com/dmitrymomot/sesslock/pkg/httpserver"
	"github.com/dmitrymomot/sesslock/pkg/logger"
	"github.com/dmitrymomot/sesslock/pkg/session"
)

type appConfig struct {
	Backend          string `env:"SESSION_BACKEND" envDefault:"file"`
	HeaderName       string `env:"SESSION_HEADER"` // also accept the id from this header when set
	TouchUnchanged   bool   `env:"SESSION_TOUCH_UNCHANGED" envDefault:"false"`
	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"sessiond"`
}

type settings struct {
	app     appConfig
	log     logger.Config
	session session.Config
	http    httpserver.Config
}

func loadSettings() (settings, error) {
	var s settings
	if err := config.Load(&s.app); err != nil {
		return s, err
	}
	if err := config.Load(&s.log); err != nil {
		return s, err
	}
	if err := config.Load(&s.session); err != nil {
		return s, err
	}
	if err := config.Load(&s.http); err != nil {
		return s, err
	}
	return s, nil
}
