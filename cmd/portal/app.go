package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"github.com/dropDatabas3/partnerportal/internal/config"
	"github.com/dropDatabas3/partnerportal/internal/metrics"
	"github.com/dropDatabas3/partnerportal/internal/observability/logger"
	"github.com/dropDatabas3/partnerportal/internal/portal"
	"github.com/dropDatabas3/partnerportal/internal/remote"
	"github.com/dropDatabas3/partnerportal/internal/session"
	"github.com/dropDatabas3/partnerportal/internal/transport"
)

// app junta todo lo que los comandos necesitan. Se arma en
// PersistentPreRunE, una vez por ejecución.
type app struct {
	configPath string
	apiURL     string
	outFormat  string // "json" | "text"

	stdout io.Writer
	stderr io.Writer

	cfg     *config.Config
	log     *zap.Logger
	store   session.Store
	view    string
	nav     *session.ViewTracker
	cache   *remote.Cache
	reg     *prometheus.Registry
	metrics *metrics.Metrics
	api     *transport.Client
	svc     *portal.Service
}

// setup carga config, logger, sesión y transporte. view es la vista
// "montada" por el comando; el invalidador navega a login desde ahí.
func (a *app) setup(ctx context.Context, view string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if u := strings.TrimSpace(a.apiURL); u != "" {
		cfg.API.BaseURL = strings.TrimRight(u, "/")
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg

	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "portal"})
	a.log = logger.L()

	if cfg.Metrics.Enabled {
		a.reg = prometheus.NewRegistry()
		m, err := metrics.New(a.reg)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		a.metrics = m
	}

	store, err := session.Open(ctx, cfg)
	if err != nil {
		return err
	}
	a.store = store
	a.view = view
	a.nav = session.NewViewTracker(view)
	a.cache = remote.NewCache(remote.CacheOptions{Metrics: a.metrics})

	opts := transport.Options{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.Timeout(),
		Retry: transport.RetryPolicy{
			MaxRetries: cfg.Retry.MaxRetries,
			Base:       cfg.BaseDelay(),
			Max:        cfg.MaxDelay(),
			MaxJitter:  cfg.MaxJitter(),
		},
		Store:       store,
		Invalidator: session.NewInvalidator(store, a.nav, a.log),
		RateLimit:   cfg.RateLimit.RPS,
		Burst:       cfg.RateLimit.Burst,
		Metrics:     a.metrics,
		Logger:      a.log,
	}
	if cfg.Breaker.Enabled {
		opts.Breaker = &transport.BreakerSettings{
			Name:             "portal-api",
			FailureThreshold: cfg.Breaker.FailureThreshold,
			OpenTimeout:      cfg.BreakerTimeout(),
		}
	}
	api, err := transport.New(opts)
	if err != nil {
		return err
	}
	a.api = api
	a.svc = portal.New(portal.Options{API: api, Store: store, Cache: a.cache, Logger: a.log})

	a.log.Debug("cli lista",
		zap.String("api", api.BaseURL()),
		zap.String("session_store", cfg.Session.Store),
		logger.View(view))
	return nil
}

// teardown: aviso de sesión vencida y volcado de métricas.
func (a *app) teardown() {
	if a.nav != nil && a.view != session.ViewLogin && a.nav.Current() == session.ViewLogin {
		fmt.Fprintln(a.stderr, "la sesión expiró: ejecutá `portal login`")
	}
	if a.reg != nil {
		if err := a.dumpMetrics(a.stderr); err != nil {
			a.log.Warn("no se pudieron volcar las métricas", logger.Err(err))
		}
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func (a *app) dumpMetrics(w io.Writer) error {
	mfs, err := a.reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
