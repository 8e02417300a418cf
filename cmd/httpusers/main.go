package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/httpusers/pkg/api"
	"github.com/platinummonkey/httpusers/pkg/async"
	"github.com/platinummonkey/httpusers/pkg/auth"
	"github.com/platinummonkey/httpusers/pkg/config"
	"github.com/platinummonkey/httpusers/pkg/events"
	"github.com/platinummonkey/httpusers/pkg/mailer"
	"github.com/platinummonkey/httpusers/pkg/middleware"
	"github.com/platinummonkey/httpusers/pkg/observability"
	"github.com/platinummonkey/httpusers/pkg/orgs"
	"github.com/platinummonkey/httpusers/pkg/permissions"
	"github.com/platinummonkey/httpusers/pkg/users"
	"github.com/platinummonkey/httpusers/pkg/webhooks"
)

var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "Path to YAML config file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	if err := run(*configPath); err != nil {
		logrus.WithError(err).Fatal("httpusers exited")
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: version,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)
	health := observability.NewHealthChecker(version)

	b, err := openBackend(ctx, cfg, logger, metrics, health)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}

	runner := async.NewRunner(logger)
	bus := events.NewBus(logger, runner)
	bus.Subscribe(events.NewLogSubscriber(logger))
	bus.Subscribe(metrics.EventSubscriber())
	if cfg.Webhooks.EventsURL != "" {
		hook := webhooks.NewClient(cfg.Webhooks.EventsURL, cfg.Webhooks.Secret, cfg.Webhooks.Timeout, webhooks.DefaultRetryConfig())
		bus.Subscribe(webhooks.NewEventSubscriber(hook))
	}

	catalog := permissions.NewCatalog(b.store)
	if err := catalog.Seed(ctx); err != nil {
		b.close(ctx)
		return fmt.Errorf("failed to seed permissions: %w", err)
	}

	policy := cfg.Policy
	var watcher *config.Watcher
	if configPath != "" {
		watcher, err = config.NewWatcher(configPath, cfg, logger)
		if err != nil {
			b.close(ctx)
			return err
		}
		watcher.OnReload(func(c *config.Config) {
			if lvl, err := logrus.ParseLevel(c.Observability.LogLevel); err == nil {
				logger.SetLevel(lvl)
			}
		})
		policy = watcher.Policy
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Error("Config watcher stopped")
			}
		}()
	}

	repo := users.NewRepository(b.store)
	orgService := orgs.NewService(b.store, repo, bus, logger)
	userService := users.NewService(users.Options{
		Repo:        repo,
		Attachments: b.attachments,
		Orgs:        orgService,
		Catalog:     catalog,
		Mailer:      newMailer(cfg, logger),
		Events:      bus,
		Policy:      policy,
		Logger:      logger,
	})

	authenticator := middleware.NewAuthenticator(auth.NewStrategy(userService), userService, logger, metrics)

	var gatherer prometheus.Gatherer
	if cfg.Observability.MetricsEnabled {
		gatherer = registry
	}
	server := api.NewServer(api.Options{
		Users:        userService,
		Orgs:         orgService,
		Catalog:      catalog,
		Auth:         authenticator,
		Events:       bus,
		Logger:       logger,
		Metrics:      metrics,
		Gatherer:     gatherer,
		Health:       health,
		CORSOrigins:  cfg.CORS.AllowedOrigins,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Tracing:      otelProviders != nil,
	})

	scheduler := cron.New()
	if cfg.Stats.Schedule != "" {
		if _, err := scheduler.AddFunc(cfg.Stats.Schedule, func() { refreshUserStats(ctx, userService, metrics, logger) }); err != nil {
			b.close(ctx)
			return fmt.Errorf("invalid stats schedule: %w", err)
		}
		scheduler.Start()
		refreshUserStats(ctx, userService, metrics, logger)
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("scheduler", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdown.RegisterShutdownFunc("background tasks", func(ctx context.Context) error {
		timeout := 5 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if !runner.Wait(timeout) {
			return errors.New("background tasks still running")
		}
		return nil
	})
	if watcher != nil {
		shutdown.RegisterShutdownFunc("config watcher", func(context.Context) error { return watcher.Close() })
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		shutdown.RegisterShutdownFunc(b.closers[i].name, b.closers[i].fn)
	}
	shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})

	go func() {
		logger.WithFields(logrus.Fields{
			"addr":    httpServer.Addr,
			"version": version,
			"storage": cfg.Storage.Backend,
		}).Info("Starting httpusers server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("HTTP server failed")
			cancel()
		}
	}()

	return shutdown.WaitForShutdown(ctx)
}

func newMailer(cfg *config.Config, logger *logrus.Logger) mailer.Mailer {
	switch cfg.Mailer.Type {
	case config.MailerWebhook:
		client := webhooks.NewClient(cfg.Mailer.WebhookURL, cfg.Mailer.WebhookSecret, cfg.Mailer.Timeout, webhooks.DefaultRetryConfig())
		return mailer.NewWebhookMailer(client)
	case config.MailerNone:
		return nil
	default:
		return mailer.NewLogMailer(logger, cfg.Mailer.IncludeTokens)
	}
}

func refreshUserStats(ctx context.Context, svc *users.Service, metrics *observability.Metrics, logger *logrus.Logger) {
	counts, err := svc.CountByStatus(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to count users by status")
		return
	}
	byName := make(map[string]int, len(counts))
	for status, n := range counts {
		byName[string(status)] = n
	}
	metrics.SetUsersByStatus(byName)
}
