// Package app wires configuration, storage, the platform client, the cycle and the HTTP API together.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"digest-relay-go/internal/channel"
	"digest-relay-go/internal/channel/telegram"
	"digest-relay-go/internal/classifier"
	"digest-relay-go/internal/config"
	"digest-relay-go/internal/db"
	"digest-relay-go/internal/digest"
	"digest-relay-go/internal/handler"
	"digest-relay-go/internal/metrics"
	"digest-relay-go/internal/publisher"
	"digest-relay-go/internal/repository"
	"digest-relay-go/internal/router"
	"digest-relay-go/internal/scheduler"
	"digest-relay-go/internal/service/ingest"
)

const shutdownTimeout = 30 * time.Second

// App holds the wired components of the service
type App struct {
	cfg          *config.Config
	db           *gorm.DB
	registry     *prometheus.Registry
	reader       *channel.Reader
	checkpoints  *repository.CheckpointRepository
	fingerprints *repository.FingerprintRepository
	cycle        *ingest.Cycle
	scheduler    *scheduler.Scheduler
}

// ConfigureLogging sets the JSON formatter and the configured level
func ConfigureLogging(level string) error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)
	return nil
}

// New validates cfg and builds every component
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	fingerprints := repository.NewFingerprintRepository(dbConn)
	checkpoints := repository.NewCheckpointRepository(dbConn)
	posts := repository.NewPublishedPostRepository(dbConn)

	httpClient := &http.Client{Timeout: cfg.Telegram.Timeout}
	preview := telegram.NewPreviewClient(httpClient, cfg.Telegram.PreviewBase, cfg.Telegram.RequestsPerSecond)
	reader := channel.NewReader(preview, channel.ReaderConfig{
		InitialLimit:  cfg.Ingest.InitialLimit,
		RegularLimit:  cfg.Ingest.RegularLimit,
		MinTextLength: cfg.Ingest.MinTextLength,
		InfoTTL:       cfg.Ingest.ChannelInfoTTL,
	})

	rules, err := classifier.LoadFile(cfg.Classifier.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load classifier rules: %w", err)
	}

	builder, err := digest.NewBuilder(digest.Config{
		FallbackThreshold:   cfg.Digest.FallbackThreshold,
		HistoryLimit:        cfg.Digest.HistoryLimit,
		MaxItemsPerCategory: cfg.Digest.MaxItemsPerCategory,
		MaxHighlights:       cfg.Digest.MaxHighlights,
		KeyPointRunes:       cfg.Digest.KeyPointRunes,
		Advisories:          cfg.Digest.Advisories,
	}, fingerprints)
	if err != nil {
		return nil, fmt.Errorf("failed to create digest builder: %w", err)
	}

	sender := telegram.NewBotSender(httpClient, cfg.Telegram.APIBase, cfg.Telegram.BotToken)
	pub := publisher.New(publisher.Config{
		Target:          cfg.Publish.Target,
		MaxMessageSize:  cfg.Publish.MaxMessageSize,
		SafetyMargin:    cfg.Publish.SafetyMargin,
		DuplicateWindow: cfg.Publish.DuplicateWindow,
	}, sender, posts)

	sources := make([]string, 0, len(cfg.Ingest.Sources))
	for _, raw := range cfg.Ingest.Sources {
		if id := telegram.NormalizeSourceID(raw); id != "" {
			sources = append(sources, id)
		}
	}

	cycle := ingest.NewCycle(ingest.Config{
		Sources:             sources,
		Concurrency:         cfg.Ingest.Concurrency,
		MaxAttempts:         cfg.Ingest.MaxAttempts,
		RetryBackoff:        cfg.Ingest.RetryBackoff,
		MaxRateLimitRetries: cfg.Ingest.MaxRateLimitRetries,
		MaxRateLimitWait:    cfg.Ingest.MaxRateLimitWait,
		Retention:           cfg.Ingest.Retention(),
		PublishEnabled:      cfg.Publish.Enabled,
	}, ingest.Deps{
		Fingerprints: fingerprints,
		Checkpoints:  checkpoints,
		Reader:       reader,
		Classifier:   rules,
		Builder:      builder,
		Publisher:    pub,
		Metrics:      m,
	})

	sched := scheduler.New(scheduler.Config{
		CycleSpec:     cfg.Scheduler.CycleSpec,
		RetentionSpec: cfg.Scheduler.RetentionSpec,
	}, cycle, m)

	logrus.WithFields(logrus.Fields{
		"sources":    len(cycle.Sources()),
		"publishing": cfg.Publish.Enabled,
	}).Info("Application initialized")

	return &App{
		cfg:          cfg,
		db:           dbConn,
		registry:     registry,
		reader:       reader,
		checkpoints:  checkpoints,
		fingerprints: fingerprints,
		cycle:        cycle,
		scheduler:    sched,
	}, nil
}

// Handler builds the HTTP router
func (a *App) Handler() http.Handler {
	h := handler.NewHandlers(handler.Deps{
		Ping:         func() error { return db.Ping(a.db) },
		Scheduler:    a.scheduler,
		Checkpoints:  a.checkpoints,
		Fingerprints: a.fingerprints,
		Forget:       a.reader.Forget,
		Sources:      a.cycle.Sources(),
		Gatherer:     a.registry,
	})
	return router.SetupRouter(h)
}

// RunOnce runs a single cycle outside the schedule
func (a *App) RunOnce(ctx context.Context) (ingest.CycleResult, error) {
	return a.scheduler.RunOnce(ctx)
}

// Purge drops fingerprints past retention
func (a *App) Purge(ctx context.Context) (int64, error) {
	return a.cycle.Purge(ctx)
}

// Serve starts the scheduler and the HTTP server and blocks until ctx is done
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + a.cfg.Server.Port,
		Handler:      a.Handler(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	if err := a.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		logrus.Infof("Starting HTTP server on port %s", a.cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logrus.Info("Shutting down server...")
	case err := <-serveErr:
		runErr = fmt.Errorf("HTTP server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.scheduler.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	a.scheduler.Wait()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return runErr
}

// Close releases the database connection
func (a *App) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
