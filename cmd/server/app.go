package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/recaphq/recap-api/internal/api"
	apimiddleware "github.com/recaphq/recap-api/internal/api/middleware"
	"github.com/recaphq/recap-api/internal/avatar"
	"github.com/recaphq/recap-api/internal/config"
	"github.com/recaphq/recap-api/internal/credit"
	"github.com/recaphq/recap-api/internal/domain"
	"github.com/recaphq/recap-api/internal/generation"
	"github.com/recaphq/recap-api/internal/platform"
	"github.com/recaphq/recap-api/internal/platform/gemini"
	"github.com/recaphq/recap-api/internal/platform/github"
	"github.com/recaphq/recap-api/internal/platform/imagegen"
	"github.com/recaphq/recap-api/internal/platform/objectstore"
	"github.com/recaphq/recap-api/internal/platform/postgres"
	"github.com/recaphq/recap-api/internal/render"
	"github.com/recaphq/recap-api/internal/service"
	"github.com/recaphq/recap-api/internal/service/auth"
	"github.com/recaphq/recap-api/internal/store"
	"github.com/recaphq/recap-api/internal/task"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// errAvatarsDisabled is returned by avatar batches when no image API is configured.
var errAvatarsDisabled = errors.New("avatar processing is not configured")

// disabledRunner stands in for the avatar processor without an image API.
type disabledRunner struct{}

func (disabledRunner) RunBatch(context.Context) (*task.BatchResult, error) {
	return nil, errAvatarsDisabled
}

// application holds the shared dependencies of every command.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	registry *prometheus.Registry
	metrics  *task.Metrics

	transactor  store.Transactor
	taskStore   store.TaskStore
	avatarStore store.AvatarTaskStore
	ledger      *credit.Ledger
	adapters    platform.Registry

	// set by setupProcessors
	taskProcessor   api.BatchRunner
	avatarProcessor api.BatchRunner
}

// newApplication wires the stores and the credit ledger. External clients
// are only created by setupProcessors, so ledger-only commands need no API keys.
func newApplication(cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config:   cfg,
		logger:   logger,
		db:       db,
		registry: prometheus.NewRegistry(),
	}
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = task.MustNewMetrics(app.registry)

	app.transactor = postgres.NewRetryingTransactor(db)
	app.taskStore = postgres.NewPostgresTaskStore(db, logger)
	app.avatarStore = postgres.NewPostgresAvatarTaskStore(db, logger)
	app.ledger = credit.NewLedger(
		app.transactor,
		postgres.NewPostgresCreditStore(db, logger),
		postgres.NewPostgresCouponStore(db),
		credit.OptionsFromConfig(cfg.Credits, cfg.Server),
		logger,
	)
	app.adapters = platform.NewRegistry(github.NewAdapter(cfg.GitHub, nil, logger))
	return app, nil
}

// setupProcessors creates the content generator, renderer, uploader and
// image client, and the two processors on top of them.
func (app *application) setupProcessors(ctx context.Context) error {
	cfg := app.config

	generator, err := gemini.NewGenerator(ctx, app.logger.With("component", "llm_generator"), cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to initialize content generator: %w", err)
	}
	renderer, err := render.NewSVGRenderer()
	if err != nil {
		return fmt.Errorf("failed to initialize renderer: %w", err)
	}
	uploader, err := objectstore.NewUploader(cfg.Storage, app.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	app.taskProcessor, err = task.NewProcessor(task.Deps{
		Tasks:      app.taskStore,
		Transactor: app.transactor,
		Ledger:     app.ledger,
		Adapters:   app.adapters,
		Generator:  generator,
		Renderer:   renderer,
		Uploader:   uploader,
		Metrics:    app.metrics,
	}, task.ConfigFrom(cfg.Processor), app.logger)
	if err != nil {
		return fmt.Errorf("failed to create task processor: %w", err)
	}

	images, err := imagegen.NewClient(cfg.ImageGen,
		time.Duration(cfg.Avatar.DownloadTimeoutSeconds)*time.Second, nil, app.logger)
	if errors.Is(err, generation.ErrInvalidConfig) {
		app.logger.Warn("image generation not configured, avatar processing disabled")
		app.avatarProcessor = disabledRunner{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to initialize image client: %w", err)
	}
	app.avatarProcessor, err = avatar.NewProcessor(avatar.Deps{
		Avatars:    app.avatarStore,
		Tasks:      app.taskStore,
		Transactor: app.transactor,
		Ledger:     app.ledger,
		Images:     images,
		Downloader: images,
		Uploader:   uploader,
		Metrics:    app.metrics,
	}, avatar.ConfigFrom(cfg.Avatar, cfg.Processor), app.logger)
	if err != nil {
		return fmt.Errorf("failed to create avatar processor: %w", err)
	}
	return nil
}

// livePlatforms parses processor.live_platforms.
func livePlatforms(names []string) ([]domain.Platform, error) {
	out := make([]domain.Platform, 0, len(names))
	for _, name := range names {
		p, ok := domain.ParsePlatform(name)
		if !ok {
			return nil, fmt.Errorf("unknown platform %q in processor.live_platforms", name)
		}
		out = append(out, p)
	}
	return out, nil
}

// handler builds the instrumented HTTP handler. setupProcessors must have run.
func (app *application) handler() (http.Handler, error) {
	cfg := app.config

	live, err := livePlatforms(cfg.Processor.LivePlatforms)
	if err != nil {
		return nil, err
	}
	summaries, err := service.NewSummaryService(app.taskStore, app.ledger, app.adapters, service.SummaryConfig{
		LivePlatforms:   live,
		BillingRequired: cfg.Credits.BillingRequired,
	}, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create summary service: %w", err)
	}
	avatars, err := service.NewAvatarService(app.taskStore, app.avatarStore, app.ledger, cfg.Avatar.Cost, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create avatar service: %w", err)
	}

	jwtService, err := auth.NewJWTService(cfg.Auth.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	trigger, err := auth.NewTriggerVerifier(cfg.Auth.TriggerToken, cfg.Auth.TriggerTokenHash)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize trigger verifier: %w", err)
	}

	router := api.NewRouter(api.RouterConfig{
		Logger:          app.logger,
		Auth:            apimiddleware.NewAuthMiddleware(jwtService),
		Trigger:         trigger,
		BillingRequired: cfg.Credits.BillingRequired,
		Tasks:           api.NewTaskHandler(summaries, task.NewQueueInspector(app.taskStore)),
		Avatars:         api.NewAvatarHandler(avatars),
		Credits:         api.NewCreditHandler(app.ledger),
		ProcessTasks:    api.NewProcessHandler(app.taskProcessor),
		ProcessAvatars:  api.NewProcessHandler(app.avatarProcessor),
		Metrics:         promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}),
	})
	return otelhttp.NewHandler(router, "recap-api"), nil
}

// cleanup releases the database pool.
func (app *application) cleanup() {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}
	app.logger.Info("application shutdown completed")
}
