package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/yungbote/quoteflow-backend/internal/config"
	"github.com/yungbote/quoteflow-backend/internal/data/db"
	"github.com/yungbote/quoteflow-backend/internal/data/repos"
	"github.com/yungbote/quoteflow-backend/internal/http"
	"github.com/yungbote/quoteflow-backend/internal/jobs/worker"
	"github.com/yungbote/quoteflow-backend/internal/observability"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
	"github.com/yungbote/quoteflow-backend/internal/realtime"
	"github.com/yungbote/quoteflow-backend/internal/temporalx/temporalworker"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      *config.Config
	Repos    repos.Set
	Clients  Clients
	Services Services
	SSEHub   *realtime.SSEHub
	Metrics  *observability.Metrics
	Server   *http.Server

	otelShutdown func(context.Context) error
	worker       *worker.Worker
	closeOnce    sync.Once
}

// New builds every dependency from cfg. Nothing is started: call Serve and/or
// StartWorker, then Close.
func New(ctx context.Context, cfg *config.Config, version string) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	otelShutdown := observability.InitOTel(ctx, log, cfg.OTel, version)
	metrics := observability.Init(cfg.Server.MetricsEnabled)

	theDB, err := db.Open(cfg.Database, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrateAll(theDB); err != nil {
			log.Sync()
			return nil, fmt.Errorf("automigrate: %w", err)
		}
	}

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	log.Info("Wiring repos...")
	reposet := repos.NewSet(theDB, log)

	serviceset, err := wireServices(theDB, log, cfg, reposet, clients)
	if err != nil {
		clients.Close()
		log.Sync()
		return nil, err
	}

	hub := realtime.NewSSEHub(log)
	handlerset := wireHandlers(theDB, log, serviceset, hub)

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		SSEHub:       hub,
		Metrics:      metrics,
		Server:       wireServer(log, cfg, handlerset, metrics),
		otelShutdown: otelShutdown,
	}, nil
}

// StartWorker begins executing queued jobs: through Temporal when a client is
// configured, otherwise with the in-process polling pool.
func (a *App) StartWorker(ctx context.Context) error {
	if a == nil {
		return errors.New("app not initialized")
	}
	a.Metrics.StartJobQueueCollector(ctx, a.Log, a.DB)

	if a.Clients.Temporal != nil {
		runner, err := temporalworker.NewRunner(
			a.Log,
			a.Clients.TemporalCfg,
			a.Cfg.Worker,
			a.Clients.Temporal,
			a.DB,
			a.Repos.JobRun,
			a.Services.JobRegistry,
			a.Services.JobNotifier,
		)
		if err != nil {
			return fmt.Errorf("init temporal worker: %w", err)
		}
		return runner.Start(ctx)
	}

	if a.Clients.Redis == nil {
		a.Log.Info("No redis configured; job events reach only this process's SSE clients")
	}
	a.worker = worker.NewWorker(a.DB, a.Log, a.Repos.JobRun, a.Services.JobRegistry, a.Services.JobNotifier, a.Cfg.Worker)
	a.worker.Start(ctx)
	return nil
}

// Serve forwards bus events into the SSE hub and runs the HTTP server until
// ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return errors.New("app not initialized")
	}
	if err := a.Clients.Bus.StartForwarder(ctx, a.SSEHub.Broadcast); err != nil {
		return fmt.Errorf("start event forwarder: %w", err)
	}
	if a.Clients.Redis != nil {
		a.Metrics.StartRedisCollector(ctx, a.Log, a.Clients.Redis)
	}
	a.Log.Info("Starting HTTP server", "addr", a.Cfg.Server.Addr)
	return a.Server.Run(ctx, a.Cfg.Server.Addr)
}

// Close waits for in-process job loops (their context must already be
// canceled) and releases every client.
func (a *App) Close() {
	if a == nil {
		return
	}
	a.closeOnce.Do(func() {
		if a.worker != nil {
			a.worker.Wait()
		}
		a.Clients.Close()
		if a.otelShutdown != nil {
			if err := a.otelShutdown(context.Background()); err != nil {
				a.Log.Warn("otel shutdown failed", "error", err)
			}
		}
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
		a.Log.Sync()
	})
}
