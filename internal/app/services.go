package app

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/quoteflow-backend/internal/config"
	"github.com/yungbote/quoteflow-backend/internal/data/repos"
	"github.com/yungbote/quoteflow-backend/internal/documents"
	documentspipe "github.com/yungbote/quoteflow-backend/internal/jobs/pipeline/documents"
	extractionpipe "github.com/yungbote/quoteflow-backend/internal/jobs/pipeline/extraction"
	jobruntime "github.com/yungbote/quoteflow-backend/internal/jobs/runtime"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
	"github.com/yungbote/quoteflow-backend/internal/pricing"
	"github.com/yungbote/quoteflow-backend/internal/requirements"
	"github.com/yungbote/quoteflow-backend/internal/services"
)

type Services struct {
	JobNotifier  services.JobNotifier
	Jobs         services.JobService
	Cases        services.CaseService
	Uploads      services.UploadService
	Extraction   services.ExtractionService
	Requirements services.RequirementsService
	Plans        services.PlanService
	Documents    services.DocumentService

	Engine      *pricing.Engine
	JobRegistry *jobruntime.Registry
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg *config.Config, rs repos.Set, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	notifier := services.NewJobNotifier(clients.Bus, log)

	taskQueue := ""
	if clients.Temporal != nil {
		taskQueue = clients.TemporalCfg.TaskQueue
	}
	jobService := services.NewJobService(db, log, rs.JobRun, notifier, clients.Temporal, taskQueue, cfg.Worker.MaxAttempts)

	caseService := services.NewCaseService(log, rs.Case, notifier)
	uploadService := services.NewUploadService(db, log, rs.Case, rs.Upload, rs.Segment, clients.Store, cfg.Server.MaxUploadBytes)

	extractor := requirements.NewExtractor(clients.LLM, log)
	extractionService := services.NewExtractionService(db, log, rs, uploadService, caseService, jobService, extractor, clients.LLM.Model())
	requirementsService := services.NewRequirementsService(log, rs)

	engine := pricing.NewEngine(pricing.LoadCatalog(cfg.Pricing.CatalogPath, log), log)
	planService := services.NewPlanService(db, log, rs, engine, clients.Reserver, caseService, notifier, services.PlanServiceConfig{
		ContingencyPercent: cfg.Pricing.ContingencyPercent,
		TaxPercent:         cfg.Pricing.TaxPercent,
		ReservationTTL:     time.Duration(cfg.Redis.ReservationTTL) * time.Second,
	})

	documentService := services.NewDocumentService(db, log, rs, documents.NewRenderer(log), clients.Store, planService, jobService)

	registry := jobruntime.NewRegistry()
	if err := registry.Register(extractionpipe.New(log, extractionService)); err != nil {
		return Services{}, fmt.Errorf("register extraction pipeline: %w", err)
	}
	if err := registry.Register(documentspipe.New(log, documentService)); err != nil {
		return Services{}, fmt.Errorf("register documents pipeline: %w", err)
	}

	return Services{
		JobNotifier:  notifier,
		Jobs:         jobService,
		Cases:        caseService,
		Uploads:      uploadService,
		Extraction:   extractionService,
		Requirements: requirementsService,
		Plans:        planService,
		Documents:    documentService,
		Engine:       engine,
		JobRegistry:  registry,
	}, nil
}
