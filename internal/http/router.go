package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/quoteflow-backend/internal/http/handlers"
	httpMW "github.com/yungbote/quoteflow-backend/internal/http/middleware"
	"github.com/yungbote/quoteflow-backend/internal/observability"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	CORSOrigins    []string
	MaxUploadBytes int64
	// TracingService enables otelgin spans under this service name.
	TracingService string

	CaseHandler       *httpH.CaseHandler
	UploadHandler     *httpH.UploadHandler
	ExtractionHandler *httpH.ExtractionHandler
	PlanHandler       *httpH.PlanHandler
	DocumentHandler   *httpH.DocumentHandler
	JobHandler        *httpH.JobHandler
	RealtimeHandler   *httpH.RealtimeHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.MaxUploadBytes > 0 {
		r.MaxMultipartMemory = cfg.MaxUploadBytes
	}
	if cfg.TracingService != "" {
		r.Use(otelgin.Middleware(cfg.TracingService))
	}
	r.Use(httpMW.Correlation())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")

	// Cases
	if cfg.CaseHandler != nil {
		api.POST("/cases", cfg.CaseHandler.CreateCase)
		api.GET("/cases", cfg.CaseHandler.ListCases)
		api.GET("/cases/:id", cfg.CaseHandler.GetCase)
		api.PATCH("/cases/:id", cfg.CaseHandler.UpdateCase)
	}

	// Uploads
	if cfg.UploadHandler != nil {
		api.POST("/cases/:id/uploads", cfg.UploadHandler.Upload)
		api.GET("/cases/:id/uploads", cfg.UploadHandler.ListUploads)
		api.GET("/cases/:id/segments", cfg.UploadHandler.ListSegments)
	}

	// Extraction + requirements
	if cfg.ExtractionHandler != nil {
		api.POST("/cases/:id/extract", cfg.ExtractionHandler.Extract)
		api.GET("/cases/:id/runs", cfg.ExtractionHandler.ListRuns)
		api.GET("/runs/:id", cfg.ExtractionHandler.GetRun)
		api.GET("/cases/:id/requirements", cfg.ExtractionHandler.GetRequirements)
		api.PUT("/cases/:id/requirements", cfg.ExtractionHandler.PutRequirements)
	}

	// Plans
	if cfg.PlanHandler != nil {
		api.POST("/cases/:id/plans/generate", cfg.PlanHandler.GeneratePlans)
		api.GET("/cases/:id/plans", cfg.PlanHandler.ListPlans)
		api.PUT("/plans/:id", cfg.PlanHandler.UpdatePlan)
	}

	// Documents
	if cfg.DocumentHandler != nil {
		api.POST("/cases/:id/documents", cfg.DocumentHandler.CreateDocuments)
		api.GET("/cases/:id/documents", cfg.DocumentHandler.ListDocuments)
		api.GET("/cases/:id/documents/preview", cfg.DocumentHandler.Preview)
		api.GET("/documents/:id/download", cfg.DocumentHandler.Download)
	}

	// Jobs
	if cfg.JobHandler != nil {
		api.GET("/jobs/:id", cfg.JobHandler.GetJob)
		api.POST("/jobs/:id/cancel", cfg.JobHandler.CancelJob)
		api.POST("/jobs/:id/restart", cfg.JobHandler.RestartJob)
	}

	// Realtime (SSE)
	if cfg.RealtimeHandler != nil {
		api.GET("/jobs/:id/events", cfg.RealtimeHandler.JobEvents)
		api.GET("/cases/:id/events", cfg.RealtimeHandler.CaseEvents)
	}

	return r
}
