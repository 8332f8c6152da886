package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/quoteflow-backend/internal/config"
	"github.com/yungbote/quoteflow-backend/internal/http"
	httpH "github.com/yungbote/quoteflow-backend/internal/http/handlers"
	"github.com/yungbote/quoteflow-backend/internal/observability"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
	"github.com/yungbote/quoteflow-backend/internal/realtime"
)

type Handlers struct {
	Health     *httpH.HealthHandler
	Case       *httpH.CaseHandler
	Upload     *httpH.UploadHandler
	Extraction *httpH.ExtractionHandler
	Plan       *httpH.PlanHandler
	Document   *httpH.DocumentHandler
	Job        *httpH.JobHandler
	Realtime   *httpH.RealtimeHandler
}

func wireHandlers(db *gorm.DB, log *logger.Logger, svc Services, hub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:     httpH.NewHealthHandler(db),
		Case:       httpH.NewCaseHandler(svc.Cases),
		Upload:     httpH.NewUploadHandler(svc.Uploads),
		Extraction: httpH.NewExtractionHandler(svc.Extraction, svc.Requirements),
		Plan:       httpH.NewPlanHandler(svc.Plans),
		Document:   httpH.NewDocumentHandler(log, svc.Documents),
		Job:        httpH.NewJobHandler(svc.Jobs),
		Realtime:   httpH.NewRealtimeHandler(log, hub, svc.Jobs, svc.Cases),
	}
}

func wireServer(log *logger.Logger, cfg *config.Config, h Handlers, metrics *observability.Metrics) *http.Server {
	tracing := ""
	if cfg.OTel.Enabled {
		tracing = cfg.OTel.ServiceName
	}
	return http.NewServer(http.RouterConfig{
		Log:               log,
		Metrics:           metrics,
		CORSOrigins:       cfg.Server.CORSOrigins,
		MaxUploadBytes:    cfg.Server.MaxUploadBytes,
		TracingService:    tracing,
		CaseHandler:       h.Case,
		UploadHandler:     h.Upload,
		ExtractionHandler: h.Extraction,
		PlanHandler:       h.Plan,
		DocumentHandler:   h.Document,
		JobHandler:        h.Job,
		RealtimeHandler:   h.Realtime,
		HealthHandler:     h.Health,
	})
}
