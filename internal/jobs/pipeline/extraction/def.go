package extraction

import (
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
	"github.com/yungbote/quoteflow-backend/internal/services"
)

type Pipeline struct {
	log        *logger.Logger
	extraction services.ExtractionService
}

func New(baseLog *logger.Logger, extraction services.ExtractionService) *Pipeline {
	return &Pipeline{
		log:        baseLog.With("job", services.JobTypeExtraction),
		extraction: extraction,
	}
}

func (p *Pipeline) Type() string { return services.JobTypeExtraction }
