package documents

import (
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
	"github.com/yungbote/quoteflow-backend/internal/services"
)

type Pipeline struct {
	log  *logger.Logger
	docs services.DocumentService
}

func New(baseLog *logger.Logger, docs services.DocumentService) *Pipeline {
	return &Pipeline{
		log:  baseLog.With("job", services.JobTypeDocuments),
		docs: docs,
	}
}

func (p *Pipeline) Type() string { return services.JobTypeDocuments }
