package domain

import (
	"github.com/yungbote/quoteflow-backend/internal/domain/cases"
	"github.com/yungbote/quoteflow-backend/internal/domain/documents"
	"github.com/yungbote/quoteflow-backend/internal/domain/extraction"
	"github.com/yungbote/quoteflow-backend/internal/domain/jobs"
	"github.com/yungbote/quoteflow-backend/internal/domain/quoting"
)

type (
	Case          = cases.Case
	Upload        = cases.Upload
	Segment       = cases.Segment
	ExtractionRun = extraction.Run
	Requirement   = extraction.Requirement
	Evidence      = extraction.Evidence
	Plan          = quoting.Plan
	QuoteItem     = quoting.QuoteItem
	Document      = documents.Document
	JobRun        = jobs.JobRun
)

// Models lists every persisted type in dependency order for AutoMigrate.
func Models() []any {
	return []any{
		&cases.Case{},
		&cases.Upload{},
		&cases.Segment{},
		&extraction.Run{},
		&extraction.Requirement{},
		&extraction.Evidence{},
		&quoting.Plan{},
		&quoting.QuoteItem{},
		&documents.Document{},
		&jobs.JobRun{},
	}
}
