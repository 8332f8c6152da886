package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/quoteflow-backend/internal/data/repos/cases"
	"github.com/yungbote/quoteflow-backend/internal/data/repos/documents"
	"github.com/yungbote/quoteflow-backend/internal/data/repos/extraction"
	"github.com/yungbote/quoteflow-backend/internal/data/repos/jobs"
	"github.com/yungbote/quoteflow-backend/internal/data/repos/quoting"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
)

type CaseRepo = cases.CaseRepo
type UploadRepo = cases.UploadRepo
type SegmentRepo = cases.SegmentRepo

type RunRepo = extraction.RunRepo
type RequirementRepo = extraction.RequirementRepo
type EvidenceRepo = extraction.EvidenceRepo

type PlanRepo = quoting.PlanRepo
type DocumentRepo = documents.DocumentRepo
type JobRunRepo = jobs.JobRunRepo

// Set bundles every repo so wiring code passes one value around.
type Set struct {
	Case        CaseRepo
	Upload      UploadRepo
	Segment     SegmentRepo
	Run         RunRepo
	Requirement RequirementRepo
	Evidence    EvidenceRepo
	Plan        PlanRepo
	Document    DocumentRepo
	JobRun      JobRunRepo
}

func NewSet(db *gorm.DB, log *logger.Logger) Set {
	return Set{
		Case:        cases.NewCaseRepo(db, log),
		Upload:      cases.NewUploadRepo(db, log),
		Segment:     cases.NewSegmentRepo(db, log),
		Run:         extraction.NewRunRepo(db, log),
		Requirement: extraction.NewRequirementRepo(db, log),
		Evidence:    extraction.NewEvidenceRepo(db, log),
		Plan:        quoting.NewPlanRepo(db, log),
		Document:    documents.NewDocumentRepo(db, log),
		JobRun:      jobs.NewJobRunRepo(db, log),
	}
}
