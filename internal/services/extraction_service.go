package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/quoteflow-backend/internal/data/repos"
	types "github.com/yungbote/quoteflow-backend/internal/domain"
	"github.com/yungbote/quoteflow-backend/internal/domain/cases"
	"github.com/yungbote/quoteflow-backend/internal/domain/extraction"
	"github.com/yungbote/quoteflow-backend/internal/observability"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
	"github.com/yungbote/quoteflow-backend/internal/requirements"
)

// ErrRunFailed is returned when a job is redelivered for a run that already
// failed. The run is left untouched.
var ErrRunFailed = errors.New("extraction run already failed")

type ExtractionEnqueued struct {
	Run *types.ExtractionRun `json:"run"`
	Job *types.JobRun        `json:"job"`
}

type ExtractionSummary struct {
	RunID         uuid.UUID `json:"run_id"`
	Version       int       `json:"version"`
	Status        string    `json:"status"`
	Valid         bool      `json:"valid"`
	MissingFields []string  `json:"missing_fields"`
	Evidence      int       `json:"evidence"`
	Unaligned     int       `json:"unaligned"`
	Skipped       bool      `json:"skipped,omitempty"`
}

// ProgressFunc receives coarse progress while a run executes.
type ProgressFunc func(stage string, pct int, msg string)

type ExtractionService interface {
	Enqueue(dbc dbctx.Context, caseID uuid.UUID) (*ExtractionEnqueued, error)
	GetRun(dbc dbctx.Context, runID uuid.UUID) (*types.ExtractionRun, error)
	ListRuns(dbc dbctx.Context, caseID uuid.UUID) ([]*types.ExtractionRun, error)
	// Execute runs the extraction for runID. Runs move pending, running,
	// then completed or failed; a completed run is returned as skipped.
	Execute(dbc dbctx.Context, runID uuid.UUID, progress ProgressFunc) (*ExtractionSummary, error)
}

type extractionService struct {
	db        *gorm.DB
	log       *logger.Logger
	repos     repos.Set
	uploads   UploadService
	cases     CaseService
	jobs      JobService
	extractor *requirements.Extractor
	model     string
}

func NewExtractionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	rs repos.Set,
	uploads UploadService,
	caseSvc CaseService,
	jobs JobService,
	extractor *requirements.Extractor,
	model string,
) ExtractionService {
	return &extractionService{
		db:        db,
		log:       baseLog.With("service", "ExtractionService"),
		repos:     rs,
		uploads:   uploads,
		cases:     caseSvc,
		jobs:      jobs,
		extractor: extractor,
		model:     model,
	}
}

func (s *extractionService) Enqueue(dbc dbctx.Context, caseID uuid.UUID) (*ExtractionEnqueued, error) {
	if _, err := s.cases.Get(dbc, caseID); err != nil {
		return nil, err
	}
	up, err := s.repos.Upload.LatestTranscript(dbc, caseID)
	if err != nil {
		return nil, err
	}
	if up == nil {
		return nil, ErrNoTranscript
	}

	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	out := &ExtractionEnqueued{}
	err = transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: txx}
		now := time.Now().UTC()
		uploadID := up.ID
		run, err := s.repos.Run.CreateNextVersion(inner, &types.ExtractionRun{
			ID:        uuid.New(),
			CaseID:    caseID,
			UploadID:  &uploadID,
			Model:     s.model,
			Status:    extraction.RunPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("create run: %w", err)
		}
		entityID := caseID
		job, _, err := s.jobs.Enqueue(inner, EnqueueRequest{
			JobType:        JobTypeExtraction,
			EntityType:     "case",
			EntityID:       &entityID,
			IdempotencyKey: ExtractionJobKey(caseID, run.ID),
			Payload: map[string]any{
				"case_id": caseID.String(),
				"run_id":  run.ID.String(),
			},
		})
		if err != nil {
			return err
		}
		if err := s.repos.Run.UpdateFields(inner, run.ID, map[string]interface{}{"job_id": job.ID}); err != nil {
			return fmt.Errorf("link run to job: %w", err)
		}
		jobID := job.ID
		run.JobID = &jobID
		out.Run = run
		out.Job = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.jobs.Dispatch(dbctx.Context{Ctx: dbc.Ctx}, out.Job.ID); err != nil {
		return nil, err
	}
	if err := s.cases.Advance(dbctx.Context{Ctx: dbc.Ctx}, caseID, cases.StatusExtracting, cases.StatusArchived); err != nil {
		s.log.Warn("case status not advanced", "case_id", caseID, "error", err)
	}
	s.log.Info("extraction enqueued", "case_id", caseID, "run_id", out.Run.ID, "version", out.Run.Version, "job_id", out.Job.ID)
	return out, nil
}

func (s *extractionService) GetRun(dbc dbctx.Context, runID uuid.UUID) (*types.ExtractionRun, error) {
	run, err := s.repos.Run.GetByID(dbc, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return run, nil
}

func (s *extractionService) ListRuns(dbc dbctx.Context, caseID uuid.UUID) ([]*types.ExtractionRun, error) {
	if _, err := s.cases.Get(dbc, caseID); err != nil {
		return nil, err
	}
	return s.repos.Run.ListByCase(dbc, caseID)
}

func (s *extractionService) terminal(run *types.ExtractionRun) (*ExtractionSummary, error) {
	if run.Status == extraction.RunFailed {
		return nil, fmt.Errorf("%w: run %s: %s", ErrRunFailed, run.ID, run.Error)
	}
	return &ExtractionSummary{
		RunID:         run.ID,
		Version:       run.Version,
		Status:        run.Status,
		MissingFields: []string{},
		Skipped:       true,
	}, nil
}

func (s *extractionService) Execute(dbc dbctx.Context, runID uuid.UUID, progress ProgressFunc) (*ExtractionSummary, error) {
	if progress == nil {
		progress = func(string, int, string) {}
	}
	run, err := s.GetRun(dbc, runID)
	if err != nil {
		return nil, err
	}
	if extraction.IsTerminal(run.Status) {
		return s.terminal(run)
	}
	now := time.Now().UTC()
	ok, err := s.repos.Run.Transition(dbc, run.ID, []string{extraction.RunPending, extraction.RunRunning}, extraction.RunRunning, map[string]interface{}{
		"started_at": now,
	})
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	if !ok {
		if run, err = s.GetRun(dbc, runID); err != nil {
			return nil, err
		}
		return s.terminal(run)
	}
	log := s.log.With("case_id", run.CaseID, "run_id", run.ID, "version", run.Version)

	progress("load_transcript", 10, "Loading transcript")
	tr, err := s.uploads.Transcript(dbc, run.CaseID, run.UploadID)
	if err != nil {
		return nil, s.fail(dbc, run, "", err)
	}
	promptHash := requirements.PromptHash(requirements.UserPrompt(tr.Text))

	progress("extract", 30, "Extracting requirements")
	out, err := s.extractor.Extract(dbc.Ctx, tr.Text, tr.Segments)
	if err != nil {
		return nil, s.fail(dbc, run, promptHash, err)
	}

	progress("validate", 70, "Validating requirements")
	vr := requirements.Validate(out.Requirements)
	tree := out.Requirements
	tree.OpenQuestions = vr.OpenQuestions

	data, err := json.Marshal(tree)
	if err != nil {
		return nil, s.fail(dbc, run, promptHash, fmt.Errorf("encode requirements: %w", err))
	}
	conf, err := json.Marshal(out.Confidence)
	if err != nil {
		return nil, s.fail(dbc, run, promptHash, fmt.Errorf("encode confidence: %w", err))
	}
	rows := make([]*types.Evidence, 0, len(out.Evidence))
	unaligned := 0
	for i, ev := range out.Evidence {
		if ev.SegmentIdx == nil {
			unaligned++
		}
		rows = append(rows, &types.Evidence{
			ID:         uuid.New(),
			RunID:      run.ID,
			Position:   i,
			FieldPath:  ev.FieldPath,
			SegmentIdx: ev.SegmentIdx,
			Snippet:    ev.Snippet,
			StartChar:  ev.StartChar,
			EndChar:    ev.EndChar,
			CreatedAt:  now,
		})
	}

	progress("persist", 85, "Saving requirements")
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	completed := false
	err = transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: txx}
		finished := time.Now().UTC()
		ok, err := s.repos.Run.Transition(inner, run.ID, []string{extraction.RunRunning}, extraction.RunCompleted, map[string]interface{}{
			"model":       out.Model,
			"prompt_hash": out.PromptHash,
			"error":       "",
			"finished_at": finished,
		})
		if err != nil || !ok {
			return err
		}
		if err := s.repos.Requirement.Upsert(inner, &types.Requirement{
			ID:         uuid.New(),
			RunID:      run.ID,
			Data:       datatypes.JSON(data),
			Confidence: datatypes.JSON(conf),
			Valid:      vr.Valid,
			CreatedAt:  finished,
			UpdatedAt:  finished,
		}); err != nil {
			return fmt.Errorf("save requirements: %w", err)
		}
		if err := s.repos.Evidence.ReplaceForRun(inner, run.ID, rows); err != nil {
			return fmt.Errorf("save evidence: %w", err)
		}
		completed = true
		return nil
	})
	if err != nil {
		return nil, s.fail(dbc, run, promptHash, err)
	}
	if !completed {
		log.Info("run finished elsewhere; result discarded")
		if run, err = s.GetRun(dbc, runID); err != nil {
			return nil, err
		}
		return s.terminal(run)
	}

	observability.Current().IncExtraction(extraction.RunCompleted, vr.Valid)
	if err := s.cases.Advance(dbc, run.CaseID, cases.StatusReviewing, cases.StatusArchived, cases.StatusQuoted); err != nil {
		log.Warn("case status not advanced", "error", err)
	}
	log.Info("extraction completed",
		"valid", vr.Valid,
		"missing_fields", len(vr.MissingFields),
		"evidence", len(rows),
		"unaligned", unaligned,
	)
	return &ExtractionSummary{
		RunID:         run.ID,
		Version:       run.Version,
		Status:        extraction.RunCompleted,
		Valid:         vr.Valid,
		MissingFields: vr.MissingFields,
		Evidence:      len(rows),
		Unaligned:     unaligned,
	}, nil
}

// fail records cause on the run and returns it. The running-to-failed
// transition is guarded so a run completed by another delivery stays completed.
func (s *extractionService) fail(dbc dbctx.Context, run *types.ExtractionRun, promptHash string, cause error) error {
	updates := map[string]interface{}{
		"error":       cause.Error(),
		"finished_at": time.Now().UTC(),
	}
	if promptHash != "" {
		updates["prompt_hash"] = promptHash
	}
	if _, err := s.repos.Run.Transition(dbctx.Context{Ctx: dbc.Ctx}, run.ID, []string{extraction.RunRunning}, extraction.RunFailed, updates); err != nil {
		s.log.Error("mark run failed", "run_id", run.ID, "error", err)
	}
	observability.Current().IncExtraction(extraction.RunFailed, false)
	if err := s.cases.Advance(dbctx.Context{Ctx: dbc.Ctx}, run.CaseID, cases.StatusDraft, cases.StatusArchived, cases.StatusReviewing, cases.StatusQuoted); err != nil {
		s.log.Warn("case status not reset", "case_id", run.CaseID, "error", err)
	}
	s.log.Warn("extraction failed", "case_id", run.CaseID, "run_id", run.ID, "error", cause)
	return fmt.Errorf("extraction run %s: %w", run.ID, cause)
}
