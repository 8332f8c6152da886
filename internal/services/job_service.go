package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/quoteflow-backend/internal/data/repos"
	types "github.com/yungbote/quoteflow-backend/internal/domain"
	jobstatus "github.com/yungbote/quoteflow-backend/internal/domain/jobs"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/platform/ctxutil"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
)

const (
	JobTypeExtraction = "extraction"
	JobTypeDocuments  = "documents"

	// Kept literal so this package does not import the temporal workflow package.
	temporalWorkflowName = "job_run"
)

// ExtractionJobKey and DocumentsJobKey are the idempotency keys of the two
// job kinds. Enqueueing an existing key returns the existing job.
func ExtractionJobKey(caseID, runID uuid.UUID) string {
	return fmt.Sprintf("extract:%s:%s", caseID, runID)
}

func DocumentsJobKey(caseID, batchID uuid.UUID) string {
	return fmt.Sprintf("documents:%s:%s", caseID, batchID)
}

type EnqueueRequest struct {
	JobType        string
	EntityType     string
	EntityID       *uuid.UUID
	IdempotencyKey string
	Payload        map[string]any
}

type JobService interface {
	Enqueue(dbc dbctx.Context, req EnqueueRequest) (*types.JobRun, bool, error)
	Dispatch(dbc dbctx.Context, jobID uuid.UUID) error
	GetByID(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
	GetLatestForEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error)
	Cancel(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
	Restart(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
}

type jobService struct {
	db     *gorm.DB
	log    *logger.Logger
	repo   repos.JobRunRepo
	notify JobNotifier

	temporal          temporalsdkclient.Client
	temporalTaskQueue string
	maxAttempts       int
}

// NewJobService dispatches through Temporal when tc is set. With a nil client
// jobs stay queued for the database polling worker.
func NewJobService(
	db *gorm.DB,
	baseLog *logger.Logger,
	repo repos.JobRunRepo,
	notify JobNotifier,
	tc temporalsdkclient.Client,
	taskQueue string,
	maxAttempts int,
) JobService {
	if notify == nil {
		notify = NopNotifier{}
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &jobService{
		db:                db,
		log:               baseLog.With("service", "JobService"),
		repo:              repo,
		notify:            notify,
		temporal:          tc,
		temporalTaskQueue: strings.TrimSpace(taskQueue),
		maxAttempts:       maxAttempts,
	}
}

func (s *jobService) Enqueue(dbc dbctx.Context, req EnqueueRequest) (*types.JobRun, bool, error) {
	if strings.TrimSpace(req.JobType) == "" {
		return nil, false, fmt.Errorf("%w: missing job_type", ErrInvalidInput)
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, false, fmt.Errorf("%w: missing idempotency key", ErrInvalidInput)
	}
	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	for k, v := range ctxutil.TracePayload(dbc.Ctx) {
		if _, ok := payload[k]; !ok {
			payload[k] = v
		}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, false, fmt.Errorf("encode payload: %w", err)
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	now := time.Now().UTC()
	job := &types.JobRun{
		ID:             uuid.New(),
		JobType:        req.JobType,
		EntityType:     req.EntityType,
		EntityID:       req.EntityID,
		IdempotencyKey: req.IdempotencyKey,
		Status:         jobstatus.StatusQueued,
		Stage:          "queued",
		Message:        "Queued",
		Payload:        datatypes.JSON(b),
		Result:         datatypes.JSON([]byte(`{}`)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	out, created, err := s.repo.CreateOrGet(dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}, job)
	if err != nil {
		return nil, false, fmt.Errorf("create job: %w", err)
	}
	if !created {
		s.log.Debug("job already enqueued", "job_id", out.ID, "idempotency_key", req.IdempotencyKey)
		return out, false, nil
	}
	s.notify.JobCreated(out)

	// Inside a real transaction the row is not visible yet; callers dispatch after commit.
	if isDBTransaction(dbc.Tx) {
		s.log.Debug("job enqueued inside transaction; awaiting dispatch after commit", "job_id", out.ID, "job_type", out.JobType)
		return out, true, nil
	}
	if err := s.Dispatch(dbctx.Context{Ctx: dbc.Ctx}, out.ID); err != nil {
		return out, true, err
	}
	return out, true, nil
}

type txCommitter interface {
	Commit() error
	Rollback() error
}

func isDBTransaction(db *gorm.DB) bool {
	if db == nil || db.Statement == nil || db.Statement.ConnPool == nil {
		return false
	}
	_, ok := db.Statement.ConnPool.(txCommitter)
	return ok
}

func (s *jobService) Dispatch(dbc dbctx.Context, jobID uuid.UUID) error {
	if jobID == uuid.Nil {
		return fmt.Errorf("%w: missing job id", ErrInvalidInput)
	}
	if s.temporal == nil {
		return nil
	}
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.startWorkflow(ctx, jobID, enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE)
	if err == nil {
		return nil
	}
	var already *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &already) {
		return nil
	}

	now := time.Now().UTC()
	_ = s.repo.UpdateFields(dbctx.Context{Ctx: ctx, Tx: s.db}, jobID, map[string]interface{}{
		"status":        jobstatus.StatusFailed,
		"stage":         "dispatch",
		"message":       "",
		"error":         err.Error(),
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	})
	if j, rerr := s.repo.GetByID(dbctx.Context{Ctx: ctx, Tx: s.db}, jobID); rerr == nil && j != nil {
		s.notify.JobFailed(j, "dispatch", err.Error())
	}
	return fmt.Errorf("start temporal workflow: %w", err)
}

func (s *jobService) startWorkflow(ctx context.Context, jobID uuid.UUID, reusePolicy enums.WorkflowIdReusePolicy) error {
	tq := s.temporalTaskQueue
	if tq == "" {
		tq = "quoteflow"
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    jobID.String(),
		TaskQueue:             tq,
		WorkflowIDReusePolicy: reusePolicy,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    30 * time.Second,
			BackoffCoefficient: 1.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    int32(s.maxAttempts),
		},
	}
	_, err := s.temporal.ExecuteWorkflow(ctx, opts, temporalWorkflowName)
	return err
}

func (s *jobService) GetByID(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	job, err := s.repo.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return job, nil
}

func (s *jobService) GetLatestForEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error) {
	job, err := s.repo.GetLatestByEntity(dbc, entityType, entityID, jobType)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job for %s %s: %w", entityType, entityID, ErrNotFound)
	}
	return job, nil
}

// Cancel is a no-op on terminal jobs. A canceled row rejects every later
// progress write from a handler still running it.
func (s *jobService) Cancel(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	job, err := s.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if jobstatus.IsTerminal(job.Status) {
		return job, nil
	}
	now := time.Now().UTC()
	ok, err := s.repo.UpdateFieldsUnlessStatus(dbc, jobID, []string{jobstatus.StatusSucceeded, jobstatus.StatusFailed, jobstatus.StatusCanceled}, map[string]interface{}{
		"status":       jobstatus.StatusCanceled,
		"stage":        "canceled",
		"message":      "Canceled",
		"locked_at":    nil,
		"heartbeat_at": now,
		"updated_at":   now,
	})
	if err != nil {
		return nil, fmt.Errorf("cancel job: %w", err)
	}
	if s.temporal != nil {
		if cerr := s.temporal.CancelWorkflow(dbc.Ctx, jobID.String(), ""); cerr != nil {
			var nf *serviceerror.NotFound
			if !errors.As(cerr, &nf) {
				s.log.Warn("cancel workflow failed", "job_id", jobID, "error", cerr)
			}
		}
	}
	updated, err := s.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if ok {
		s.notify.JobCanceled(updated)
	}
	return updated, nil
}

// Restart re-queues a failed or canceled job with a fresh attempt budget.
func (s *jobService) Restart(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	job, err := s.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != jobstatus.StatusFailed && job.Status != jobstatus.StatusCanceled {
		return job, nil
	}
	now := time.Now().UTC()
	if err := s.repo.UpdateFields(dbc, jobID, map[string]interface{}{
		"status":        jobstatus.StatusQueued,
		"stage":         "queued",
		"progress":      0,
		"attempts":      0,
		"message":       "Queued",
		"error":         "",
		"last_error_at": nil,
		"locked_at":     nil,
		"updated_at":    now,
	}); err != nil {
		return nil, fmt.Errorf("restart job: %w", err)
	}
	if s.temporal != nil {
		if err := s.startWorkflow(dbc.Ctx, jobID, enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE); err != nil {
			var already *serviceerror.WorkflowExecutionAlreadyStarted
			if !errors.As(err, &already) {
				return nil, fmt.Errorf("start temporal workflow: %w", err)
			}
		}
	}
	return s.GetByID(dbc, jobID)
}
