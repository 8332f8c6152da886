package jobrun

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go.temporal.io/sdk/activity"

	"github.com/yungbote/quoteflow-backend/internal/data/repos"
	types "github.com/yungbote/quoteflow-backend/internal/domain"
	jobstatus "github.com/yungbote/quoteflow-backend/internal/domain/jobs"
	jobrt "github.com/yungbote/quoteflow-backend/internal/jobs/runtime"
	"github.com/yungbote/quoteflow-backend/internal/observability"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
	"github.com/yungbote/quoteflow-backend/internal/services"
)

type Activities struct {
	Log         *logger.Logger
	DB          *gorm.DB
	Jobs        repos.JobRunRepo
	Registry    *jobrt.Registry
	Notify      services.JobNotifier
	MaxAttempts int
}

// Tick runs the job once unless it is already terminal. A failed job with
// attempts left is run again; that is how workflow retries reach the handler.
func (a *Activities) Tick(ctx context.Context, jobID string) (TickResult, error) {
	res := TickResult{JobID: strings.TrimSpace(jobID)}
	if a == nil || a.DB == nil || a.Jobs == nil || a.Registry == nil {
		return res, fmt.Errorf("jobrun: activity not configured")
	}
	parsedJobID, err := uuid.Parse(res.JobID)
	if err != nil || parsedJobID == uuid.Nil {
		return res, fmt.Errorf("jobrun: invalid job_id")
	}
	notify := a.Notify
	if notify == nil {
		notify = services.NopNotifier{}
	}

	job, err := a.loadJob(ctx, parsedJobID)
	if err != nil {
		return res, err
	}
	if job == nil {
		return res, fmt.Errorf("jobrun: job not found")
	}
	if !a.shouldRun(job) {
		return resultFor(res, job), nil
	}

	stopHB := a.startHeartbeat(ctx, parsedJobID)
	defer stopHB()

	now := time.Now().UTC()
	ok, err := a.Jobs.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx, Tx: a.DB}, parsedJobID,
		[]string{jobstatus.StatusCanceled, jobstatus.StatusSucceeded},
		map[string]interface{}{
			"status":       jobstatus.StatusRunning,
			"attempts":     gorm.Expr("attempts + 1"),
			"error":        "",
			"locked_at":    now,
			"heartbeat_at": now,
			"updated_at":   now,
		})
	if err != nil {
		return res, err
	}
	if !ok {
		// Canceled or finished between the read and the claim.
		if job, err = a.loadJob(ctx, parsedJobID); err != nil || job == nil {
			return res, err
		}
		return resultFor(res, job), nil
	}
	job.Status = jobstatus.StatusRunning
	job.Attempts++
	job.Error = ""
	job.LockedAt = &now
	job.HeartbeatAt = &now
	job.UpdatedAt = now

	log := a.Log.With("job_id", parsedJobID, "job_type", job.JobType, "attempt", job.Attempts)
	jc := jobrt.NewContext(ctx, a.DB, job, a.Jobs, notify)
	start := time.Now()
	handlerReturnedNil := false
	if h, found := a.Registry.Get(job.JobType); !found {
		jc.Fail("dispatch", fmt.Errorf("no handler registered for job_type=%s", job.JobType))
	} else {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("Job handler panic", "panic", r)
					jc.Fail("panic", fmt.Errorf("panic: %v", r))
				}
			}()
			if runErr := h.Run(jc); runErr != nil {
				if jc.Job.Status == jobstatus.StatusRunning {
					jc.Fail("run", runErr)
				}
				return
			}
			handlerReturnedNil = true
		}()
	}

	updated, err := a.loadJob(ctx, parsedJobID)
	if err != nil {
		return res, err
	}
	if updated == nil {
		return res, fmt.Errorf("jobrun: job not found after tick")
	}
	if handlerReturnedNil && updated.Status == jobstatus.StatusRunning {
		log.Warn("Job handler returned nil without terminal status; marking succeeded", "stage", updated.Stage)
		jc.Succeed("done", nil)
		if r2, rerr := a.loadJob(ctx, parsedJobID); rerr == nil && r2 != nil {
			updated = r2
		}
	}
	observability.Current().ObserveJob(updated.JobType, updated.Status, time.Since(start))
	return resultFor(res, updated), nil
}

func (a *Activities) shouldRun(job *types.JobRun) bool {
	switch job.Status {
	case jobstatus.StatusSucceeded, jobstatus.StatusCanceled:
		return false
	case jobstatus.StatusFailed:
		return a.MaxAttempts <= 0 || job.Attempts < a.MaxAttempts
	}
	return true
}

func resultFor(res TickResult, job *types.JobRun) TickResult {
	res.Status = job.Status
	res.Stage = job.Stage
	res.Progress = job.Progress
	res.Message = job.Message
	res.Attempts = job.Attempts
	return res
}

func (a *Activities) loadJob(ctx context.Context, jobID uuid.UUID) (*types.JobRun, error) {
	return a.Jobs.GetByID(dbctx.Context{Ctx: ctx, Tx: a.DB}, jobID)
}

func (a *Activities) startHeartbeat(ctx context.Context, jobID uuid.UUID) func() {
	done := make(chan struct{})
	go func() {
		temporalHB := time.NewTicker(10 * time.Second)
		defer temporalHB.Stop()
		dbHB := time.NewTicker(30 * time.Second)
		defer dbHB.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-temporalHB.C:
				activity.RecordHeartbeat(ctx)
			case <-dbHB.C:
				_ = a.Jobs.Heartbeat(dbctx.Context{Ctx: ctx, Tx: a.DB}, jobID)
			}
		}
	}()
	return func() { close(done) }
}
