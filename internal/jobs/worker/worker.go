package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/quoteflow-backend/internal/config"
	"github.com/yungbote/quoteflow-backend/internal/data/repos"
	jobstatus "github.com/yungbote/quoteflow-backend/internal/domain/jobs"
	"github.com/yungbote/quoteflow-backend/internal/jobs/runtime"
	"github.com/yungbote/quoteflow-backend/internal/observability"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
	"github.com/yungbote/quoteflow-backend/internal/services"
)

// Worker polls job_run for runnable rows. It is used when Temporal is not
// configured; each loop claims one job at a time.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *runtime.Registry
	notify   services.JobNotifier

	concurrency  int
	poll         time.Duration
	maxAttempts  int
	retryDelay   time.Duration
	staleRunning time.Duration

	wg sync.WaitGroup
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *runtime.Registry, notify services.JobNotifier, cfg config.WorkerConfig) *Worker {
	w := &Worker{
		db:           db,
		log:          baseLog.With("component", "JobWorker"),
		repo:         repo,
		registry:     registry,
		notify:       notify,
		concurrency:  cfg.Concurrency,
		poll:         time.Duration(cfg.PollMillis) * time.Millisecond,
		maxAttempts:  cfg.MaxAttempts,
		retryDelay:   time.Duration(cfg.RetryDelaySeconds) * time.Second,
		staleRunning: time.Duration(cfg.StaleRunningMinutes) * time.Minute,
	}
	if w.concurrency < 1 {
		w.concurrency = 1
	}
	if w.poll <= 0 {
		w.poll = time.Second
	}
	if w.maxAttempts < 1 {
		w.maxAttempts = 5
	}
	if w.retryDelay <= 0 {
		w.retryDelay = 30 * time.Second
	}
	if w.staleRunning <= 0 {
		w.staleRunning = 30 * time.Minute
	}
	if w.notify == nil {
		w.notify = services.NopNotifier{}
	}
	return w
}

func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool",
		"concurrency", w.concurrency,
		"max_attempts", w.maxAttempts,
		"job_types", w.registry.Types(),
	)
	for i := 0; i < w.concurrency; i++ {
		workerID := i + 1
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runLoop(ctx, workerID)
		}()
	}
}

// Wait blocks until every loop started by Start has returned.
func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			// Drain before waiting for the next tick.
			for ctx.Err() == nil {
				ran, err := w.RunOnce(ctx)
				if err != nil {
					w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
					break
				}
				if !ran {
					break
				}
			}
		}
	}
}

// RunOnce claims and runs at most one job. It reports whether a job was claimed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.maxAttempts, w.retryDelay, w.staleRunning)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	jc := runtime.NewContext(ctx, w.db, job, w.repo, w.notify)
	log := w.log.With("job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts)
	h, ok := w.registry.Get(job.JobType)
	if !ok {
		log.Warn("No handler registered for job_type")
		jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
		observability.Current().ObserveJob(job.JobType, jobstatus.StatusFailed, 0)
		return true, nil
	}

	start := time.Now()
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Job handler panic", "panic", r)
				jc.Fail("panic", errFromRecover(r))
			}
		}()
		if runErr := h.Run(jc); runErr != nil && jc.Job.Status == jobstatus.StatusRunning {
			// Handlers usually call jc.Fail themselves.
			jc.Fail("run", runErr)
		}
	}()

	status := jc.Job.Status
	if status == jobstatus.StatusRunning {
		// A handler that returns without a terminal call is treated as done.
		jc.Succeed("done", nil)
		status = jc.Job.Status
		if status == jobstatus.StatusRunning && jc.Canceled() {
			status = jobstatus.StatusCanceled
		}
	}
	observability.Current().ObserveJob(job.JobType, status, time.Since(start))
	log.Debug("job finished", "status", status, "duration_ms", time.Since(start).Milliseconds())
	return true, nil
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string {
	return "no handler registered for job_type=" + e.JobType
}

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
