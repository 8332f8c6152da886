package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/quoteflow-backend/internal/domain"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
	"github.com/yungbote/quoteflow-backend/internal/realtime"
	"github.com/yungbote/quoteflow-backend/internal/realtime/bus"
)

type JobNotifier interface {
	JobCreated(job *types.JobRun)
	JobProgress(job *types.JobRun, stage string, progress int, message string)
	JobFailed(job *types.JobRun, stage string, errorMessage string)
	JobDone(job *types.JobRun)
	JobCanceled(job *types.JobRun)
	CaseUpdated(c *types.Case)
	PlansCreated(caseID uuid.UUID, plans []*types.Plan)
}

// jobNotifier publishes every event on the job channel and, when the job is
// bound to a case, on that case's channel as well.
type jobNotifier struct {
	bus bus.Bus
	log *logger.Logger
}

const publishTimeout = 2 * time.Second

func NewJobNotifier(b bus.Bus, baseLog *logger.Logger) JobNotifier {
	return &jobNotifier{bus: b, log: baseLog.With("service", "JobNotifier")}
}

func (n *jobNotifier) publish(channel string, event realtime.SSEEvent, data any) {
	if n == nil || n.bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := n.bus.Publish(ctx, realtime.SSEMessage{Channel: channel, Event: event, Data: data}); err != nil {
		n.log.Warn("publish failed", "channel", channel, "event", event, "error", err)
	}
}

func (n *jobNotifier) publishJob(job *types.JobRun, event realtime.SSEEvent, data map[string]any) {
	if job == nil {
		return
	}
	data["job_id"] = job.ID
	data["job_type"] = job.JobType
	data["job"] = job
	n.publish(realtime.JobChannel(job.ID), event, data)
	if job.EntityType == "case" && job.EntityID != nil {
		n.publish(realtime.CaseChannel(*job.EntityID), event, data)
	}
}

func (n *jobNotifier) JobCreated(job *types.JobRun) {
	n.publishJob(job, realtime.SSEEventJobCreated, map[string]any{})
}

func (n *jobNotifier) JobProgress(job *types.JobRun, stage string, progress int, message string) {
	n.publishJob(job, realtime.SSEEventJobProgress, map[string]any{
		"stage":    stage,
		"progress": progress,
		"message":  message,
	})
}

func (n *jobNotifier) JobFailed(job *types.JobRun, stage string, errorMessage string) {
	n.publishJob(job, realtime.SSEEventJobFailed, map[string]any{
		"stage": stage,
		"error": errorMessage,
	})
}

func (n *jobNotifier) JobDone(job *types.JobRun) {
	n.publishJob(job, realtime.SSEEventJobDone, map[string]any{})
}

func (n *jobNotifier) JobCanceled(job *types.JobRun) {
	n.publishJob(job, realtime.SSEEventJobCanceled, map[string]any{})
}

func (n *jobNotifier) CaseUpdated(c *types.Case) {
	if c == nil {
		return
	}
	n.publish(realtime.CaseChannel(c.ID), realtime.SSEEventCaseUpdated, map[string]any{"case": c})
}

func (n *jobNotifier) PlansCreated(caseID uuid.UUID, plans []*types.Plan) {
	n.publish(realtime.CaseChannel(caseID), realtime.SSEEventPlansCreated, map[string]any{
		"case_id": caseID,
		"plans":   plans,
	})
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) JobCreated(*types.JobRun)                       {}
func (NopNotifier) JobProgress(*types.JobRun, string, int, string) {}
func (NopNotifier) JobFailed(*types.JobRun, string, string)        {}
func (NopNotifier) JobDone(*types.JobRun)                          {}
func (NopNotifier) JobCanceled(*types.JobRun)                      {}
func (NopNotifier) CaseUpdated(*types.Case)                        {}
func (NopNotifier) PlansCreated(uuid.UUID, []*types.Plan)          {}
