package handlers

import (
	"github.com/gin-gonic/gin"

	types "github.com/yungbote/quoteflow-backend/internal/domain"
	jobstatus "github.com/yungbote/quoteflow-backend/internal/domain/jobs"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
	"github.com/yungbote/quoteflow-backend/internal/realtime"
	"github.com/yungbote/quoteflow-backend/internal/services"
)

// RealtimeHandler streams job and case events over SSE. Events reach the hub
// from the bus forwarder, so every API replica sees every worker's events.
type RealtimeHandler struct {
	log   *logger.Logger
	hub   *realtime.SSEHub
	jobs  services.JobService
	cases services.CaseService
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub, jobs services.JobService, cases services.CaseService) *RealtimeHandler {
	return &RealtimeHandler{
		log:   log.With("handler", "RealtimeHandler"),
		hub:   hub,
		jobs:  jobs,
		cases: cases,
	}
}

// GET /api/jobs/:id/events
//
// The first frame is a snapshot of the job. The stream ends after the job
// reaches a terminal state.
func (h *RealtimeHandler) JobEvents(c *gin.Context) {
	jobID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	if _, err := h.jobs.GetByID(dbc, jobID); err != nil {
		respondServiceError(c, err)
		return
	}

	// Subscribe before the snapshot so no transition falls in between.
	client := h.hub.NewSSEClient()
	h.hub.AddChannel(client, realtime.JobChannel(jobID))
	defer h.hub.CloseClient(client)

	job, err := h.jobs.GetByID(dbc, jobID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	snapshot := realtime.SSEMessage{
		Channel: realtime.JobChannel(jobID),
		Event:   snapshotEvent(job),
		Data:    map[string]any{"job_id": job.ID, "job_type": job.JobType, "job": job},
	}
	select {
	case client.Outbound <- snapshot:
	default:
	}
	if jobstatus.IsTerminal(job.Status) {
		h.hub.ServeHTTP(c.Writer, c.Request, client, func(realtime.SSEMessage) bool { return true })
		return
	}
	h.hub.ServeHTTP(c.Writer, c.Request, client, isTerminalEvent)
}

// GET /api/cases/:id/events
func (h *RealtimeHandler) CaseEvents(c *gin.Context) {
	caseID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if _, err := h.cases.Get(dbctx.Context{Ctx: c.Request.Context()}, caseID); err != nil {
		respondServiceError(c, err)
		return
	}
	client := h.hub.NewSSEClient()
	h.hub.AddChannel(client, realtime.CaseChannel(caseID))
	defer h.hub.CloseClient(client)
	h.log.Debug("case stream open", "case_id", caseID, "client_id", client.ID)
	h.hub.ServeHTTP(c.Writer, c.Request, client, nil)
}

func snapshotEvent(job *types.JobRun) realtime.SSEEvent {
	switch job.Status {
	case jobstatus.StatusSucceeded:
		return realtime.SSEEventJobDone
	case jobstatus.StatusFailed:
		return realtime.SSEEventJobFailed
	case jobstatus.StatusCanceled:
		return realtime.SSEEventJobCanceled
	default:
		return realtime.SSEEventJobProgress
	}
}

func isTerminalEvent(msg realtime.SSEMessage) bool {
	switch msg.Event {
	case realtime.SSEEventJobDone, realtime.SSEEventJobFailed, realtime.SSEEventJobCanceled:
		return true
	}
	return false
}
