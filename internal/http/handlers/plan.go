package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/quoteflow-backend/internal/http/response"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/services"
)

type PlanHandler struct {
	plans services.PlanService
}

func NewPlanHandler(plans services.PlanService) *PlanHandler {
	return &PlanHandler{plans: plans}
}

// POST /api/cases/:id/plans/generate?run_id=
func (h *PlanHandler) GeneratePlans(c *gin.Context) {
	caseID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	runID, ok := queryUUID(c, "run_id")
	if !ok {
		return
	}
	plans, created, err := h.plans.GeneratePlans(dbctx.Context{Ctx: c.Request.Context()}, caseID, runID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"plans": plans, "created": created})
}

// GET /api/cases/:id/plans?run_id=
func (h *PlanHandler) ListPlans(c *gin.Context) {
	caseID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	runID, ok := queryUUID(c, "run_id")
	if !ok {
		return
	}
	plans, err := h.plans.ListPlans(dbctx.Context{Ctx: c.Request.Context()}, caseID, runID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"plans": plans})
}

type updatePlanRequest struct {
	Assumptions json.RawMessage `json:"assumptions"`
}

// PUT /api/plans/:id
func (h *PlanHandler) UpdatePlan(c *gin.Context) {
	planID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req updatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	plan, err := h.plans.UpdatePlan(dbctx.Context{Ctx: c.Request.Context()}, planID, req.Assumptions)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"plan": plan})
}
