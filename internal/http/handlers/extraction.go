package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/quoteflow-backend/internal/http/response"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/services"
)

type ExtractionHandler struct {
	extraction   services.ExtractionService
	requirements services.RequirementsService
}

func NewExtractionHandler(extraction services.ExtractionService, requirements services.RequirementsService) *ExtractionHandler {
	return &ExtractionHandler{extraction: extraction, requirements: requirements}
}

// POST /api/cases/:id/extract
func (h *ExtractionHandler) Extract(c *gin.Context) {
	caseID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	out, err := h.extraction.Enqueue(dbctx.Context{Ctx: c.Request.Context()}, caseID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondAccepted(c, out)
}

// GET /api/cases/:id/runs
func (h *ExtractionHandler) ListRuns(c *gin.Context) {
	caseID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	runs, err := h.extraction.ListRuns(dbctx.Context{Ctx: c.Request.Context()}, caseID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"runs": runs})
}

// GET /api/runs/:id
func (h *ExtractionHandler) GetRun(c *gin.Context) {
	runID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	run, err := h.extraction.GetRun(dbctx.Context{Ctx: c.Request.Context()}, runID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"run": run})
}

// GET /api/cases/:id/requirements?run_id=
func (h *ExtractionHandler) GetRequirements(c *gin.Context) {
	caseID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	runID, ok := queryUUID(c, "run_id")
	if !ok {
		return
	}
	view, err := h.requirements.Get(dbctx.Context{Ctx: c.Request.Context()}, caseID, runID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, view)
}

// PUT /api/cases/:id/requirements?run_id=
//
// The body is the full requirements document, or {"requirements": {...}}.
func (h *ExtractionHandler) PutRequirements(c *gin.Context) {
	caseID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	runID, ok := queryUUID(c, "run_id")
	if !ok {
		return
	}
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	doc, err := unwrapRequirements(raw)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}
	view, err := h.requirements.Put(dbctx.Context{Ctx: c.Request.Context()}, caseID, runID, doc)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, view)
}

func unwrapRequirements(raw []byte) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("requirements must be a JSON object: %w", err)
	}
	if inner, ok := obj["requirements"]; ok && len(obj) == 1 {
		return inner, nil
	}
	return json.RawMessage(raw), nil
}
