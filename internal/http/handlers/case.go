package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/quoteflow-backend/internal/http/response"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/services"
)

type CaseHandler struct {
	cases services.CaseService
}

func NewCaseHandler(cases services.CaseService) *CaseHandler {
	return &CaseHandler{cases: cases}
}

type createCaseRequest struct {
	Title    string  `json:"title"`
	Industry *string `json:"industry"`
}

// POST /api/cases
func (h *CaseHandler) CreateCase(c *gin.Context) {
	var req createCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	created, err := h.cases.Create(dbctx.Context{Ctx: c.Request.Context()}, req.Title, req.Industry)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"case": created})
}

// GET /api/cases?status=&limit=&offset=
func (h *CaseHandler) ListCases(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)
	rows, total, err := h.cases.List(dbctx.Context{Ctx: c.Request.Context()}, c.Query("status"), limit, offset)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"cases": rows, "total": total})
}

// GET /api/cases/:id
func (h *CaseHandler) GetCase(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	found, err := h.cases.Get(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"case": found})
}

type updateCaseRequest struct {
	Title    *string `json:"title"`
	Industry *string `json:"industry"`
	Status   *string `json:"status"`
}

// PATCH /api/cases/:id
func (h *CaseHandler) UpdateCase(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req updateCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	updated, err := h.cases.Update(dbctx.Context{Ctx: c.Request.Context()}, id, services.CaseUpdate{
		Title:    req.Title,
		Industry: req.Industry,
		Status:   req.Status,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"case": updated})
}
