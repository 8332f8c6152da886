package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/quoteflow-backend/internal/http/response"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
	"github.com/yungbote/quoteflow-backend/internal/services"
)

type DocumentHandler struct {
	log  *logger.Logger
	docs services.DocumentService
}

func NewDocumentHandler(log *logger.Logger, docs services.DocumentService) *DocumentHandler {
	return &DocumentHandler{log: log.With("handler", "DocumentHandler"), docs: docs}
}

type createDocumentsRequest struct {
	Types   []string   `json:"types"`
	Formats []string   `json:"formats"`
	RunID   *uuid.UUID `json:"run_id"`
}

// POST /api/cases/:id/documents
func (h *DocumentHandler) CreateDocuments(c *gin.Context) {
	caseID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req createDocumentsRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	batch, err := h.docs.Enqueue(dbctx.Context{Ctx: c.Request.Context()}, caseID, req.RunID, req.Types, req.Formats)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondAccepted(c, batch)
}

// GET /api/cases/:id/documents?run_id=
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	caseID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	runID, ok := queryUUID(c, "run_id")
	if !ok {
		return
	}
	rows, err := h.docs.List(dbctx.Context{Ctx: c.Request.Context()}, caseID, runID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"documents": rows})
}

// GET /api/documents/:id/download
func (h *DocumentHandler) Download(c *gin.Context) {
	docID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	doc, body, err := h.docs.Open(dbctx.Context{Ctx: c.Request.Context()}, docID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	defer body.Close()

	c.Header("Content-Type", doc.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	if doc.SizeBytes > 0 {
		c.Header("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
	}
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, body); err != nil {
		h.log.Warn("document download interrupted", "document_id", docID, "error", err)
	}
}

// GET /api/cases/:id/documents/preview?type=spec&run_id=
func (h *DocumentHandler) Preview(c *gin.Context) {
	caseID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	runID, ok := queryUUID(c, "run_id")
	if !ok {
		return
	}
	docType := c.DefaultQuery("type", "spec")
	html, err := h.docs.Preview(dbctx.Context{Ctx: c.Request.Context()}, caseID, runID, docType)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}
