package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/quoteflow-backend/internal/http/response"
	"github.com/yungbote/quoteflow-backend/internal/platform/apierr"
	"github.com/yungbote/quoteflow-backend/internal/pricing"
	"github.com/yungbote/quoteflow-backend/internal/services"
)

// toAPIError maps service sentinels onto HTTP statuses and codes.
func toAPIError(err error) *apierr.Error {
	var ae *apierr.Error
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, services.ErrNotFound):
		return apierr.NotFound("not_found", err)
	case errors.Is(err, services.ErrNoTranscript):
		return apierr.Conflict("no_transcript", err)
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, pricing.ErrUnknownPlanCode):
		return apierr.BadRequest("invalid_input", err)
	case errors.Is(err, services.ErrTooLarge):
		return apierr.New(http.StatusRequestEntityTooLarge, "too_large", err)
	default:
		return apierr.Internal("internal", err)
	}
}

func respondServiceError(c *gin.Context, err error) {
	ae := toAPIError(err)
	if ae.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	response.RespondAPIError(c, ae)
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil || id == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_"+name, fmt.Errorf("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

// queryUUID reads an optional UUID query parameter. An empty value yields nil.
func queryUUID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_"+name, fmt.Errorf("invalid %s", name))
		return nil, false
	}
	return &id, true
}

func queryInt(c *gin.Context, name string, def int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
