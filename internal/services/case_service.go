package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/quoteflow-backend/internal/data/repos"
	types "github.com/yungbote/quoteflow-backend/internal/domain"
	"github.com/yungbote/quoteflow-backend/internal/domain/cases"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
)

type CaseUpdate struct {
	Title    *string
	Industry *string
	Status   *string
}

type CaseService interface {
	Create(dbc dbctx.Context, title string, industry *string) (*types.Case, error)
	Get(dbc dbctx.Context, id uuid.UUID) (*types.Case, error)
	List(dbc dbctx.Context, status string, limit, offset int) ([]*types.Case, int64, error)
	Update(dbc dbctx.Context, id uuid.UUID, patch CaseUpdate) (*types.Case, error)
	// Advance moves a case to status unless it already sits in one of skip.
	Advance(dbc dbctx.Context, id uuid.UUID, status string, skip ...string) error
}

type caseService struct {
	log    *logger.Logger
	repo   repos.CaseRepo
	notify JobNotifier
}

func NewCaseService(baseLog *logger.Logger, repo repos.CaseRepo, notify JobNotifier) CaseService {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &caseService{
		log:    baseLog.With("service", "CaseService"),
		repo:   repo,
		notify: notify,
	}
}

func (s *caseService) Create(dbc dbctx.Context, title string, industry *string) (*types.Case, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	now := time.Now().UTC()
	c := &types.Case{
		ID:        uuid.New(),
		Title:     title,
		Industry:  trimOptional(industry),
		Status:    cases.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := s.repo.Create(dbc, c)
	if err != nil {
		return nil, fmt.Errorf("create case: %w", err)
	}
	s.log.Info("case created", "case_id", created.ID)
	return created, nil
}

func (s *caseService) Get(dbc dbctx.Context, id uuid.UUID) (*types.Case, error) {
	c, err := s.repo.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("case %s: %w", id, ErrNotFound)
	}
	return c, nil
}

func (s *caseService) List(dbc dbctx.Context, status string, limit, offset int) ([]*types.Case, int64, error) {
	status = strings.TrimSpace(status)
	if status != "" && !cases.ValidStatus(status) {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(dbc, status, limit, offset)
}

func (s *caseService) Update(dbc dbctx.Context, id uuid.UUID, patch CaseUpdate) (*types.Case, error) {
	if _, err := s.Get(dbc, id); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if patch.Title != nil {
		t := strings.TrimSpace(*patch.Title)
		if t == "" {
			return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
		}
		updates["title"] = t
	}
	if patch.Industry != nil {
		updates["industry"] = trimOptional(patch.Industry)
	}
	if patch.Status != nil {
		if !cases.ValidStatus(*patch.Status) {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *patch.Status)
		}
		updates["status"] = *patch.Status
	}
	if len(updates) > 0 {
		updates["updated_at"] = time.Now().UTC()
		if err := s.repo.UpdateFields(dbc, id, updates); err != nil {
			return nil, fmt.Errorf("update case: %w", err)
		}
	}
	c, err := s.Get(dbc, id)
	if err != nil {
		return nil, err
	}
	s.notify.CaseUpdated(c)
	return c, nil
}

func (s *caseService) Advance(dbc dbctx.Context, id uuid.UUID, status string, skip ...string) error {
	ok, err := s.repo.SetStatusUnless(dbc, id, status, skip)
	if err != nil {
		return fmt.Errorf("advance case to %s: %w", status, err)
	}
	if !ok {
		return nil
	}
	if c, err := s.repo.GetByID(dbc, id); err == nil && c != nil {
		s.notify.CaseUpdated(c)
	}
	return nil
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
