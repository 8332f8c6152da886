package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/quoteflow-backend/internal/data/repos"
	types "github.com/yungbote/quoteflow-backend/internal/domain"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
	"github.com/yungbote/quoteflow-backend/internal/requirements"
)

type RequirementsView struct {
	RunID         uuid.UUID         `json:"run_id"`
	RunVersion    int               `json:"run_version"`
	Requirements  json.RawMessage   `json:"requirements"`
	Confidence    json.RawMessage   `json:"confidence"`
	Evidence      []*types.Evidence `json:"evidence"`
	Valid         bool              `json:"valid"`
	Edited        bool              `json:"edited"`
	MissingFields []string          `json:"missing_fields"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type RequirementsService interface {
	// Get returns the requirements of runID, or of the case's latest run
	// when runID is nil.
	Get(dbc dbctx.Context, caseID uuid.UUID, runID *uuid.UUID) (*RequirementsView, error)
	// Put replaces the requirements with a user edit. The document is
	// re-validated so missing-field questions survive the edit.
	Put(dbc dbctx.Context, caseID uuid.UUID, runID *uuid.UUID, doc json.RawMessage) (*RequirementsView, error)
	// Tree loads the parsed tree for document and plan generation.
	Tree(dbc dbctx.Context, caseID uuid.UUID, runID *uuid.UUID) (*types.ExtractionRun, requirements.Tree, error)
}

type requirementsService struct {
	log   *logger.Logger
	repos repos.Set
}

func NewRequirementsService(baseLog *logger.Logger, rs repos.Set) RequirementsService {
	return &requirementsService{
		log:   baseLog.With("service", "RequirementsService"),
		repos: rs,
	}
}

// resolveRun returns the explicit run, which must belong to caseID, or the
// latest version for the case.
func resolveRun(dbc dbctx.Context, rs repos.Set, caseID uuid.UUID, runID *uuid.UUID) (*types.ExtractionRun, error) {
	c, err := rs.Case.GetByID(dbc, caseID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("case %s: %w", caseID, ErrNotFound)
	}
	var run *types.ExtractionRun
	if runID != nil {
		run, err = rs.Run.GetByID(dbc, *runID)
	} else {
		run, err = rs.Run.Latest(dbc, caseID)
	}
	if err != nil {
		return nil, err
	}
	if run == nil || run.CaseID != caseID {
		return nil, fmt.Errorf("run for case %s: %w", caseID, ErrNotFound)
	}
	return run, nil
}

func (s *requirementsService) Get(dbc dbctx.Context, caseID uuid.UUID, runID *uuid.UUID) (*RequirementsView, error) {
	run, err := resolveRun(dbc, s.repos, caseID, runID)
	if err != nil {
		return nil, err
	}
	req, err := s.repos.Requirement.GetByRun(dbc, run.ID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("requirements for run %s: %w", run.ID, ErrNotFound)
	}
	return s.view(dbc, run, req)
}

func (s *requirementsService) view(dbc dbctx.Context, run *types.ExtractionRun, req *types.Requirement) (*RequirementsView, error) {
	ev, err := s.repos.Evidence.ListByRun(dbc, run.ID)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		ev = []*types.Evidence{}
	}
	tree, err := requirements.Parse(req.Data)
	if err != nil {
		return nil, fmt.Errorf("decode stored requirements: %w", err)
	}
	vr := requirements.Validate(tree)
	return &RequirementsView{
		RunID:         run.ID,
		RunVersion:    run.Version,
		Requirements:  jsonOrEmpty(req.Data),
		Confidence:    jsonOrEmpty(req.Confidence),
		Evidence:      ev,
		Valid:         vr.Valid,
		Edited:        req.Edited,
		MissingFields: vr.MissingFields,
		CreatedAt:     req.CreatedAt,
		UpdatedAt:     req.UpdatedAt,
	}, nil
}

func (s *requirementsService) Put(dbc dbctx.Context, caseID uuid.UUID, runID *uuid.UUID, doc json.RawMessage) (*RequirementsView, error) {
	tree, err := requirements.Parse(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: requirements must be a JSON object: %v", ErrInvalidInput, err)
	}
	run, err := resolveRun(dbc, s.repos, caseID, runID)
	if err != nil {
		return nil, err
	}
	vr := requirements.Validate(tree)
	tree.OpenQuestions = vr.OpenQuestions
	data, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("encode requirements: %w", err)
	}

	existing, err := s.repos.Requirement.GetByRun(dbc, run.ID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	req := &types.Requirement{
		ID:         uuid.New(),
		RunID:      run.ID,
		Data:       datatypes.JSON(data),
		Confidence: datatypes.JSON([]byte("{}")),
		Valid:      vr.Valid,
		Edited:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if existing != nil {
		req.ID = existing.ID
		req.CreatedAt = existing.CreatedAt
		if len(existing.Confidence) > 0 {
			req.Confidence = existing.Confidence
		}
	}
	if err := s.repos.Requirement.Upsert(dbc, req); err != nil {
		return nil, fmt.Errorf("save requirements: %w", err)
	}
	s.log.Info("requirements edited", "case_id", caseID, "run_id", run.ID, "valid", vr.Valid)
	return s.Get(dbc, caseID, &run.ID)
}

func (s *requirementsService) Tree(dbc dbctx.Context, caseID uuid.UUID, runID *uuid.UUID) (*types.ExtractionRun, requirements.Tree, error) {
	run, err := resolveRun(dbc, s.repos, caseID, runID)
	if err != nil {
		return nil, requirements.Tree{}, err
	}
	req, err := s.repos.Requirement.GetByRun(dbc, run.ID)
	if err != nil {
		return nil, requirements.Tree{}, err
	}
	if req == nil {
		return nil, requirements.Tree{}, fmt.Errorf("requirements for run %s: %w", run.ID, ErrNotFound)
	}
	tree, err := requirements.Parse(req.Data)
	if err != nil {
		return nil, requirements.Tree{}, fmt.Errorf("decode stored requirements: %w", err)
	}
	return run, tree, nil
}

func jsonOrEmpty(b datatypes.JSON) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage("{}")
	}
	return json.RawMessage(b)
}
