package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/quoteflow-backend/internal/data/dberr"
	"github.com/yungbote/quoteflow-backend/internal/data/repos"
	types "github.com/yungbote/quoteflow-backend/internal/domain"
	"github.com/yungbote/quoteflow-backend/internal/domain/cases"
	"github.com/yungbote/quoteflow-backend/internal/domain/quoting"
	"github.com/yungbote/quoteflow-backend/internal/observability"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
	"github.com/yungbote/quoteflow-backend/internal/platform/redisx"
	"github.com/yungbote/quoteflow-backend/internal/pricing"
)

// PlanView is a plan with its items and computed totals.
type PlanView struct {
	*types.Plan
	Totals pricing.Totals `json:"totals"`
}

type PlanService interface {
	// GeneratePlans creates P1, P2 and P3 for the run (explicit or latest)
	// exactly once. Later calls return the stored plans with created=false.
	GeneratePlans(dbc dbctx.Context, caseID uuid.UUID, runID *uuid.UUID) ([]*PlanView, bool, error)
	ListPlans(dbc dbctx.Context, caseID uuid.UUID, runID *uuid.UUID) ([]*PlanView, error)
	// UpdatePlan replaces the stored assumptions. Items are not re-priced.
	UpdatePlan(dbc dbctx.Context, planID uuid.UUID, assumptions json.RawMessage) (*PlanView, error)
	Totals(items []types.QuoteItem) pricing.Totals
}

type PlanServiceConfig struct {
	ContingencyPercent float64
	TaxPercent         float64
	ReservationTTL     time.Duration
}

type planService struct {
	db       *gorm.DB
	log      *logger.Logger
	repos    repos.Set
	engine   *pricing.Engine
	reserver redisx.Reserver
	cases    CaseService
	notify   JobNotifier
	cfg      PlanServiceConfig
	group    singleflight.Group
}

func NewPlanService(
	db *gorm.DB,
	baseLog *logger.Logger,
	rs repos.Set,
	engine *pricing.Engine,
	reserver redisx.Reserver,
	caseSvc CaseService,
	notify JobNotifier,
	cfg PlanServiceConfig,
) PlanService {
	if reserver == nil {
		reserver = redisx.NoopReserver{}
	}
	if notify == nil {
		notify = NopNotifier{}
	}
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = time.Minute
	}
	return &planService{
		db:       db,
		log:      baseLog.With("service", "PlanService"),
		repos:    rs,
		engine:   engine,
		reserver: reserver,
		cases:    caseSvc,
		notify:   notify,
		cfg:      cfg,
	}
}

type generated struct {
	plans   []*types.Plan
	created bool
}

func (s *planService) GeneratePlans(dbc dbctx.Context, caseID uuid.UUID, runID *uuid.UUID) ([]*PlanView, bool, error) {
	run, err := resolveRun(dbc, s.repos, caseID, runID)
	if err != nil {
		return nil, false, err
	}
	req, err := s.repos.Requirement.GetByRun(dbc, run.ID)
	if err != nil {
		return nil, false, err
	}
	if req == nil {
		return nil, false, fmt.Errorf("requirements for run %s: %w", run.ID, ErrNotFound)
	}

	key := fmt.Sprintf("plans:%s:%s", caseID, run.ID)
	// fn runs on the leader's goroutine only; callers that joined the flight
	// share its plans but did not create them.
	led := false
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		led = true
		return s.generate(dbc, caseID, run.ID, key)
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(*generated)
	return s.views(res.plans), res.created && led, nil
}

func (s *planService) generate(dbc dbctx.Context, caseID, runID uuid.UUID, key string) (*generated, error) {
	existing, err := s.repos.Plan.ListForRun(dbc, caseID, &runID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		observability.Current().IncPlanGeneration("existing")
		return &generated{plans: existing}, nil
	}

	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	reserved, err := s.reserver.Reserve(ctx, key, s.cfg.ReservationTTL)
	if err != nil {
		s.log.Warn("plan reservation unavailable; relying on unique key", "key", key, "error", err)
		reserved = true
	}
	if reserved {
		defer func() {
			if err := s.reserver.Release(context.Background(), key); err != nil {
				s.log.Warn("plan reservation release failed", "key", key, "error", err)
			}
		}()
	} else if plans := s.waitForPlans(ctx, caseID, runID); len(plans) > 0 {
		observability.Current().IncPlanGeneration("existing")
		return &generated{plans: plans}, nil
	}

	plans, err := s.buildPlans(caseID, runID)
	if err != nil {
		return nil, err
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	err = transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: txx}
		for _, p := range plans {
			if err := s.repos.Plan.Create(inner, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if !dberr.IsUniqueViolation(err) {
			return nil, fmt.Errorf("create plans: %w", err)
		}
		winners, lerr := s.repos.Plan.ListForRun(dbctx.Context{Ctx: ctx}, caseID, &runID)
		if lerr != nil {
			return nil, lerr
		}
		s.log.Info("plan generation lost race; returning stored plans", "case_id", caseID, "run_id", runID)
		observability.Current().IncPlanGeneration("conflict")
		return &generated{plans: winners}, nil
	}

	stored, err := s.repos.Plan.ListForRun(dbctx.Context{Ctx: ctx}, caseID, &runID)
	if err != nil {
		return nil, err
	}
	observability.Current().IncPlanGeneration("created")
	if err := s.cases.Advance(dbctx.Context{Ctx: ctx}, caseID, cases.StatusQuoted, cases.StatusArchived); err != nil {
		s.log.Warn("case status not advanced", "case_id", caseID, "error", err)
	}
	s.notify.PlansCreated(caseID, stored)
	s.log.Info("plans generated", "case_id", caseID, "run_id", runID, "plans", len(stored))
	return &generated{plans: stored, created: true}, nil
}

// waitForPlans polls while another process holds the reservation.
func (s *planService) waitForPlans(ctx context.Context, caseID, runID uuid.UUID) []*types.Plan {
	deadline := time.Now().Add(s.cfg.ReservationTTL)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		plans, err := s.repos.Plan.ListForRun(dbctx.Context{Ctx: ctx}, caseID, &runID)
		if err == nil && len(plans) > 0 {
			return plans
		}
	}
	return nil
}

func (s *planService) buildPlans(caseID, runID uuid.UUID) ([]*types.Plan, error) {
	now := time.Now().UTC()
	out := make([]*types.Plan, 0, len(pricing.PlanCodes))
	for _, code := range pricing.PlanCodes {
		spec, err := s.engine.PlanSpec(code)
		if err != nil {
			return nil, err
		}
		items, err := s.engine.QuoteItems(code)
		if err != nil {
			return nil, err
		}
		assumptions, err := json.Marshal(spec.Assumptions)
		if err != nil {
			return nil, fmt.Errorf("encode assumptions: %w", err)
		}
		rid := runID
		for i := range items {
			items[i].CreatedAt = now
		}
		out = append(out, &types.Plan{
			ID:             uuid.New(),
			CaseID:         caseID,
			RunID:          &rid,
			PlanCode:       spec.Code,
			Name:           spec.Name,
			Assumptions:    datatypes.JSON(assumptions),
			ReservationKey: quoting.ReservationKey(caseID, &rid, spec.Code),
			Items:          items,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	return out, nil
}

func (s *planService) ListPlans(dbc dbctx.Context, caseID uuid.UUID, runID *uuid.UUID) ([]*PlanView, error) {
	run, err := resolveRun(dbc, s.repos, caseID, runID)
	if err != nil {
		return nil, err
	}
	plans, err := s.repos.Plan.ListForRun(dbc, caseID, &run.ID)
	if err != nil {
		return nil, err
	}
	return s.views(plans), nil
}

func (s *planService) UpdatePlan(dbc dbctx.Context, planID uuid.UUID, assumptions json.RawMessage) (*PlanView, error) {
	var obj map[string]any
	if err := json.Unmarshal(assumptions, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("%w: assumptions must be a JSON object", ErrInvalidInput)
	}
	plan, err := s.repos.Plan.GetByID(dbc, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, fmt.Errorf("plan %s: %w", planID, ErrNotFound)
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode assumptions: %w", err)
	}
	if err := s.repos.Plan.UpdateAssumptions(dbc, planID, datatypes.JSON(b)); err != nil {
		return nil, fmt.Errorf("update plan: %w", err)
	}
	plan, err = s.repos.Plan.GetByID(dbc, planID)
	if err != nil {
		return nil, err
	}
	return s.view(plan), nil
}

func (s *planService) Totals(items []types.QuoteItem) pricing.Totals {
	return pricing.ComputeTotals(items, s.cfg.ContingencyPercent, s.cfg.TaxPercent)
}

func (s *planService) view(p *types.Plan) *PlanView {
	return &PlanView{Plan: p, Totals: s.Totals(p.Items)}
}

func (s *planService) views(plans []*types.Plan) []*PlanView {
	out := make([]*PlanView, 0, len(plans))
	for _, p := range plans {
		out = append(out, s.view(p))
	}
	return out
}
