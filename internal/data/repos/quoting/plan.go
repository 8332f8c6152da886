package quoting

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/quoteflow-backend/internal/domain"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
)

type PlanRepo interface {
	// Create inserts the plan and its Items in one statement group.
	Create(dbc dbctx.Context, plan *types.Plan) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Plan, error)
	// ListForRun returns the plans of a case for runID (nil matches plans
	// with no run), ordered by plan code, items ordered by position.
	ListForRun(dbc dbctx.Context, caseID uuid.UUID, runID *uuid.UUID) ([]*types.Plan, error)
	UpdateAssumptions(dbc dbctx.Context, id uuid.UUID, assumptions datatypes.JSON) error
}

type planRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPlanRepo(db *gorm.DB, baseLog *logger.Logger) PlanRepo {
	return &planRepo{db: db, log: baseLog.With("repo", "PlanRepo")}
}

func (r *planRepo) Create(dbc dbctx.Context, plan *types.Plan) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(plan).Error
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (r *planRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Plan, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var plan types.Plan
	if err := transaction.WithContext(dbc.Ctx).
		Preload("Items", orderedItems).
		Where("id = ?", id).
		Limit(1).
		Find(&plan).Error; err != nil {
		return nil, err
	}
	if plan.ID == uuid.Nil {
		return nil, nil
	}
	return &plan, nil
}

func (r *planRepo) ListForRun(dbc dbctx.Context, caseID uuid.UUID, runID *uuid.UUID) ([]*types.Plan, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).
		Preload("Items", orderedItems).
		Where("case_id = ?", caseID)
	if runID == nil {
		q = q.Where("run_id IS NULL")
	} else {
		q = q.Where("run_id = ?", *runID)
	}
	var out []*types.Plan
	if err := q.Order("plan_code ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *planRepo) UpdateAssumptions(dbc dbctx.Context, id uuid.UUID, assumptions datatypes.JSON) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.Plan{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"assumptions": assumptions, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
