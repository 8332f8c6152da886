package extraction

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/quoteflow-backend/internal/domain"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
)

type RequirementRepo interface {
	// Upsert writes the requirement for its run, replacing data on conflict.
	Upsert(dbc dbctx.Context, req *types.Requirement) error
	GetByRun(dbc dbctx.Context, runID uuid.UUID) (*types.Requirement, error)
}

type requirementRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRequirementRepo(db *gorm.DB, baseLog *logger.Logger) RequirementRepo {
	return &requirementRepo{db: db, log: baseLog.With("repo", "RequirementRepo")}
}

func (r *requirementRepo) Upsert(dbc dbctx.Context, req *types.Requirement) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	req.UpdatedAt = time.Now().UTC()
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "confidence", "valid", "edited", "updated_at"}),
		}).
		Create(req).Error
}

func (r *requirementRepo) GetByRun(dbc dbctx.Context, runID uuid.UUID) (*types.Requirement, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var req types.Requirement
	if err := transaction.WithContext(dbc.Ctx).Where("run_id = ?", runID).Limit(1).Find(&req).Error; err != nil {
		return nil, err
	}
	if req.ID == uuid.Nil {
		return nil, nil
	}
	return &req, nil
}
