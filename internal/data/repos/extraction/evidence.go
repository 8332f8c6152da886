package extraction

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/quoteflow-backend/internal/domain"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
)

type EvidenceRepo interface {
	// ReplaceForRun swaps the run's evidence set, so a redelivered job
	// leaves exactly one copy.
	ReplaceForRun(dbc dbctx.Context, runID uuid.UUID, rows []*types.Evidence) error
	ListByRun(dbc dbctx.Context, runID uuid.UUID) ([]*types.Evidence, error)
}

type evidenceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEvidenceRepo(db *gorm.DB, baseLog *logger.Logger) EvidenceRepo {
	return &evidenceRepo{db: db, log: baseLog.With("repo", "EvidenceRepo")}
}

func (r *evidenceRepo) ReplaceForRun(dbc dbctx.Context, runID uuid.UUID, rows []*types.Evidence) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("run_id = ?", runID).Delete(&types.Evidence{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		for i, row := range rows {
			row.RunID = runID
			row.Position = i
		}
		return txx.CreateInBatches(rows, 200).Error
	})
}

func (r *evidenceRepo) ListByRun(dbc dbctx.Context, runID uuid.UUID) ([]*types.Evidence, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Evidence
	if err := transaction.WithContext(dbc.Ctx).
		Where("run_id = ?", runID).
		Order("position ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
