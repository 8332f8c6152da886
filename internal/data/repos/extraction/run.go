package extraction

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/quoteflow-backend/internal/data/dberr"
	types "github.com/yungbote/quoteflow-backend/internal/domain"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
)

type RunRepo interface {
	// CreateNextVersion inserts run with version = max(version)+1 for its case.
	CreateNextVersion(dbc dbctx.Context, run *types.ExtractionRun) (*types.ExtractionRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ExtractionRun, error)
	Latest(dbc dbctx.Context, caseID uuid.UUID) (*types.ExtractionRun, error)
	ListByCase(dbc dbctx.Context, caseID uuid.UUID) ([]*types.ExtractionRun, error)
	// Transition applies updates only while the run is in one of from. It
	// reports whether the row moved.
	Transition(dbc dbctx.Context, id uuid.UUID, from []string, to string, updates map[string]interface{}) (bool, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type runRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRunRepo(db *gorm.DB, baseLog *logger.Logger) RunRepo {
	return &runRepo{db: db, log: baseLog.With("repo", "ExtractionRunRepo")}
}

const versionRetries = 3

func (r *runRepo) CreateNextVersion(dbc dbctx.Context, run *types.ExtractionRun) (*types.ExtractionRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var err error
	for attempt := 0; attempt < versionRetries; attempt++ {
		err = transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
			var maxVersion int
			if err := txx.Model(&types.ExtractionRun{}).
				Where("case_id = ?", run.CaseID).
				Select("COALESCE(MAX(version), 0)").
				Scan(&maxVersion).Error; err != nil {
				return err
			}
			run.Version = maxVersion + 1
			return txx.Create(run).Error
		})
		if err == nil {
			return run, nil
		}
		if !dberr.IsUniqueViolation(err) {
			return nil, err
		}
		r.log.Debug("run version collided; retrying", "case_id", run.CaseID, "version", run.Version)
		run.ID = uuid.Nil
	}
	return nil, err
}

func (r *runRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ExtractionRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var run types.ExtractionRun
	if err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&run).Error; err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *runRepo) Latest(dbc dbctx.Context, caseID uuid.UUID) (*types.ExtractionRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var run types.ExtractionRun
	if err := transaction.WithContext(dbc.Ctx).
		Where("case_id = ?", caseID).
		Order("version DESC").
		Limit(1).
		Find(&run).Error; err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *runRepo) ListByCase(dbc dbctx.Context, caseID uuid.UUID) ([]*types.ExtractionRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ExtractionRun
	if err := transaction.WithContext(dbc.Ctx).
		Where("case_id = ?", caseID).
		Order("version DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *runRepo) Transition(dbc dbctx.Context, id uuid.UUID, from []string, to string, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.ExtractionRun{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *runRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(dbc.Ctx).Model(&types.ExtractionRun{}).Where("id = ?", id).Updates(updates).Error
}
