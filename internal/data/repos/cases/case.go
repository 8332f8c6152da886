package cases

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/quoteflow-backend/internal/domain"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
)

type CaseRepo interface {
	Create(dbc dbctx.Context, c *types.Case) (*types.Case, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Case, error)
	List(dbc dbctx.Context, status string, limit, offset int) ([]*types.Case, int64, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// SetStatusUnless moves a case to status unless it currently holds one of skip.
	SetStatusUnless(dbc dbctx.Context, id uuid.UUID, status string, skip []string) (bool, error)
}

type caseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCaseRepo(db *gorm.DB, baseLog *logger.Logger) CaseRepo {
	return &caseRepo{db: db, log: baseLog.With("repo", "CaseRepo")}
}

func (r *caseRepo) Create(dbc dbctx.Context, c *types.Case) (*types.Case, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(dbc.Ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

func (r *caseRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Case, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var c types.Case
	if err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&c).Error; err != nil {
		return nil, err
	}
	if c.ID == uuid.Nil {
		return nil, nil
	}
	return &c, nil
}

func (r *caseRepo) List(dbc dbctx.Context, status string, limit, offset int) ([]*types.Case, int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	q := transaction.WithContext(dbc.Ctx).Model(&types.Case{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []*types.Case
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *caseRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(dbc.Ctx).Model(&types.Case{}).Where("id = ?", id).Updates(updates).Error
}

func (r *caseRepo) SetStatusUnless(dbc dbctx.Context, id uuid.UUID, status string, skip []string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).Model(&types.Case{}).Where("id = ?", id)
	if len(skip) > 0 {
		q = q.Where("status NOT IN ?", skip)
	}
	res := q.Updates(map[string]interface{}{"status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
