package cases

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/quoteflow-backend/internal/domain"
	casedomain "github.com/yungbote/quoteflow-backend/internal/domain/cases"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
)

type UploadRepo interface {
	Create(dbc dbctx.Context, u *types.Upload) (*types.Upload, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Upload, error)
	GetBySHA256(dbc dbctx.Context, sum string) (*types.Upload, error)
	ListByCase(dbc dbctx.Context, caseID uuid.UUID) ([]*types.Upload, error)
	LatestTranscript(dbc dbctx.Context, caseID uuid.UUID) (*types.Upload, error)
	ListTranscriptsWithoutSegments(dbc dbctx.Context, limit int) ([]*types.Upload, error)
}

type uploadRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUploadRepo(db *gorm.DB, baseLog *logger.Logger) UploadRepo {
	return &uploadRepo{db: db, log: baseLog.With("repo", "UploadRepo")}
}

func (r *uploadRepo) Create(dbc dbctx.Context, u *types.Upload) (*types.Upload, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(dbc.Ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

func (r *uploadRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Upload, error) {
	return r.first(dbc, "id = ?", id)
}

func (r *uploadRepo) GetBySHA256(dbc dbctx.Context, sum string) (*types.Upload, error) {
	if sum == "" {
		return nil, nil
	}
	return r.first(dbc, "sha256 = ?", sum)
}

func (r *uploadRepo) first(dbc dbctx.Context, where string, args ...interface{}) (*types.Upload, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var u types.Upload
	if err := transaction.WithContext(dbc.Ctx).Where(where, args...).Limit(1).Find(&u).Error; err != nil {
		return nil, err
	}
	if u.ID == uuid.Nil {
		return nil, nil
	}
	return &u, nil
}

func (r *uploadRepo) ListByCase(dbc dbctx.Context, caseID uuid.UUID) ([]*types.Upload, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Upload
	if err := transaction.WithContext(dbc.Ctx).
		Where("case_id = ?", caseID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *uploadRepo) LatestTranscript(dbc dbctx.Context, caseID uuid.UUID) (*types.Upload, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var u types.Upload
	if err := transaction.WithContext(dbc.Ctx).
		Where("case_id = ? AND type = ?", caseID, casedomain.UploadTranscript).
		Order("created_at DESC").
		Limit(1).
		Find(&u).Error; err != nil {
		return nil, err
	}
	if u.ID == uuid.Nil {
		return nil, nil
	}
	return &u, nil
}

func (r *uploadRepo) ListTranscriptsWithoutSegments(dbc dbctx.Context, limit int) ([]*types.Upload, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*types.Upload
	err := transaction.WithContext(dbc.Ctx).
		Where("type = ?", casedomain.UploadTranscript).
		Where("NOT EXISTS (SELECT 1 FROM transcript_segment s WHERE s.upload_id = upload.id)").
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
