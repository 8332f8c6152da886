package cases

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/quoteflow-backend/internal/domain"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
)

// SegmentRepo only inserts and reads; segments are immutable.
type SegmentRepo interface {
	CreateBatch(dbc dbctx.Context, segments []*types.Segment) error
	ListByUpload(dbc dbctx.Context, uploadID uuid.UUID) ([]*types.Segment, error)
	CountByUpload(dbc dbctx.Context, uploadID uuid.UUID) (int64, error)
}

type segmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSegmentRepo(db *gorm.DB, baseLog *logger.Logger) SegmentRepo {
	return &segmentRepo{db: db, log: baseLog.With("repo", "SegmentRepo")}
}

func (r *segmentRepo) CreateBatch(dbc dbctx.Context, segments []*types.Segment) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(segments) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).CreateInBatches(segments, 200).Error
}

func (r *segmentRepo) ListByUpload(dbc dbctx.Context, uploadID uuid.UUID) ([]*types.Segment, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Segment
	if err := transaction.WithContext(dbc.Ctx).
		Where("upload_id = ?", uploadID).
		Order("idx ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *segmentRepo) CountByUpload(dbc dbctx.Context, uploadID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(dbc.Ctx).Model(&types.Segment{}).Where("upload_id = ?", uploadID).Count(&n).Error
	return n, err
}
