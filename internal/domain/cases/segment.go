package cases

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Segment is one non-blank transcript line. Offsets are rune positions into
// the original transcript text, end exclusive. Rows are written once per
// upload and never updated.
type Segment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CaseID    uuid.UUID `gorm:"type:uuid;not null;index" json:"case_id"`
	UploadID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_segment_upload_idx,priority:1" json:"upload_id"`
	Upload    *Upload   `gorm:"constraint:OnDelete:CASCADE;foreignKey:UploadID;references:ID" json:"-"`
	Idx       int       `gorm:"column:idx;not null;uniqueIndex:idx_segment_upload_idx,priority:2" json:"idx"`
	Speaker   *string   `gorm:"column:speaker" json:"speaker,omitempty"`
	Text      string    `gorm:"column:text;not null" json:"text"`
	StartChar int       `gorm:"column:start_char;not null" json:"start_char"`
	EndChar   int       `gorm:"column:end_char;not null" json:"end_char"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Segment) TableName() string { return "transcript_segment" }

func (s *Segment) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
