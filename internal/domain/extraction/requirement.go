package extraction

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Requirement holds the structured requirements tree produced by one run.
type Requirement struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RunID      uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"run_id"`
	Run        *Run           `gorm:"constraint:OnDelete:CASCADE;foreignKey:RunID;references:ID" json:"-"`
	Data       datatypes.JSON `gorm:"column:data" json:"data"`
	Confidence datatypes.JSON `gorm:"column:confidence" json:"confidence"`
	Valid      bool           `gorm:"column:valid;not null;default:false" json:"valid"`
	Edited     bool           `gorm:"column:edited;not null;default:false" json:"edited"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Requirement) TableName() string { return "extracted_requirement" }

func (r *Requirement) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Evidence links one requirement field to the transcript text that supports it.
type Evidence struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RunID      uuid.UUID `gorm:"type:uuid;not null;index" json:"run_id"`
	Run        *Run      `gorm:"constraint:OnDelete:CASCADE;foreignKey:RunID;references:ID" json:"-"`
	Position   int       `gorm:"column:position;not null;default:0" json:"-"`
	FieldPath  string    `gorm:"column:field_path;not null;index" json:"field_path"`
	SegmentIdx *int      `gorm:"column:segment_idx" json:"segment_idx"`
	Snippet    string    `gorm:"column:snippet;not null" json:"snippet"`
	StartChar  *int      `gorm:"column:start_char" json:"start_char,omitempty"`
	EndChar    *int      `gorm:"column:end_char" json:"end_char,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Evidence) TableName() string { return "evidence" }

func (e *Evidence) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
