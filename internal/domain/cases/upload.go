package cases

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	UploadTranscript = "transcript"
	UploadPhoto      = "photo"
)

type Upload struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CaseID      uuid.UUID `gorm:"type:uuid;not null;index" json:"case_id"`
	Case        *Case     `gorm:"constraint:OnDelete:CASCADE;foreignKey:CaseID;references:ID" json:"-"`
	Type        string    `gorm:"column:type;not null;index" json:"type"`
	Filename    string    `gorm:"column:filename;not null" json:"filename"`
	ContentType string    `gorm:"column:content_type" json:"content_type,omitempty"`
	SizeBytes   int64     `gorm:"column:size_bytes" json:"size_bytes"`
	StorageKey  string    `gorm:"column:storage_key;not null" json:"storage_key"`
	SHA256      string    `gorm:"column:sha256;not null;uniqueIndex" json:"sha256"`
	// TextKind records how transcript text was obtained (text, docx, pdf).
	TextKind string `gorm:"column:text_kind" json:"text_kind,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (Upload) TableName() string { return "upload" }

func (u *Upload) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
