package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TypeSpec   = "spec"
	TypeReport = "report"
	TypeQuote  = "quote"

	FormatDOCX = "docx"
	FormatPDF  = "pdf"
)

var (
	Types   = []string{TypeSpec, TypeReport, TypeQuote}
	Formats = []string{FormatDOCX, FormatPDF}
)

func ValidType(t string) bool   { return t == TypeSpec || t == TypeReport || t == TypeQuote }
func ValidFormat(f string) bool { return f == FormatDOCX || f == FormatPDF }

// Document is one rendered artifact. Format records what was requested;
// the stored bytes are DOCX for both formats.
type Document struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CaseID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"case_id"`
	RunID       *uuid.UUID `gorm:"type:uuid;column:run_id;index" json:"run_id,omitempty"`
	BatchID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"batch_id"`
	DocType     string     `gorm:"column:doc_type;not null" json:"doc_type"`
	Format      string     `gorm:"column:format;not null" json:"format"`
	Filename    string     `gorm:"column:filename;not null" json:"filename"`
	ContentType string     `gorm:"column:content_type;not null" json:"content_type"`
	StorageKey  string     `gorm:"column:storage_key;not null" json:"-"`
	SizeBytes   int64      `gorm:"column:size_bytes" json:"size_bytes"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (Document) TableName() string { return "document" }

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
