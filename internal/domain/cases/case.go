package cases

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StatusDraft      = "draft"
	StatusExtracting = "extracting"
	StatusReviewing  = "reviewing"
	StatusQuoted     = "quoted"
	StatusArchived   = "archived"
)

var validStatuses = map[string]bool{
	StatusDraft:      true,
	StatusExtracting: true,
	StatusReviewing:  true,
	StatusQuoted:     true,
	StatusArchived:   true,
}

func ValidStatus(s string) bool { return validStatuses[s] }

// Case is one sales engagement: a customer interview and everything derived from it.
type Case struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title    string    `gorm:"column:title;not null" json:"title"`
	Industry *string   `gorm:"column:industry" json:"industry,omitempty"`
	Status   string    `gorm:"column:status;not null;index" json:"status"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Case) TableName() string { return "case_record" }

func (c *Case) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = StatusDraft
	}
	return nil
}
