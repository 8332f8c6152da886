package extraction

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// IsTerminal reports whether a run can no longer change status.
func IsTerminal(status string) bool {
	return status == RunCompleted || status == RunFailed
}

// Run is one extraction attempt against a case's transcript.
type Run struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CaseID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_extraction_run_case_version,priority:1" json:"case_id"`
	Version    int        `gorm:"column:version;not null;uniqueIndex:idx_extraction_run_case_version,priority:2" json:"version"`
	UploadID   *uuid.UUID `gorm:"type:uuid;column:upload_id;index" json:"upload_id,omitempty"`
	Model      string     `gorm:"column:model" json:"model,omitempty"`
	PromptHash string     `gorm:"column:prompt_hash" json:"prompt_hash,omitempty"`
	Status     string     `gorm:"column:status;not null;index" json:"status"`
	Error      string     `gorm:"column:error" json:"error,omitempty"`
	JobID      *uuid.UUID `gorm:"type:uuid;column:job_id" json:"job_id,omitempty"`

	CreatedAt  time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null" json:"updated_at"`
	StartedAt  *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
}

func (Run) TableName() string { return "extraction_run" }

func (r *Run) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = RunPending
	}
	return nil
}
