package quoting

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Plan is one priced equipment option for a case. ReservationKey is unique
// per (case, run, plan code) and is what makes plan creation persist-once.
type Plan struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CaseID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"case_id"`
	RunID          *uuid.UUID     `gorm:"type:uuid;column:run_id;index" json:"run_id,omitempty"`
	PlanCode       string         `gorm:"column:plan_code;not null" json:"plan_code"`
	Name           string         `gorm:"column:name;not null" json:"name"`
	Assumptions    datatypes.JSON `gorm:"column:assumptions" json:"assumptions"`
	ReservationKey string         `gorm:"column:reservation_key;not null;uniqueIndex" json:"-"`
	Items          []QuoteItem    `gorm:"foreignKey:PlanID;references:ID;constraint:OnDelete:CASCADE" json:"items,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Plan) TableName() string { return "plan" }

func (p *Plan) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ReservationKey builds the uniqueness key for a plan. A nil run maps to "none".
func ReservationKey(caseID uuid.UUID, runID *uuid.UUID, code string) string {
	run := "none"
	if runID != nil {
		run = runID.String()
	}
	return fmt.Sprintf("%s:%s:%s", caseID, run, code)
}

// QuoteItem is one priced line. SubtotalLow/High always equal Qty times the unit prices.
type QuoteItem struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PlanID        uuid.UUID `gorm:"type:uuid;not null;index" json:"plan_id"`
	Position      int       `gorm:"column:position;not null" json:"position"`
	ItemKey       string    `gorm:"column:item_key" json:"item_key,omitempty"`
	Category      string    `gorm:"column:category;not null" json:"category"`
	ItemName      string    `gorm:"column:item_name;not null" json:"item_name"`
	Spec          string    `gorm:"column:spec" json:"spec,omitempty"`
	Qty           float64   `gorm:"column:qty;not null;default:1" json:"qty"`
	Unit          string    `gorm:"column:unit;not null;default:'set'" json:"unit"`
	UnitPriceLow  float64   `gorm:"column:unit_price_low;not null" json:"unit_price_low"`
	UnitPriceHigh float64   `gorm:"column:unit_price_high;not null" json:"unit_price_high"`
	SubtotalLow   float64   `gorm:"column:subtotal_low;not null" json:"subtotal_low"`
	SubtotalHigh  float64   `gorm:"column:subtotal_high;not null" json:"subtotal_high"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (QuoteItem) TableName() string { return "quote_item" }

func (q *QuoteItem) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}
