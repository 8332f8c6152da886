package pricing

import (
	"errors"
	"fmt"

	types "github.com/yungbote/quoteflow-backend/internal/domain"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
)

var ErrUnknownPlanCode = errors.New("unknown plan code")

const (
	PlanP1 = "P1"
	PlanP2 = "P2"
	PlanP3 = "P3"
)

// PlanCodes is the fixed generation order.
var PlanCodes = []string{PlanP1, PlanP2, PlanP3}

const (
	CategoryMain         = "主要設備"
	CategoryStation      = "工作站"
	CategoryEOAT         = "EOAT與治具"
	CategorySafety       = "安全設備"
	CategoryIntegration  = "整合工程"
	CategoryInstallation = "安裝與訓練"
)

type Assumptions struct {
	Robots      int    `json:"robots"`
	RobotType   string `json:"robot_type"`
	FlipStation bool   `json:"flip_station"`
	Vision      bool   `json:"vision"`
	Scheduler   bool   `json:"scheduler"`
}

type PlanSpec struct {
	Code        string      `json:"plan_code"`
	Name        string      `json:"name"`
	Assumptions Assumptions `json:"assumptions"`
}

var planSpecs = map[string]PlanSpec{
	PlanP1: {
		Code: PlanP1,
		Name: "方案一：雙機器人 + 翻轉站",
		Assumptions: Assumptions{
			Robots: 2, RobotType: "articulated_6dof", FlipStation: true,
		},
	},
	PlanP2: {
		Code: PlanP2,
		Name: "方案二：單機器人 + 翻轉站 + 排程系統",
		Assumptions: Assumptions{
			Robots: 1, RobotType: "articulated_6dof", FlipStation: true, Scheduler: true,
		},
	},
	PlanP3: {
		Code: PlanP3,
		Name: "方案三：龍門式 + 研磨機器人 + 視覺系統",
		Assumptions: Assumptions{
			Robots: 1, RobotType: "gantry", Vision: true,
		},
	},
}

// Engine prices plans from a catalog fixed at construction.
type Engine struct {
	catalog *Catalog
	log     *logger.Logger
}

func NewEngine(catalog *Catalog, baseLog *logger.Logger) *Engine {
	if catalog == nil {
		catalog = LoadCatalog("", baseLog)
	}
	return &Engine{catalog: catalog, log: baseLog.With("component", "PricingEngine")}
}

func (e *Engine) Catalog() *Catalog { return e.catalog }

// PlanSpec returns the fixed name and assumptions for code. The result does
// not depend on any extracted requirements.
func (e *Engine) PlanSpec(code string) (PlanSpec, error) {
	spec, ok := planSpecs[code]
	if !ok {
		return PlanSpec{}, fmt.Errorf("%w: %q", ErrUnknownPlanCode, code)
	}
	return spec, nil
}

// QuoteItems prices the plan for code.
func (e *Engine) QuoteItems(code string) ([]types.QuoteItem, error) {
	spec, err := e.PlanSpec(code)
	if err != nil {
		return nil, err
	}
	return e.ItemsFor(spec.Assumptions), nil
}

// ItemsFor builds quote lines in a fixed order: one line per robot, flip
// station, vision system, grippers (qty = robots), safety fence, integration,
// installation. Catalog entries that are missing produce no line.
func (e *Engine) ItemsFor(a Assumptions) []types.QuoteItem {
	// zero robots is a valid plan: no robot lines and an EOAT line of qty 0
	robots := max(a.Robots, 0)
	robotType := a.RobotType
	if robotType == "" {
		robotType = "articulated_6dof"
	}

	var items []types.QuoteItem
	add := func(key, category string, qty float64) {
		it, ok := e.catalog.Item(key)
		if !ok {
			e.log.Debug("catalog item missing; skipping line", "item_key", key)
			return
		}
		items = append(items, types.QuoteItem{
			Position:      len(items),
			ItemKey:       it.ItemKey,
			Category:      category,
			ItemName:      it.Name,
			Spec:          it.DefaultSpec,
			Qty:           qty,
			Unit:          it.Unit,
			UnitPriceLow:  it.Low,
			UnitPriceHigh: it.High,
			SubtotalLow:   qty * it.Low,
			SubtotalHigh:  qty * it.High,
		})
	}

	for i := 0; i < robots; i++ {
		add("robot_"+robotType, CategoryMain, 1)
	}
	if a.FlipStation {
		add("flip_station", CategoryStation, 1)
	}
	if a.Vision {
		add("vision_system", CategoryMain, 1)
	}
	add("eoat_gripper", CategoryEOAT, float64(robots))
	add("safety_fence", CategorySafety, 1)
	add("integration_engineering", CategoryIntegration, 1)
	add("installation_training", CategoryInstallation, 1)
	return items
}
