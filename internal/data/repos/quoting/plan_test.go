package quoting

import (
	"context"
	"testing"

	"gorm.io/datatypes"

	"github.com/yungbote/quoteflow-backend/internal/data/dberr"
	"github.com/yungbote/quoteflow-backend/internal/data/repos/testutil"
	types "github.com/yungbote/quoteflow-backend/internal/domain"
	"github.com/yungbote/quoteflow-backend/internal/domain/quoting"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
)

func TestPlanRepoReservationKeyIsUnique(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewPlanRepo(db, testutil.Logger(t))

	c := testutil.SeedCase(t, ctx, db, "Case")
	run := testutil.SeedRun(t, ctx, db, c.ID, 1, "completed")

	plan := &types.Plan{
		CaseID:         c.ID,
		RunID:          &run.ID,
		PlanCode:       "P1",
		Name:           "plan one",
		Assumptions:    datatypes.JSON(`{"robots":2}`),
		ReservationKey: quoting.ReservationKey(c.ID, &run.ID, "P1"),
		Items: []types.QuoteItem{
			{Position: 1, Category: "b", ItemName: "second", Qty: 1, Unit: "set", UnitPriceLow: 1, UnitPriceHigh: 2, SubtotalLow: 1, SubtotalHigh: 2},
			{Position: 0, Category: "a", ItemName: "first", Qty: 2, Unit: "set", UnitPriceLow: 3, UnitPriceHigh: 4, SubtotalLow: 6, SubtotalHigh: 8},
		},
	}
	if err := repo.Create(dbc, plan); err != nil {
		t.Fatalf("Create: %v", err)
	}

	dup := &types.Plan{
		CaseID:         c.ID,
		RunID:          &run.ID,
		PlanCode:       "P1",
		Name:           "plan one again",
		ReservationKey: quoting.ReservationKey(c.ID, &run.ID, "P1"),
	}
	err := repo.Create(dbc, dup)
	if !dberr.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}

	plans, err := repo.ListForRun(dbc, c.ID, &run.ID)
	if err != nil || len(plans) != 1 {
		t.Fatalf("ListForRun: len=%d err=%v", len(plans), err)
	}
	if len(plans[0].Items) != 2 || plans[0].Items[0].ItemName != "first" {
		t.Fatalf("items not ordered by position: %+v", plans[0].Items)
	}

	if err := repo.UpdateAssumptions(dbc, plan.ID, datatypes.JSON(`{"robots":3}`)); err != nil {
		t.Fatalf("UpdateAssumptions: %v", err)
	}
	got, err := repo.GetByID(dbc, plan.ID)
	if err != nil || string(got.Assumptions) != `{"robots":3}` {
		t.Fatalf("GetByID: %+v err=%v", got, err)
	}

	none, err := repo.ListForRun(dbc, c.ID, nil)
	if err != nil || len(none) != 0 {
		t.Fatalf("ListForRun(nil): len=%d err=%v", len(none), err)
	}
}
