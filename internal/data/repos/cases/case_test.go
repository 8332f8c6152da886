package cases

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/quoteflow-backend/internal/data/repos/testutil"
	types "github.com/yungbote/quoteflow-backend/internal/domain"
	casedomain "github.com/yungbote/quoteflow-backend/internal/domain/cases"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
)

func TestCaseRepoLifecycle(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewCaseRepo(db, testutil.Logger(t))

	created, err := repo.Create(dbc, &types.Case{Title: "Welding cell"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Status != casedomain.StatusDraft {
		t.Fatalf("default status=%q", created.Status)
	}
	testutil.SeedCase(t, ctx, db, "Other")

	list, total, err := repo.List(dbc, "", 10, 0)
	if err != nil || total != 2 || len(list) != 2 {
		t.Fatalf("List: total=%d len=%d err=%v", total, len(list), err)
	}

	moved, err := repo.SetStatusUnless(dbc, created.ID, casedomain.StatusQuoted, []string{casedomain.StatusArchived})
	if err != nil || !moved {
		t.Fatalf("SetStatusUnless: moved=%v err=%v", moved, err)
	}
	if err := repo.UpdateFields(dbc, created.ID, map[string]interface{}{"status": casedomain.StatusArchived}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	moved, err = repo.SetStatusUnless(dbc, created.ID, casedomain.StatusReviewing, []string{casedomain.StatusArchived})
	if err != nil || moved {
		t.Fatalf("archived case must not move: moved=%v err=%v", moved, err)
	}

	got, err := repo.GetByID(dbc, created.ID)
	if err != nil || got == nil || got.Status != casedomain.StatusArchived {
		t.Fatalf("GetByID: %+v err=%v", got, err)
	}
	filtered, total, err := repo.List(dbc, casedomain.StatusArchived, 10, 0)
	if err != nil || total != 1 || filtered[0].ID != created.ID {
		t.Fatalf("List filtered: total=%d err=%v", total, err)
	}
}

func TestUploadRepoDedupAndTranscripts(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	uploads := NewUploadRepo(db, testutil.Logger(t))
	segments := NewSegmentRepo(db, testutil.Logger(t))

	c := testutil.SeedCase(t, ctx, db, "Case")
	up := testutil.SeedTranscriptUpload(t, ctx, db, c.ID, "line one\nline two\n")

	got, err := uploads.GetBySHA256(dbc, up.SHA256)
	if err != nil || got == nil || got.ID != up.ID {
		t.Fatalf("GetBySHA256: %v %v", got, err)
	}
	dup := *up
	dup.ID = uuid.Nil
	if _, err := uploads.Create(dbc, &dup); err == nil {
		t.Fatalf("expected unique violation on duplicate sha256")
	}

	pending, err := uploads.ListTranscriptsWithoutSegments(dbc, 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("ListTranscriptsWithoutSegments: len=%d err=%v", len(pending), err)
	}
	testutil.SeedSegments(t, ctx, db, c.ID, up.ID, "line one", "line two")
	pending, err = uploads.ListTranscriptsWithoutSegments(dbc, 10)
	if err != nil || len(pending) != 0 {
		t.Fatalf("after segmenting: len=%d err=%v", len(pending), err)
	}

	segs, err := segments.ListByUpload(dbc, up.ID)
	if err != nil || len(segs) != 2 || segs[1].Idx != 1 || segs[1].StartChar != 9 {
		t.Fatalf("ListByUpload: %+v err=%v", segs, err)
	}
	latest, err := uploads.LatestTranscript(dbc, c.ID)
	if err != nil || latest == nil || latest.ID != up.ID {
		t.Fatalf("LatestTranscript: %v %v", latest, err)
	}
}
