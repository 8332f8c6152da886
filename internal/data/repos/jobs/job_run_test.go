package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/quoteflow-backend/internal/data/repos/testutil"
	types "github.com/yungbote/quoteflow-backend/internal/domain"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
)

func newJob(jobType, key, status string, created time.Time) *types.JobRun {
	return &types.JobRun{
		ID:             uuid.New(),
		JobType:        jobType,
		EntityType:     "case",
		EntityID:       ptrUUID(uuid.New()),
		IdempotencyKey: key,
		Status:         status,
		Stage:          status,
		Payload:        datatypes.JSON([]byte("{}")),
		Result:         datatypes.JSON([]byte("{}")),
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func TestJobRunRepoClaimOrder(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	queued := newJob("extraction", "k-queued", "queued", now.Add(-3*time.Hour))
	failed := newJob("extraction", "k-failed", "failed", now.Add(-2*time.Hour))
	failed.LastErrorAt = ptrTime(now.Add(-2 * time.Hour))
	staleRunning := newJob("extraction", "k-stale", "running", now.Add(-1*time.Hour))
	staleRunning.HeartbeatAt = ptrTime(now.Add(-10 * time.Hour))
	exhausted := newJob("extraction", "k-exhausted", "failed", now.Add(-4*time.Hour))
	exhausted.Attempts = 3
	exhausted.LastErrorAt = ptrTime(now.Add(-4 * time.Hour))

	created, err := repo.Create(dbc, []*types.JobRun{queued, failed, staleRunning, exhausted})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(created) != 4 {
		t.Fatalf("Create: expected 4, got %d", len(created))
	}

	if rows, err := repo.GetByIDs(dbc, []uuid.UUID{queued.ID, failed.ID, staleRunning.ID}); err != nil || len(rows) != 3 {
		t.Fatalf("GetByIDs: err=%v len=%d", err, len(rows))
	}

	want := []uuid.UUID{queued.ID, failed.ID, staleRunning.ID}
	for i, id := range want {
		claim, err := repo.ClaimNextRunnable(dbc, 3, time.Hour, time.Hour)
		if err != nil {
			t.Fatalf("ClaimNextRunnable #%d: %v", i+1, err)
		}
		if claim == nil || claim.ID != id {
			t.Fatalf("ClaimNextRunnable #%d: expected %v got %v", i+1, id, claim)
		}
		if claim.Status != "running" {
			t.Fatalf("ClaimNextRunnable #%d: status=%q", i+1, claim.Status)
		}
	}
	claim, err := repo.ClaimNextRunnable(dbc, 3, time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("ClaimNextRunnable final: %v", err)
	}
	if claim != nil {
		t.Fatalf("ClaimNextRunnable final: expected nil, got %v", claim.ID)
	}

	got, err := repo.GetByID(dbc, queued.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Attempts != 1 || got.Status != "running" {
		t.Fatalf("claimed row not updated: attempts=%d status=%q", got.Attempts, got.Status)
	}
}

func TestJobRunRepoCreateOrGetIsIdempotent(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	first, created, err := repo.CreateOrGet(dbc, newJob("extraction", "extract:a:b", "queued", time.Now().UTC()))
	if err != nil || !created {
		t.Fatalf("first CreateOrGet: created=%v err=%v", created, err)
	}
	second, created, err := repo.CreateOrGet(dbc, newJob("extraction", "extract:a:b", "queued", time.Now().UTC()))
	if err != nil {
		t.Fatalf("second CreateOrGet: %v", err)
	}
	if created {
		t.Fatalf("second CreateOrGet should not create")
	}
	if second.ID != first.ID {
		t.Fatalf("expected existing job %v, got %v", first.ID, second.ID)
	}
	if _, _, err := repo.CreateOrGet(dbc, newJob("extraction", "", "queued", time.Now().UTC())); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestJobRunRepoStatusGuards(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	job := newJob("documents", "documents:x:y", "queued", now)
	if _, err := repo.Create(dbc, []*types.JobRun{job}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	has, err := repo.HasRunnableForEntity(dbc, "case", *job.EntityID, "documents")
	if err != nil || !has {
		t.Fatalf("HasRunnableForEntity: has=%v err=%v", has, err)
	}

	if err := repo.UpdateFields(dbc, job.ID, map[string]interface{}{"status": "canceled", "stage": "canceled"}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	ok, err := repo.UpdateFieldsUnlessStatus(dbc, job.ID, []string{"canceled"}, map[string]interface{}{"progress": 50})
	if err != nil {
		t.Fatalf("UpdateFieldsUnlessStatus: %v", err)
	}
	if ok {
		t.Fatalf("update should be blocked on canceled job")
	}

	latest, err := repo.GetLatestByEntity(dbc, "case", *job.EntityID, "documents")
	if err != nil || latest == nil || latest.ID != job.ID {
		t.Fatalf("GetLatestByEntity: %v %v", latest, err)
	}
	if err := repo.Heartbeat(dbc, job.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

func ptrUUID(u uuid.UUID) *uuid.UUID { return &u }
