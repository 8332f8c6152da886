package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/quoteflow-backend/internal/domain"
	jobstatus "github.com/yungbote/quoteflow-backend/internal/domain/jobs"
	jobrt "github.com/yungbote/quoteflow-backend/internal/jobs/runtime"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
	"github.com/yungbote/quoteflow-backend/internal/services"
)

type fakeExtraction struct {
	services.ExtractionService
	gotRun uuid.UUID
	err    error
}

func (f *fakeExtraction) Execute(dbc dbctx.Context, runID uuid.UUID, progress services.ProgressFunc) (*services.ExtractionSummary, error) {
	f.gotRun = runID
	progress("extract", 30, "Extracting requirements")
	if f.err != nil {
		return nil, f.err
	}
	return &services.ExtractionSummary{RunID: runID, Status: "completed", Valid: true}, nil
}

func newJobContext(payload string) *jobrt.Context {
	job := &types.JobRun{ID: uuid.New(), JobType: services.JobTypeExtraction, Status: jobstatus.StatusRunning, Payload: datatypes.JSON([]byte(payload))}
	return jobrt.NewContext(context.Background(), nil, job, nil, services.NopNotifier{})
}

func TestRunSucceeds(t *testing.T) {
	runID := uuid.New()
	fake := &fakeExtraction{}
	jc := newJobContext(`{"run_id":"` + runID.String() + `"}`)
	if err := New(logger.Nop(), fake).Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fake.gotRun != runID {
		t.Fatalf("run id not passed through")
	}
	if jc.Job.Status != jobstatus.StatusSucceeded || jc.Job.Progress != 100 {
		t.Fatalf("status=%q progress=%d", jc.Job.Status, jc.Job.Progress)
	}
}

func TestRunFailures(t *testing.T) {
	jc := newJobContext(`{}`)
	if err := New(logger.Nop(), &fakeExtraction{}).Run(jc); err == nil {
		t.Fatalf("expected error for missing run_id")
	}
	if jc.Job.Status != jobstatus.StatusFailed || jc.Job.Stage != "validate" {
		t.Fatalf("status=%q stage=%q", jc.Job.Status, jc.Job.Stage)
	}

	boom := errors.New("contract violation")
	jc = newJobContext(`{"run_id":"` + uuid.NewString() + `"}`)
	if err := New(logger.Nop(), &fakeExtraction{err: boom}).Run(jc); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if jc.Job.Status != jobstatus.StatusFailed || jc.Job.Error != boom.Error() {
		t.Fatalf("status=%q error=%q", jc.Job.Status, jc.Job.Error)
	}
}
