package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/quoteflow-backend/internal/data/repos"
	"github.com/yungbote/quoteflow-backend/internal/data/repos/testutil"
	"github.com/yungbote/quoteflow-backend/internal/documents"
	types "github.com/yungbote/quoteflow-backend/internal/domain"
	"github.com/yungbote/quoteflow-backend/internal/domain/cases"
	"github.com/yungbote/quoteflow-backend/internal/domain/extraction"
	jobstatus "github.com/yungbote/quoteflow-backend/internal/domain/jobs"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/platform/storage"
	"github.com/yungbote/quoteflow-backend/internal/pricing"
	"github.com/yungbote/quoteflow-backend/internal/requirements"
)

const sampleTranscript = "客戶提到需要自動化生產線\n工件重量範圍：10-50kg\n需要翻轉工序\n"

type fakeLLM struct {
	resp  map[string]any
	err   error
	calls int
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, system, user string) (map[string]any, error) {
	f.calls++
	return f.resp, f.err
}
func (f *fakeLLM) GenerateText(ctx context.Context, system, user string) (string, error) {
	return "", nil
}
func (f *fakeLLM) Model() string { return "fake-model" }

func completeResponse() map[string]any {
	return map[string]any{
		"requirements": map[string]any{
			"customer_pain_points": []any{"需要自動化生產線"},
			"workpiece":            map[string]any{"weight_range": "10-50kg"},
			"process":              map[string]any{"count": 2.0, "needs_flip": true},
			"machines":             map[string]any{"count": 1.0},
		},
		"confidence": map[string]any{"workpiece": 0.8},
		"evidence": []any{
			map[string]any{"field_path": "workpiece.weight_range", "snippet": "10-50kg"},
			map[string]any{"field_path": "process.needs_flip", "snippet": "需要翻轉工序"},
			map[string]any{"field_path": "process.count", "snippet": "兩道工序"},
		},
	}
}

type harness struct {
	db         *gorm.DB
	rs         repos.Set
	llm        *fakeLLM
	cases      CaseService
	uploads    UploadService
	jobs       JobService
	extraction ExtractionService
	reqs       RequirementsService
	plans      PlanService
	docs       DocumentService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	rs := repos.NewSet(db, log)
	store, err := storage.NewLocal(t.TempDir(), "", log)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	llm := &fakeLLM{resp: completeResponse()}
	h := &harness{db: db, rs: rs, llm: llm}
	h.cases = NewCaseService(log, rs.Case, NopNotifier{})
	h.jobs = NewJobService(db, log, rs.JobRun, NopNotifier{}, nil, "", 3)
	h.uploads = NewUploadService(db, log, rs.Case, rs.Upload, rs.Segment, store, 1<<20)
	h.extraction = NewExtractionService(db, log, rs, h.uploads, h.cases, h.jobs, requirements.NewExtractor(llm, log), "fake-model")
	h.reqs = NewRequirementsService(log, rs)
	engine := pricing.NewEngine(pricing.LoadCatalog("", log), log)
	h.plans = NewPlanService(db, log, rs, engine, nil, h.cases, NopNotifier{}, PlanServiceConfig{
		ContingencyPercent: 10,
		TaxPercent:         5,
		ReservationTTL:     time.Second,
	})
	h.docs = NewDocumentService(db, log, rs, documents.NewRenderer(log), store, h.plans, h.jobs)
	return h
}

func dbc() dbctx.Context { return dbctx.Context{Ctx: context.Background()} }

func (h *harness) newCase(t *testing.T) uuid.UUID {
	t.Helper()
	c, err := h.cases.Create(dbc(), "CNC 上下料", nil)
	if err != nil {
		t.Fatalf("Create case: %v", err)
	}
	return c.ID
}

func (h *harness) upload(t *testing.T, caseID uuid.UUID, name, body string) uuid.UUID {
	t.Helper()
	up, _, err := h.uploads.Upload(dbc(), caseID, UploadInput{Filename: name, ContentType: "text/plain", Body: strings.NewReader(body)})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	return up.ID
}

// extracted runs one extraction to completion and returns the run id.
func (h *harness) extracted(t *testing.T, caseID uuid.UUID) uuid.UUID {
	t.Helper()
	enq, err := h.extraction.Enqueue(dbc(), caseID)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := h.extraction.Execute(dbc(), enq.Run.ID, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return enq.Run.ID
}

func TestClassifyUpload(t *testing.T) {
	tests := []struct {
		name, ct, want string
	}{
		{"notes.txt", "", cases.UploadTranscript},
		{"interview.docx", "", cases.UploadTranscript},
		{"scan.pdf", "application/pdf", cases.UploadTranscript},
		{"line.JPG", "", cases.UploadPhoto},
		{"blob", "image/png", cases.UploadPhoto},
		{"data.bin", "application/octet-stream", cases.UploadTranscript},
	}
	for _, tc := range tests {
		if got := ClassifyUpload(tc.name, tc.ct); got != tc.want {
			t.Fatalf("ClassifyUpload(%q, %q)=%q want %q", tc.name, tc.ct, got, tc.want)
		}
	}
}

func TestUploadSegmentsAndDedup(t *testing.T) {
	h := newHarness(t)
	caseID := h.newCase(t)

	first, created, err := h.uploads.Upload(dbc(), caseID, UploadInput{Filename: "a.txt", Body: strings.NewReader(sampleTranscript)})
	if err != nil || !created {
		t.Fatalf("first upload: created=%v err=%v", created, err)
	}
	if first.Type != cases.UploadTranscript {
		t.Fatalf("type=%q", first.Type)
	}
	segs, err := h.uploads.Segments(dbc(), caseID, nil)
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	wantStarts := []int{0, 13, 28}
	if len(segs) != len(wantStarts) {
		t.Fatalf("expected %d segments, got %d", len(wantStarts), len(segs))
	}
	for i, s := range segs {
		if s.Idx != i || s.StartChar != wantStarts[i] {
			t.Fatalf("segment %d: idx=%d start=%d", i, s.Idx, s.StartChar)
		}
	}

	other := h.newCase(t)
	dup, created, err := h.uploads.Upload(dbc(), other, UploadInput{Filename: "renamed.txt", Body: strings.NewReader(sampleTranscript)})
	if err != nil {
		t.Fatalf("duplicate upload: %v", err)
	}
	if created || dup.ID != first.ID {
		t.Fatalf("duplicate should return existing upload: created=%v id=%v", created, dup.ID)
	}
	list, err := h.uploads.List(dbc(), other)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("duplicate wrote a new row: %d", len(list))
	}

	tr, err := h.uploads.Transcript(dbc(), caseID, nil)
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if tr.Text != sampleTranscript || len(tr.Segments) != 3 {
		t.Fatalf("transcript text=%q segments=%d", tr.Text, len(tr.Segments))
	}
}

func TestUploadSegmentOffsetsMatchStoredText(t *testing.T) {
	h := newHarness(t)
	caseID := h.newCase(t)
	raw := "\uFEFF業務：請問產能？\r\n\r\n客戶A：每小時 120 件\r\n"
	h.upload(t, caseID, "crlf.txt", raw)

	tr, err := h.uploads.Transcript(dbc(), caseID, nil)
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if tr.Text != raw {
		t.Fatalf("transcript text should be the stored file: %q", tr.Text)
	}
	if len(tr.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(tr.Segments))
	}
	runes := []rune(raw)
	for i, s := range tr.Segments {
		if got := string(runes[s.StartChar:s.EndChar]); got != s.Text {
			t.Fatalf("segment %d offsets select %q, text is %q", i, got, s.Text)
		}
	}
}

func TestUploadRejectsMissingCaseAndLargeBody(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.uploads.Upload(dbc(), uuid.New(), UploadInput{Filename: "a.txt", Body: strings.NewReader("x")})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	caseID := h.newCase(t)
	big := strings.Repeat("a", (1<<20)+1)
	_, _, err = h.uploads.Upload(dbc(), caseID, UploadInput{Filename: "big.txt", Body: strings.NewReader(big)})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestExtractionRequiresTranscript(t *testing.T) {
	h := newHarness(t)
	caseID := h.newCase(t)
	if _, err := h.extraction.Enqueue(dbc(), caseID); !errors.Is(err, ErrNoTranscript) {
		t.Fatalf("expected ErrNoTranscript, got %v", err)
	}
	runs, err := h.extraction.ListRuns(dbc(), caseID)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("run created without transcript")
	}
}

func TestExtractionLifecycle(t *testing.T) {
	h := newHarness(t)
	caseID := h.newCase(t)
	h.upload(t, caseID, "interview.txt", sampleTranscript)

	enq, err := h.extraction.Enqueue(dbc(), caseID)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if enq.Run.Status != extraction.RunPending || enq.Run.Version != 1 {
		t.Fatalf("run status=%q version=%d", enq.Run.Status, enq.Run.Version)
	}
	if enq.Job.IdempotencyKey != ExtractionJobKey(caseID, enq.Run.ID) || enq.Job.Status != jobstatus.StatusQueued {
		t.Fatalf("job key=%q status=%q", enq.Job.IdempotencyKey, enq.Job.Status)
	}
	c, _ := h.cases.Get(dbc(), caseID)
	if c.Status != cases.StatusExtracting {
		t.Fatalf("case status=%q", c.Status)
	}

	var stages []string
	sum, err := h.extraction.Execute(dbc(), enq.Run.ID, func(stage string, pct int, msg string) {
		stages = append(stages, stage)
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if sum.Status != extraction.RunCompleted || !sum.Valid || sum.Evidence != 3 || sum.Unaligned != 1 {
		t.Fatalf("summary=%+v", sum)
	}
	if len(stages) != 4 || stages[0] != "load_transcript" || stages[3] != "persist" {
		t.Fatalf("stages=%v", stages)
	}
	run, err := h.extraction.GetRun(dbc(), enq.Run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != extraction.RunCompleted || run.FinishedAt == nil || len(run.PromptHash) != 64 {
		t.Fatalf("run=%+v", run)
	}
	c, _ = h.cases.Get(dbc(), caseID)
	if c.Status != cases.StatusReviewing {
		t.Fatalf("case status=%q", c.Status)
	}

	again, err := h.extraction.Execute(dbc(), enq.Run.ID, nil)
	if err != nil {
		t.Fatalf("redelivered Execute: %v", err)
	}
	if !again.Skipped || h.llm.calls != 1 {
		t.Fatalf("redelivery should be a no-op: skipped=%v calls=%d", again.Skipped, h.llm.calls)
	}

	view, err := h.reqs.Get(dbc(), caseID, nil)
	if err != nil {
		t.Fatalf("Get requirements: %v", err)
	}
	if view.RunID != enq.Run.ID || !view.Valid || len(view.Evidence) != 3 {
		t.Fatalf("view run=%v valid=%v evidence=%d", view.RunID, view.Valid, len(view.Evidence))
	}
	if view.Evidence[0].SegmentIdx == nil || *view.Evidence[0].SegmentIdx != 1 {
		t.Fatalf("first evidence not aligned to segment 1")
	}
}

func TestExtractionFailure(t *testing.T) {
	h := newHarness(t)
	caseID := h.newCase(t)
	h.upload(t, caseID, "interview.txt", sampleTranscript)
	h.llm.err = errors.New("upstream timeout")

	enq, err := h.extraction.Enqueue(dbc(), caseID)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := h.extraction.Execute(dbc(), enq.Run.ID, nil); err == nil {
		t.Fatalf("expected error")
	}
	run, _ := h.extraction.GetRun(dbc(), enq.Run.ID)
	if run.Status != extraction.RunFailed || !strings.Contains(run.Error, "upstream timeout") {
		t.Fatalf("run status=%q error=%q", run.Status, run.Error)
	}
	c, _ := h.cases.Get(dbc(), caseID)
	if c.Status != cases.StatusDraft {
		t.Fatalf("case status=%q", c.Status)
	}

	h.llm.err = nil
	if _, err := h.extraction.Execute(dbc(), enq.Run.ID, nil); !errors.Is(err, ErrRunFailed) {
		t.Fatalf("expected ErrRunFailed, got %v", err)
	}
	if _, err := h.reqs.Get(dbc(), caseID, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("failed run should have no requirements, got %v", err)
	}
}

func TestRequirementsPutRevalidates(t *testing.T) {
	h := newHarness(t)
	caseID := h.newCase(t)
	h.upload(t, caseID, "interview.txt", sampleTranscript)
	runID := h.extracted(t, caseID)

	view, err := h.reqs.Put(dbc(), caseID, &runID, json.RawMessage(`{"workpiece":{"material":"steel"},"open_questions":["交期？"]}`))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if view.Valid || !view.Edited || len(view.MissingFields) != 4 {
		t.Fatalf("valid=%v edited=%v missing=%v", view.Valid, view.Edited, view.MissingFields)
	}
	var doc map[string]any
	if err := json.Unmarshal(view.Requirements, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	qs, _ := doc["open_questions"].([]any)
	if len(qs) != 5 || qs[0] != "交期？" {
		t.Fatalf("open_questions=%v", qs)
	}
	if string(view.Confidence) != `{"workpiece":0.8}` {
		t.Fatalf("confidence not kept: %s", view.Confidence)
	}

	if _, err := h.reqs.Put(dbc(), caseID, &runID, json.RawMessage(`[1,2]`)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	other := uuid.New()
	if _, err := h.reqs.Put(dbc(), caseID, &other, json.RawMessage(`{}`)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGeneratePlansIsIdempotent(t *testing.T) {
	h := newHarness(t)
	caseID := h.newCase(t)
	h.upload(t, caseID, "interview.txt", sampleTranscript)
	h.extracted(t, caseID)

	first, created, err := h.plans.GeneratePlans(dbc(), caseID, nil)
	if err != nil {
		t.Fatalf("GeneratePlans: %v", err)
	}
	if !created || len(first) != 3 {
		t.Fatalf("created=%v plans=%d", created, len(first))
	}
	codes := []string{pricing.PlanP1, pricing.PlanP2, pricing.PlanP3}
	for i, p := range first {
		if p.PlanCode != codes[i] {
			t.Fatalf("plan %d code=%q", i, p.PlanCode)
		}
	}
	if len(first[0].Items) != 7 {
		t.Fatalf("P1 items=%d", len(first[0].Items))
	}
	if first[0].Totals.GrandLow <= first[0].Totals.TotalLow {
		t.Fatalf("contingency not applied: %+v", first[0].Totals)
	}

	second, created, err := h.plans.GeneratePlans(dbc(), caseID, nil)
	if err != nil {
		t.Fatalf("second GeneratePlans: %v", err)
	}
	if created {
		t.Fatalf("second call should not create")
	}
	for i := range first {
		if second[i].ID != first[i].ID {
			t.Fatalf("plan %d id changed: %v != %v", i, second[i].ID, first[i].ID)
		}
	}
	c, _ := h.cases.Get(dbc(), caseID)
	if c.Status != cases.StatusQuoted {
		t.Fatalf("case status=%q", c.Status)
	}

	updated, err := h.plans.UpdatePlan(dbc(), first[0].ID, json.RawMessage(`{"robot_count":3}`))
	if err != nil {
		t.Fatalf("UpdatePlan: %v", err)
	}
	if !strings.Contains(string(updated.Assumptions), "robot_count") || len(updated.Items) != 7 {
		t.Fatalf("update lost data: %s items=%d", updated.Assumptions, len(updated.Items))
	}
	if _, err := h.plans.UpdatePlan(dbc(), first[0].ID, json.RawMessage(`"x"`)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

// hiddenPlans reports no stored plans for the first n ListForRun calls.
type hiddenPlans struct {
	repos.PlanRepo
	mu sync.Mutex
	n  int
}

func (r *hiddenPlans) ListForRun(dbc dbctx.Context, caseID uuid.UUID, runID *uuid.UUID) ([]*types.Plan, error) {
	r.mu.Lock()
	hide := r.n > 0
	if hide {
		r.n--
	}
	r.mu.Unlock()
	if hide {
		return nil, nil
	}
	return r.PlanRepo.ListForRun(dbc, caseID, runID)
}

// gatedPlans blocks the first ListForRun call until release is closed.
type gatedPlans struct {
	repos.PlanRepo
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (r *gatedPlans) ListForRun(dbc dbctx.Context, caseID uuid.UUID, runID *uuid.UUID) ([]*types.Plan, error) {
	first := false
	r.once.Do(func() { first = true })
	if first {
		close(r.entered)
		<-r.release
	}
	return r.PlanRepo.ListForRun(dbc, caseID, runID)
}

func (h *harness) planService(t *testing.T, plans repos.PlanRepo) PlanService {
	t.Helper()
	log := testutil.Logger(t)
	rs := h.rs
	rs.Plan = plans
	return NewPlanService(h.db, log, rs, pricing.NewEngine(pricing.LoadCatalog("", log), log), nil, h.cases, NopNotifier{}, PlanServiceConfig{
		ContingencyPercent: 10,
		TaxPercent:         5,
		ReservationTTL:     time.Second,
	})
}

func TestGeneratePlansLosingWriterReturnsStoredPlans(t *testing.T) {
	h := newHarness(t)
	caseID := h.newCase(t)
	h.upload(t, caseID, "interview.txt", sampleTranscript)
	h.extracted(t, caseID)

	first, created, err := h.plans.GeneratePlans(dbc(), caseID, nil)
	if err != nil || !created {
		t.Fatalf("GeneratePlans: created=%v err=%v", created, err)
	}

	// the second service does not see the stored plans, builds its own and
	// collides on the reservation key
	late := h.planService(t, &hiddenPlans{PlanRepo: h.rs.Plan, n: 1})
	second, created, err := late.GeneratePlans(dbc(), caseID, nil)
	if err != nil {
		t.Fatalf("losing GeneratePlans: %v", err)
	}
	if created {
		t.Fatalf("losing writer must not report created")
	}
	if len(second) != len(first) {
		t.Fatalf("plans: got %d want %d", len(second), len(first))
	}
	for i := range first {
		if second[i].ID != first[i].ID {
			t.Fatalf("plan %d: got %v want stored %v", i, second[i].ID, first[i].ID)
		}
	}
	var n int64
	if err := h.db.Model(&types.Plan{}).Where(&types.Plan{CaseID: caseID}).Count(&n).Error; err != nil {
		t.Fatalf("count plans: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 plan rows, got %d", n)
	}
}

func TestGeneratePlansConcurrentCallersOneCreated(t *testing.T) {
	h := newHarness(t)
	caseID := h.newCase(t)
	h.upload(t, caseID, "interview.txt", sampleTranscript)
	h.extracted(t, caseID)

	gate := &gatedPlans{PlanRepo: h.rs.Plan, entered: make(chan struct{}), release: make(chan struct{})}
	svc := h.planService(t, gate)

	type result struct {
		created bool
		err     error
	}
	call := func(out chan<- result) {
		_, created, err := svc.GeneratePlans(dbc(), caseID, nil)
		out <- result{created, err}
	}
	leader := make(chan result, 1)
	go call(leader)
	<-gate.entered

	follower := make(chan result, 1)
	go call(follower)
	time.Sleep(50 * time.Millisecond)
	close(gate.release)

	l, f := <-leader, <-follower
	if l.err != nil || f.err != nil {
		t.Fatalf("GeneratePlans: leader=%v follower=%v", l.err, f.err)
	}
	if !l.created {
		t.Fatalf("the call that inserted the plans must report created")
	}
	if f.created {
		t.Fatalf("a caller sharing the result must not report created")
	}
}

func TestGeneratePlansNeedsRequirements(t *testing.T) {
	h := newHarness(t)
	caseID := h.newCase(t)
	if _, _, err := h.plans.GeneratePlans(dbc(), caseID, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJobEnqueueIdempotent(t *testing.T) {
	h := newHarness(t)
	entity := uuid.New()
	req := EnqueueRequest{
		JobType:        JobTypeDocuments,
		EntityType:     "case",
		EntityID:       &entity,
		IdempotencyKey: DocumentsJobKey(entity, uuid.New()),
		Payload:        map[string]any{"case_id": entity.String()},
	}
	first, created, err := h.jobs.Enqueue(dbc(), req)
	if err != nil || !created {
		t.Fatalf("first Enqueue: created=%v err=%v", created, err)
	}
	second, created, err := h.jobs.Enqueue(dbc(), req)
	if err != nil || created || second.ID != first.ID {
		t.Fatalf("second Enqueue: created=%v id=%v err=%v", created, second.ID, err)
	}

	canceled, err := h.jobs.Cancel(dbc(), first.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if canceled.Status != jobstatus.StatusCanceled {
		t.Fatalf("status=%q", canceled.Status)
	}
	restarted, err := h.jobs.Restart(dbc(), first.ID)
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if restarted.Status != jobstatus.StatusQueued || restarted.Attempts != 0 {
		t.Fatalf("restart status=%q attempts=%d", restarted.Status, restarted.Attempts)
	}
	if _, _, err := h.jobs.Enqueue(dbc(), EnqueueRequest{JobType: JobTypeDocuments}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDocumentBatch(t *testing.T) {
	h := newHarness(t)
	caseID := h.newCase(t)
	h.upload(t, caseID, "interview.txt", sampleTranscript)
	h.extracted(t, caseID)

	if _, err := h.docs.Enqueue(dbc(), caseID, nil, []string{"memo"}, nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	batch, err := h.docs.Enqueue(dbc(), caseID, nil, nil, []string{"docx", "pdf"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if batch.Job.IdempotencyKey != DocumentsJobKey(caseID, batch.BatchID) {
		t.Fatalf("job key=%q", batch.Job.IdempotencyKey)
	}

	req := DocumentRequest{CaseID: caseID, BatchID: batch.BatchID, Formats: []string{"docx", "pdf"}}
	res, err := h.docs.ExecuteBatch(dbc(), req, nil)
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	// No plans yet, so both quote renders are skipped.
	if len(res.Produced) != 4 || len(res.Skipped) != 2 {
		t.Fatalf("produced=%d skipped=%d", len(res.Produced), len(res.Skipped))
	}
	for _, s := range res.Skipped {
		if s.DocType != "quote" {
			t.Fatalf("unexpected skip: %+v", s)
		}
	}

	if _, _, err := h.plans.GeneratePlans(dbc(), caseID, nil); err != nil {
		t.Fatalf("GeneratePlans: %v", err)
	}
	res, err = h.docs.ExecuteBatch(dbc(), req, nil)
	if err != nil {
		t.Fatalf("redelivered ExecuteBatch: %v", err)
	}
	if len(res.Produced) != 6 || len(res.Skipped) != 0 {
		t.Fatalf("redelivery produced=%d skipped=%d", len(res.Produced), len(res.Skipped))
	}

	docs, err := h.docs.List(dbc(), caseID, nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 6 {
		t.Fatalf("documents=%d", len(docs))
	}
	doc, rc, err := h.docs.Open(dbc(), docs[0].ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if int64(len(body)) != doc.SizeBytes || !strings.HasSuffix(doc.Filename, "_latest.docx") {
		t.Fatalf("size=%d/%d filename=%q", len(body), doc.SizeBytes, doc.Filename)
	}

	html, err := h.docs.Preview(dbc(), caseID, nil, "spec")
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if !strings.Contains(html, "需求規格書") {
		t.Fatalf("preview missing title")
	}
}

func TestDocumentPreviewWithoutRequirements(t *testing.T) {
	h := newHarness(t)
	caseID := h.newCase(t)
	if _, err := h.docs.Preview(dbc(), caseID, nil, "report"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := h.docs.Preview(dbc(), caseID, nil, "memo"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, _, err := h.docs.Open(dbc(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCaseServiceUpdate(t *testing.T) {
	h := newHarness(t)
	caseID := h.newCase(t)
	title := "  新標題 "
	bad := "closed"
	if _, err := h.cases.Update(dbc(), caseID, CaseUpdate{Status: &bad}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	c, err := h.cases.Update(dbc(), caseID, CaseUpdate{Title: &title})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if c.Title != "新標題" {
		t.Fatalf("title=%q", c.Title)
	}
	list, total, err := h.cases.List(dbc(), "", 0, 0)
	if err != nil || total != 1 || len(list) != 1 {
		t.Fatalf("List: total=%d len=%d err=%v", total, len(list), err)
	}
	if _, err := h.cases.Get(dbc(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBackfillSegments(t *testing.T) {
	h := newHarness(t)
	caseID := h.newCase(t)
	uploadID := h.upload(t, caseID, "interview.txt", sampleTranscript)

	if err := h.db.Where("upload_id = ?", uploadID).Delete(&cases.Segment{}).Error; err != nil {
		t.Fatalf("delete segments: %v", err)
	}

	n, err := h.uploads.BackfillSegments(context.Background(), 0)
	if err != nil {
		t.Fatalf("BackfillSegments: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 upload backfilled, got %d", n)
	}
	segs, err := h.uploads.Segments(dbc(), caseID, nil)
	if err != nil || len(segs) != 3 {
		t.Fatalf("segments after backfill: len=%d err=%v", len(segs), err)
	}

	n, err = h.uploads.BackfillSegments(context.Background(), 0)
	if err != nil || n != 0 {
		t.Fatalf("second pass: n=%d err=%v", n, err)
	}
}
