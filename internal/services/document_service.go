package services

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/quoteflow-backend/internal/data/repos"
	"github.com/yungbote/quoteflow-backend/internal/documents"
	types "github.com/yungbote/quoteflow-backend/internal/domain"
	docdomain "github.com/yungbote/quoteflow-backend/internal/domain/documents"
	"github.com/yungbote/quoteflow-backend/internal/observability"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
	"github.com/yungbote/quoteflow-backend/internal/platform/storage"
	"github.com/yungbote/quoteflow-backend/internal/requirements"
)

const renderConcurrency = 4

type DocumentBatch struct {
	BatchID uuid.UUID     `json:"batch_id"`
	Job     *types.JobRun `json:"job"`
}

type DocumentRequest struct {
	CaseID  uuid.UUID
	RunID   *uuid.UUID
	BatchID uuid.UUID
	Types   []string
	Formats []string
}

type ProducedDocument struct {
	DocumentID uuid.UUID `json:"document_id"`
	DocType    string    `json:"doc_type"`
	Format     string    `json:"format"`
	Filename   string    `json:"filename"`
}

type SkippedDocument struct {
	DocType string `json:"doc_type"`
	Format  string `json:"format"`
	Reason  string `json:"reason"`
}

type DocumentBatchResult struct {
	BatchID  uuid.UUID          `json:"batch_id"`
	Produced []ProducedDocument `json:"produced"`
	Skipped  []SkippedDocument  `json:"skipped"`
}

type DocumentService interface {
	// Enqueue validates the request and schedules a documents job. Empty
	// types mean every type; empty formats mean docx.
	Enqueue(dbc dbctx.Context, caseID uuid.UUID, runID *uuid.UUID, docTypes, formats []string) (*DocumentBatch, error)
	// ExecuteBatch renders every type and format pair. A pair that fails is
	// skipped and reported; the batch itself only fails on storage or
	// database errors.
	ExecuteBatch(dbc dbctx.Context, req DocumentRequest, progress ProgressFunc) (*DocumentBatchResult, error)
	List(dbc dbctx.Context, caseID uuid.UUID, runID *uuid.UUID) ([]*types.Document, error)
	Open(dbc dbctx.Context, documentID uuid.UUID) (*types.Document, io.ReadCloser, error)
	Preview(dbc dbctx.Context, caseID uuid.UUID, runID *uuid.UUID, docType string) (string, error)
}

type documentService struct {
	db       *gorm.DB
	log      *logger.Logger
	repos    repos.Set
	renderer documents.Renderer
	store    storage.Store
	plans    PlanService
	jobs     JobService
}

func NewDocumentService(
	db *gorm.DB,
	baseLog *logger.Logger,
	rs repos.Set,
	renderer documents.Renderer,
	store storage.Store,
	plans PlanService,
	jobs JobService,
) DocumentService {
	return &documentService{
		db:       db,
		log:      baseLog.With("service", "DocumentService"),
		repos:    rs,
		renderer: renderer,
		store:    store,
		plans:    plans,
		jobs:     jobs,
	}
}

// NormalizeDocumentRequest applies defaults, drops duplicates and rejects
// unknown names.
func NormalizeDocumentRequest(docTypes, formats []string) ([]string, []string, error) {
	if len(docTypes) == 0 {
		docTypes = docdomain.Types
	}
	if len(formats) == 0 {
		formats = []string{docdomain.FormatDOCX}
	}
	outTypes, err := dedupeValid(docTypes, docdomain.ValidType, "document type")
	if err != nil {
		return nil, nil, err
	}
	outFormats, err := dedupeValid(formats, docdomain.ValidFormat, "format")
	if err != nil {
		return nil, nil, err
	}
	return outTypes, outFormats, nil
}

func dedupeValid(in []string, valid func(string) bool, what string) ([]string, error) {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !valid(v) {
			return nil, fmt.Errorf("%w: unknown %s %q", ErrInvalidInput, what, v)
		}
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out, nil
}

func (s *documentService) Enqueue(dbc dbctx.Context, caseID uuid.UUID, runID *uuid.UUID, docTypes, formats []string) (*DocumentBatch, error) {
	docTypes, formats, err := NormalizeDocumentRequest(docTypes, formats)
	if err != nil {
		return nil, err
	}
	c, err := s.repos.Case.GetByID(dbc, caseID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("case %s: %w", caseID, ErrNotFound)
	}
	if runID != nil {
		if _, err := resolveRun(dbc, s.repos, caseID, runID); err != nil {
			return nil, err
		}
	}

	batchID := uuid.New()
	payload := map[string]any{
		"case_id":  caseID.String(),
		"batch_id": batchID.String(),
		"types":    docTypes,
		"formats":  formats,
	}
	if runID != nil {
		payload["run_id"] = runID.String()
	}
	entityID := caseID
	job, _, err := s.jobs.Enqueue(dbc, EnqueueRequest{
		JobType:        JobTypeDocuments,
		EntityType:     "case",
		EntityID:       &entityID,
		IdempotencyKey: DocumentsJobKey(caseID, batchID),
		Payload:        payload,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("document batch enqueued", "case_id", caseID, "batch_id", batchID, "job_id", job.ID, "types", docTypes, "formats", formats)
	return &DocumentBatch{BatchID: batchID, Job: job}, nil
}

type renderTask struct {
	docType string
	format  string
	out     *documents.Rendered
	err     error
}

func (s *documentService) ExecuteBatch(dbc dbctx.Context, req DocumentRequest, progress ProgressFunc) (*DocumentBatchResult, error) {
	if progress == nil {
		progress = func(string, int, string) {}
	}
	docTypes, formats, err := NormalizeDocumentRequest(req.Types, req.Formats)
	if err != nil {
		return nil, err
	}
	progress("load_inputs", 10, "Loading case content")
	in, err := s.loadInput(dbc, req.CaseID, req.RunID)
	if err != nil {
		return nil, err
	}

	result := &DocumentBatchResult{BatchID: req.BatchID, Produced: []ProducedDocument{}, Skipped: []SkippedDocument{}}
	existing, err := s.repos.Document.ListByBatch(dbc, req.BatchID)
	if err != nil {
		return nil, err
	}
	done := map[string]*types.Document{}
	for _, d := range existing {
		done[d.DocType+"/"+d.Format] = d
	}

	var tasks []*renderTask
	for _, t := range docTypes {
		for _, f := range formats {
			if d, ok := done[t+"/"+f]; ok {
				result.Produced = append(result.Produced, ProducedDocument{DocumentID: d.ID, DocType: t, Format: f, Filename: d.Filename})
				continue
			}
			tasks = append(tasks, &renderTask{docType: t, format: f})
		}
	}

	progress("render", 30, fmt.Sprintf("Rendering %d documents", len(tasks)))
	var g errgroup.Group
	g.SetLimit(renderConcurrency)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			task.out, task.err = s.renderer.Render(in, task.docType, task.format)
			return nil
		})
	}
	_ = g.Wait()

	progress("store", 70, "Storing documents")
	for _, task := range tasks {
		if task.err != nil {
			s.log.Warn("document skipped", "case_id", req.CaseID, "batch_id", req.BatchID, "doc_type", task.docType, "format", task.format, "error", task.err)
			observability.Current().IncDocument(task.docType, task.format, "skipped")
			result.Skipped = append(result.Skipped, SkippedDocument{DocType: task.docType, Format: task.format, Reason: task.err.Error()})
			continue
		}
		doc, err := s.persist(dbc, req, in, task)
		if err != nil {
			observability.Current().IncDocument(task.docType, task.format, "failed")
			return nil, err
		}
		observability.Current().IncDocument(task.docType, task.format, "produced")
		result.Produced = append(result.Produced, ProducedDocument{DocumentID: doc.ID, DocType: doc.DocType, Format: doc.Format, Filename: doc.Filename})
	}
	s.log.Info("document batch finished", "case_id", req.CaseID, "batch_id", req.BatchID, "produced", len(result.Produced), "skipped", len(result.Skipped))
	return result, nil
}

func (s *documentService) persist(dbc dbctx.Context, req DocumentRequest, in documents.Input, task *renderTask) (*types.Document, error) {
	docID := uuid.New()
	key := storage.DocumentKey(req.CaseID.String(), req.BatchID.String(), task.format+"_"+task.out.Filename)
	if err := s.store.Put(dbc.Ctx, key, bytes.NewReader(task.out.Bytes), task.out.ContentType); err != nil {
		return nil, fmt.Errorf("store %s/%s: %w", task.docType, task.format, err)
	}
	var runID *uuid.UUID
	if in.Run != nil {
		id := in.Run.ID
		runID = &id
	}
	doc := &types.Document{
		ID:          docID,
		CaseID:      req.CaseID,
		RunID:       runID,
		BatchID:     req.BatchID,
		DocType:     task.docType,
		Format:      task.format,
		Filename:    task.out.Filename,
		ContentType: task.out.ContentType,
		StorageKey:  key,
		SizeBytes:   int64(len(task.out.Bytes)),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repos.Document.Create(dbc, doc); err != nil {
		if derr := s.store.Delete(dbc.Ctx, key); derr != nil {
			s.log.Warn("orphaned document blob", "key", key, "error", derr)
		}
		return nil, fmt.Errorf("record document: %w", err)
	}
	return doc, nil
}

// loadInput gathers what the renderer needs. Missing requirements or plans
// are left empty so the renderer can skip the types that need them.
func (s *documentService) loadInput(dbc dbctx.Context, caseID uuid.UUID, runID *uuid.UUID) (documents.Input, error) {
	in := documents.Input{RequestedRun: runID}
	c, err := s.repos.Case.GetByID(dbc, caseID)
	if err != nil {
		return in, err
	}
	if c == nil {
		return in, fmt.Errorf("case %s: %w", caseID, ErrNotFound)
	}
	in.Case = c

	run, err := resolveRun(dbc, s.repos, caseID, runID)
	if err != nil {
		if errors.Is(err, ErrNotFound) && runID == nil {
			return in, nil
		}
		return in, err
	}
	in.Run = run

	req, err := s.repos.Requirement.GetByRun(dbc, run.ID)
	if err != nil {
		return in, err
	}
	if req != nil {
		tree, err := requirements.Parse(req.Data)
		if err != nil {
			s.log.Warn("stored requirements unreadable", "run_id", run.ID, "error", err)
		} else {
			in.Requirements = &tree
		}
	}
	if in.Evidence, err = s.repos.Evidence.ListByRun(dbc, run.ID); err != nil {
		return in, err
	}
	plans, err := s.repos.Plan.ListForRun(dbc, caseID, &run.ID)
	if err != nil {
		return in, err
	}
	for _, p := range plans {
		in.Plans = append(in.Plans, documents.QuotePlan{Plan: p, Totals: s.plans.Totals(p.Items)})
	}
	return in, nil
}

func (s *documentService) List(dbc dbctx.Context, caseID uuid.UUID, runID *uuid.UUID) ([]*types.Document, error) {
	c, err := s.repos.Case.GetByID(dbc, caseID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("case %s: %w", caseID, ErrNotFound)
	}
	return s.repos.Document.ListByCase(dbc, caseID, runID)
}

func (s *documentService) Open(dbc dbctx.Context, documentID uuid.UUID) (*types.Document, io.ReadCloser, error) {
	doc, err := s.repos.Document.GetByID(dbc, documentID)
	if err != nil {
		return nil, nil, err
	}
	if doc == nil {
		return nil, nil, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	rc, err := s.store.Get(dbc.Ctx, doc.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("open document %s: %w", documentID, err)
	}
	return doc, rc, nil
}

func (s *documentService) Preview(dbc dbctx.Context, caseID uuid.UUID, runID *uuid.UUID, docType string) (string, error) {
	if !docdomain.ValidType(docType) {
		return "", fmt.Errorf("%w: unknown document type %q", ErrInvalidInput, docType)
	}
	in, err := s.loadInput(dbc, caseID, runID)
	if err != nil {
		return "", err
	}
	html, err := s.renderer.Preview(in, docType)
	if errors.Is(err, documents.ErrMissingInput) {
		return "", fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return html, err
}
