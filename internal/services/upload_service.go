package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/quoteflow-backend/internal/data/dberr"
	"github.com/yungbote/quoteflow-backend/internal/data/repos"
	types "github.com/yungbote/quoteflow-backend/internal/domain"
	"github.com/yungbote/quoteflow-backend/internal/domain/cases"
	"github.com/yungbote/quoteflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
	"github.com/yungbote/quoteflow-backend/internal/platform/storage"
	"github.com/yungbote/quoteflow-backend/internal/platform/textextract"
	"github.com/yungbote/quoteflow-backend/internal/transcript"
)

type UploadInput struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Transcript is the text of a case's transcript upload and its segments.
type Transcript struct {
	Upload   *types.Upload
	Text     string
	Segments []transcript.Segment
}

type UploadService interface {
	// Upload stores a file for a case. An identical body already stored
	// anywhere returns the existing record with created=false.
	Upload(dbc dbctx.Context, caseID uuid.UUID, in UploadInput) (*types.Upload, bool, error)
	List(dbc dbctx.Context, caseID uuid.UUID) ([]*types.Upload, error)
	Segments(dbc dbctx.Context, caseID uuid.UUID, uploadID *uuid.UUID) ([]*types.Segment, error)
	Transcript(dbc dbctx.Context, caseID uuid.UUID, uploadID *uuid.UUID) (*Transcript, error)
	BackfillSegments(ctx context.Context, limit int) (int, error)
}

type uploadService struct {
	db       *gorm.DB
	log      *logger.Logger
	cases    repos.CaseRepo
	uploads  repos.UploadRepo
	segments repos.SegmentRepo
	store    storage.Store
	maxBytes int64
}

func NewUploadService(
	db *gorm.DB,
	baseLog *logger.Logger,
	caseRepo repos.CaseRepo,
	uploadRepo repos.UploadRepo,
	segmentRepo repos.SegmentRepo,
	store storage.Store,
	maxBytes int64,
) UploadService {
	return &uploadService{
		db:       db,
		log:      baseLog.With("service", "UploadService"),
		cases:    caseRepo,
		uploads:  uploadRepo,
		segments: segmentRepo,
		store:    store,
		maxBytes: maxBytes,
	}
}

var (
	transcriptExts = map[string]bool{".txt": true, ".doc": true, ".docx": true, ".pdf": true, ".md": true}
	photoExts      = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".webp": true}
)

// ClassifyUpload decides the upload type from extension and content type.
// Anything unrecognised is treated as a transcript.
func ClassifyUpload(filename, contentType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	ct := strings.ToLower(contentType)
	switch {
	case transcriptExts[ext] || strings.Contains(ct, "text"):
		return cases.UploadTranscript
	case photoExts[ext] || strings.Contains(ct, "image"):
		return cases.UploadPhoto
	default:
		return cases.UploadTranscript
	}
}

func (s *uploadService) Upload(dbc dbctx.Context, caseID uuid.UUID, in UploadInput) (*types.Upload, bool, error) {
	if in.Body == nil || strings.TrimSpace(in.Filename) == "" {
		return nil, false, fmt.Errorf("%w: file is required", ErrInvalidInput)
	}
	c, err := s.cases.GetByID(dbc, caseID)
	if err != nil {
		return nil, false, err
	}
	if c == nil {
		return nil, false, fmt.Errorf("case %s: %w", caseID, ErrNotFound)
	}

	body, err := s.readBody(in.Body)
	if err != nil {
		return nil, false, err
	}
	sum := sha256.Sum256(body)
	digest := hex.EncodeToString(sum[:])

	if existing, err := s.uploads.GetBySHA256(dbc, digest); err != nil {
		return nil, false, err
	} else if existing != nil {
		s.log.Debug("duplicate upload", "case_id", caseID, "existing_upload_id", existing.ID, "sha256", digest)
		return existing, false, nil
	}

	contentType := strings.TrimSpace(in.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = storage.ContentTypeForKey(in.Filename)
	}
	up := &types.Upload{
		ID:          uuid.New(),
		CaseID:      caseID,
		Type:        ClassifyUpload(in.Filename, contentType),
		Filename:    filepath.Base(in.Filename),
		ContentType: contentType,
		SizeBytes:   int64(len(body)),
		SHA256:      digest,
		CreatedAt:   time.Now().UTC(),
	}
	up.StorageKey = storage.UploadKey(caseID.String(), up.ID.String(), up.Filename)

	var segs []transcript.Segment
	if up.Type == cases.UploadTranscript {
		text, kind, xerr := textextract.Extract(up.Filename, contentType, body)
		if xerr != nil {
			s.log.Warn("transcript text extraction failed; storing without segments", "case_id", caseID, "filename", up.Filename, "error", xerr)
		} else {
			up.TextKind = kind
			segs = transcript.Split(text)
		}
	}

	if err := s.store.Put(dbc.Ctx, up.StorageKey, bytes.NewReader(body), contentType); err != nil {
		return nil, false, fmt.Errorf("store upload: %w", err)
	}

	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	err = transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: txx}
		if _, err := s.uploads.Create(inner, up); err != nil {
			return err
		}
		return s.segments.CreateBatch(inner, toSegmentRows(caseID, up.ID, segs))
	})
	if err != nil {
		_ = s.store.Delete(context.Background(), up.StorageKey)
		if dberr.IsUniqueViolation(err) {
			if winner, gerr := s.uploads.GetBySHA256(dbctx.Context{Ctx: dbc.Ctx}, digest); gerr == nil && winner != nil {
				return winner, false, nil
			}
		}
		return nil, false, fmt.Errorf("create upload: %w", err)
	}
	s.log.Info("upload stored",
		"case_id", caseID,
		"upload_id", up.ID,
		"type", up.Type,
		"size_bytes", up.SizeBytes,
		"segments", len(segs),
	)
	return up, true, nil
}

func (s *uploadService) readBody(r io.Reader) ([]byte, error) {
	if s.maxBytes <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(body)) > s.maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxBytes)
	}
	return body, nil
}

func toSegmentRows(caseID, uploadID uuid.UUID, segs []transcript.Segment) []*types.Segment {
	rows := make([]*types.Segment, 0, len(segs))
	now := time.Now().UTC()
	for _, sg := range segs {
		rows = append(rows, &types.Segment{
			ID:        uuid.New(),
			CaseID:    caseID,
			UploadID:  uploadID,
			Idx:       sg.Idx,
			Speaker:   sg.Speaker,
			Text:      sg.Text,
			StartChar: sg.StartChar,
			EndChar:   sg.EndChar,
			CreatedAt: now,
		})
	}
	return rows
}

func fromSegmentRows(rows []*types.Segment) []transcript.Segment {
	out := make([]transcript.Segment, 0, len(rows))
	for _, r := range rows {
		out = append(out, transcript.Segment{
			Idx:       r.Idx,
			Speaker:   r.Speaker,
			Text:      r.Text,
			StartChar: r.StartChar,
			EndChar:   r.EndChar,
		})
	}
	return out
}

func (s *uploadService) List(dbc dbctx.Context, caseID uuid.UUID) ([]*types.Upload, error) {
	if c, err := s.cases.GetByID(dbc, caseID); err != nil {
		return nil, err
	} else if c == nil {
		return nil, fmt.Errorf("case %s: %w", caseID, ErrNotFound)
	}
	return s.uploads.ListByCase(dbc, caseID)
}

// Segments lists the segments of uploadID, or of the case's latest transcript
// when uploadID is nil.
func (s *uploadService) Segments(dbc dbctx.Context, caseID uuid.UUID, uploadID *uuid.UUID) ([]*types.Segment, error) {
	var up *types.Upload
	var err error
	if uploadID != nil {
		up, err = s.uploads.GetByID(dbc, *uploadID)
	} else {
		up, err = s.uploads.LatestTranscript(dbc, caseID)
	}
	if err != nil {
		return nil, err
	}
	if up == nil || up.CaseID != caseID {
		if uploadID == nil {
			return []*types.Segment{}, nil
		}
		return nil, fmt.Errorf("upload: %w", ErrNotFound)
	}
	return s.segments.ListByUpload(dbc, up.ID)
}

// Transcript reloads the text of uploadID, or of the newest transcript
// upload when uploadID is nil, from storage. Segments stored at upload time
// are reused.
func (s *uploadService) Transcript(dbc dbctx.Context, caseID uuid.UUID, uploadID *uuid.UUID) (*Transcript, error) {
	var up *types.Upload
	var err error
	if uploadID != nil {
		up, err = s.uploads.GetByID(dbc, *uploadID)
	} else {
		up, err = s.uploads.LatestTranscript(dbc, caseID)
	}
	if err != nil {
		return nil, err
	}
	if up == nil || up.CaseID != caseID || up.Type != cases.UploadTranscript {
		return nil, ErrNoTranscript
	}
	text, err := s.loadText(dbc.Ctx, up)
	if err != nil {
		return nil, err
	}
	rows, err := s.segments.ListByUpload(dbc, up.ID)
	if err != nil {
		return nil, err
	}
	segs := fromSegmentRows(rows)
	if len(segs) == 0 {
		segs = transcript.Split(text)
	}
	return &Transcript{Upload: up, Text: text, Segments: segs}, nil
}

func (s *uploadService) loadText(ctx context.Context, up *types.Upload) (string, error) {
	rc, err := s.store.Get(ctx, up.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("transcript blob %s: %w", up.StorageKey, ErrNotFound)
		}
		return "", fmt.Errorf("load transcript: %w", err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	text, _, err := textextract.Extract(up.Filename, up.ContentType, body)
	if err != nil {
		return "", fmt.Errorf("extract transcript text: %w", err)
	}
	return text, nil
}

// BackfillSegments derives segments for transcript uploads that have none.
func (s *uploadService) BackfillSegments(ctx context.Context, limit int) (int, error) {
	dbc := dbctx.Context{Ctx: ctx}
	ups, err := s.uploads.ListTranscriptsWithoutSegments(dbc, limit)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, up := range ups {
		text, err := s.loadText(ctx, up)
		if err != nil {
			s.log.Warn("backfill: cannot load transcript", "upload_id", up.ID, "error", err)
			continue
		}
		segs := transcript.Split(text)
		if len(segs) == 0 {
			continue
		}
		if err := s.segments.CreateBatch(dbc, toSegmentRows(up.CaseID, up.ID, segs)); err != nil {
			if dberr.IsUniqueViolation(err) {
				continue
			}
			return done, fmt.Errorf("backfill upload %s: %w", up.ID, err)
		}
		done++
	}
	s.log.Info("segment backfill finished", "candidates", len(ups), "backfilled", done)
	return done, nil
}
