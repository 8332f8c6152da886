package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/quoteflow-backend/internal/domain/cases"
	"github.com/yungbote/quoteflow-backend/internal/domain/extraction"
)

func SeedCase(tb testing.TB, ctx context.Context, tx *gorm.DB, title string) *cases.Case {
	tb.Helper()
	c := &cases.Case{
		ID:     uuid.New(),
		Title:  title,
		Status: cases.StatusDraft,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed case: %v", err)
	}
	return c
}

func SeedTranscriptUpload(tb testing.TB, ctx context.Context, tx *gorm.DB, caseID uuid.UUID, body string) *cases.Upload {
	tb.Helper()
	sum := sha256.Sum256([]byte(body))
	u := &cases.Upload{
		ID:          uuid.New(),
		CaseID:      caseID,
		Type:        cases.UploadTranscript,
		Filename:    "interview.txt",
		ContentType: "text/plain",
		SizeBytes:   int64(len(body)),
		StorageKey:  "uploads/" + hex.EncodeToString(sum[:]),
		SHA256:      hex.EncodeToString(sum[:]),
		TextKind:    "text",
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed upload: %v", err)
	}
	return u
}

// SeedSegments stores one segment per line of lines, laid out as if joined by "\n".
func SeedSegments(tb testing.TB, ctx context.Context, tx *gorm.DB, caseID, uploadID uuid.UUID, lines ...string) []cases.Segment {
	tb.Helper()
	out := make([]cases.Segment, 0, len(lines))
	cursor := 0
	for i, line := range lines {
		n := utf8.RuneCountInString(line)
		out = append(out, cases.Segment{
			ID:        uuid.New(),
			CaseID:    caseID,
			UploadID:  uploadID,
			Idx:       i,
			Text:      line,
			StartChar: cursor,
			EndChar:   cursor + n,
		})
		cursor += n + 1
	}
	if len(out) == 0 {
		return out
	}
	if err := tx.WithContext(ctx).Create(&out).Error; err != nil {
		tb.Fatalf("seed segments: %v", err)
	}
	return out
}

func SeedRun(tb testing.TB, ctx context.Context, tx *gorm.DB, caseID uuid.UUID, version int, status string) *extraction.Run {
	tb.Helper()
	r := &extraction.Run{
		ID:      uuid.New(),
		CaseID:  caseID,
		Version: version,
		Status:  status,
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed run: %v", err)
	}
	return r
}

func SeedRequirement(tb testing.TB, ctx context.Context, tx *gorm.DB, runID uuid.UUID, data string) *extraction.Requirement {
	tb.Helper()
	if data == "" {
		data = "{}"
	}
	req := &extraction.Requirement{
		ID:         uuid.New(),
		RunID:      runID,
		Data:       datatypes.JSON([]byte(data)),
		Confidence: datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(req).Error; err != nil {
		tb.Fatalf("seed requirement: %v", err)
	}
	return req
}
